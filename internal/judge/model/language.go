package model

// Language identifies a supported source language.
// The set is closed; intake rejects anything else.
type Language string

const (
	LanguageCpp    Language = "cpp"
	LanguageC      Language = "c"
	LanguagePython Language = "py"
	LanguageOCaml  Language = "ocaml"
)

// Valid reports whether l is one of the supported languages.
func (l Language) Valid() bool {
	switch l {
	case LanguageCpp, LanguageC, LanguagePython, LanguageOCaml:
		return true
	}
	return false
}

// Package compile prepares submissions for sandboxed execution: it writes
// the source out, compiles it when the language needs that, stages the
// artifact into the box, and yields the argv used to run it.
package compile

import (
	"strings"

	"github.com/google/shlex"

	"cpjudge/internal/judge/model"
	appErr "cpjudge/pkg/errors"
)

// Template placeholders accepted in compile commands and run argv.
const (
	placeholderSrc  = "{src}"  // host path of the source file
	placeholderExe  = "{exe}"  // host path of the output executable
	placeholderFile = "{file}" // bare source file name inside the box
	placeholderName = "{name}" // bare executable name inside the box
)

// LanguageSpec describes how one language is compiled and run.
type LanguageSpec struct {
	// Extension is the source file extension, without the dot.
	Extension string
	// CompileCommand is a shell-like template; empty for interpreted
	// languages. It is tokenized with shlex, so quoted flags survive.
	CompileCommand string
	// RunArgv is the argv template passed to the sandbox.
	RunArgv []string
}

// Compiled reports whether the language needs a compile step.
func (s LanguageSpec) Compiled() bool {
	return s.CompileCommand != ""
}

// LanguageConfig is the user-facing override format for one language.
type LanguageConfig struct {
	Extension      string   `mapstructure:"extension" json:"extension"`
	CompileCommand string   `mapstructure:"compile_command" json:"compile_command"`
	RunCommand     []string `mapstructure:"run_command" json:"run_command"`
}

// defaultSpecs are the canonical language definitions.
var defaultSpecs = map[model.Language]LanguageSpec{
	model.LanguageCpp: {
		Extension:      "cpp",
		CompileCommand: "g++ -O2 --std=c++17 -o {exe} {src}",
		RunArgv:        []string{placeholderName},
	},
	model.LanguageC: {
		Extension:      "c",
		CompileCommand: "gcc -O2 -o {exe} {src}",
		RunArgv:        []string{placeholderName},
	},
	model.LanguageOCaml: {
		Extension:      "ml",
		CompileCommand: "ocamlopt -S -o {exe} {src}",
		RunArgv:        []string{placeholderName},
	},
	model.LanguagePython: {
		Extension: "py",
		RunArgv:   []string{"/usr/bin/python3", placeholderFile},
	},
}

// Registry resolves language specs, with optional config overrides on top
// of the canonical defaults.
type Registry struct {
	specs map[model.Language]LanguageSpec
}

// NewRegistry builds a registry from the defaults plus overrides.
// Overrides may change extensions or flags but cannot add languages
// outside the closed enumeration.
func NewRegistry(overrides map[string]LanguageConfig) (*Registry, error) {
	specs := make(map[model.Language]LanguageSpec, len(defaultSpecs))
	for lang, spec := range defaultSpecs {
		specs[lang] = spec
	}
	for name, cfg := range overrides {
		lang := model.Language(name)
		if !lang.Valid() {
			return nil, appErr.Newf(appErr.LanguageNotSupported, "unknown language %q in config", name)
		}
		spec := specs[lang]
		if cfg.Extension != "" {
			spec.Extension = cfg.Extension
		}
		if cfg.CompileCommand != "" {
			spec.CompileCommand = cfg.CompileCommand
		}
		if len(cfg.RunCommand) > 0 {
			spec.RunArgv = append([]string(nil), cfg.RunCommand...)
		}
		specs[lang] = spec
	}
	return &Registry{specs: specs}, nil
}

// Spec returns the spec for a language.
func (r *Registry) Spec(lang model.Language) (LanguageSpec, error) {
	spec, ok := r.specs[lang]
	if !ok {
		return LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", lang)
	}
	return spec, nil
}

// compileArgv expands the compile command template into an argv.
func (s LanguageSpec) compileArgv(srcPath, exePath string) ([]string, error) {
	tokens, err := shlex.Split(s.CompileCommand)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ConfigInvalid, "bad compile command for extension %q", s.Extension)
	}
	if len(tokens) == 0 {
		return nil, appErr.Newf(appErr.ConfigInvalid, "empty compile command")
	}
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		tok = strings.ReplaceAll(tok, placeholderSrc, srcPath)
		tok = strings.ReplaceAll(tok, placeholderExe, exePath)
		out[i] = tok
	}
	return out, nil
}

// runArgv expands the run argv template.
func (s LanguageSpec) runArgv(fileName, exeName string) []string {
	out := make([]string, len(s.RunArgv))
	for i, tok := range s.RunArgv {
		tok = strings.ReplaceAll(tok, placeholderFile, fileName)
		tok = strings.ReplaceAll(tok, placeholderName, exeName)
		out[i] = tok
	}
	return out
}

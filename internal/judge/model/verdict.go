// Package model defines the judge worker's core data types and wire formats.
package model

// Verdict is the outcome of a submission or a single test case.
// The string value is the lowercase wire code reported to the frontend.
type Verdict string

const (
	VerdictAC  Verdict = "ac"
	VerdictCE  Verdict = "ce"
	VerdictWA  Verdict = "wa"
	VerdictRE  Verdict = "re"
	VerdictTLE Verdict = "tle"
	VerdictSE  Verdict = "se"
	VerdictPS  Verdict = "ps"
	VerdictSK  Verdict = "sk"
)

// Valid reports whether v is one of the known verdict codes.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictAC, VerdictCE, VerdictWA, VerdictRE, VerdictTLE, VerdictSE, VerdictPS, VerdictSK:
		return true
	}
	return false
}

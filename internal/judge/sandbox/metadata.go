package sandbox

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"cpjudge/internal/judge/model"
	appErr "cpjudge/pkg/errors"
)

// Metadata keys written by the sandbox after each run.
const (
	MetaKeyStatus = "status"
	MetaKeyTime   = "time"
	MetaKeyMaxRSS = "max-rss"
)

// Sandbox status values.
const (
	StatusRE = "RE" // non-zero exit
	StatusSG = "SG" // killed by signal
	StatusTO = "TO" // time limit
	StatusXX = "XX" // internal sandbox fault
)

// Metadata is the parsed key:value metadata file. Unknown keys are kept
// but ignored by classification.
type Metadata map[string]string

// ParseMetadataFile reads a sandbox metadata file: one key:value pair per
// line, split on the first colon, whitespace trimmed. Blank lines are
// skipped and unknown keys are retained rather than rejected.
func ParseMetadataFile(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.MetadataInvalid, "open metadata file failed")
	}
	defer f.Close()

	meta := make(Metadata)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.MetadataInvalid, "read metadata file failed")
	}
	return meta, nil
}

// Status returns the sandbox status value, if present.
func (m Metadata) Status() (string, bool) {
	s, ok := m[MetaKeyStatus]
	return s, ok
}

// Time returns the reported CPU time in seconds.
func (m Metadata) Time() (float64, bool) {
	raw, ok := m[MetaKeyTime]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// MaxRSSKB returns the reported peak resident set size in kilobytes.
func (m Metadata) MaxRSSKB() (int64, bool) {
	raw, ok := m[MetaKeyMaxRSS]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Classify maps the sandbox status to a verdict. An absent status means
// the program ran to completion, which is AC until grading says otherwise.
// Anything not explicitly recognized, XX included, is a system error.
func (m Metadata) Classify() model.Verdict {
	status, ok := m.Status()
	if !ok {
		return model.VerdictAC
	}
	switch status {
	case StatusRE, StatusSG:
		return model.VerdictRE
	case StatusTO:
		return model.VerdictTLE
	default:
		return model.VerdictSE
	}
}

package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"cpjudge/internal/judge/model"
)

// Normalize canonicalizes program output before comparison: a trailing
// newline is guaranteed, and trailing whitespace is stripped from every
// line. Leading whitespace is significant and preserved.
func Normalize(s string) string {
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}

// gradeExact compares normalized actual output against normalized expected
// output.
func gradeExact(actual, expected string) (model.Verdict, float64) {
	if Normalize(actual) == Normalize(expected) {
		return model.VerdictAC, fullScore
	}
	return model.VerdictWA, 0
}

const fullScore = 100

// graderStdin frames the test input and the contestant's output for the
// grader: each block is preceded by its line count on its own line. The
// input is guaranteed a trailing newline and the output is normalized, so
// the line count is exactly the number of newlines in the block.
func graderStdin(input, output string) string {
	if !strings.HasSuffix(input, "\n") {
		input += "\n"
	}
	output = Normalize(output)

	var b strings.Builder
	b.Grow(len(input) + len(output) + 32)
	fmt.Fprintf(&b, "%d\n", strings.Count(input, "\n"))
	b.WriteString(input)
	fmt.Fprintf(&b, "%d\n", strings.Count(output, "\n"))
	b.WriteString(output)
	return b.String()
}

// parseGraderOutput interprets the grader's stdout. The first
// whitespace-delimited token decides the verdict; "PS" carries a partial
// score between 0 and 100 in the second token. Anything else means the
// grader itself misbehaved.
func parseGraderOutput(out string) (model.Verdict, float64, bool) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return model.VerdictSE, 0, false
	}
	switch fields[0] {
	case "AC":
		return model.VerdictAC, fullScore, true
	case "WA":
		return model.VerdictWA, 0, true
	case "PS":
		if len(fields) < 2 {
			return model.VerdictSE, 0, false
		}
		score, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || score < 0 || score > fullScore {
			return model.VerdictSE, 0, false
		}
		return model.VerdictPS, score, true
	default:
		return model.VerdictSE, 0, false
	}
}

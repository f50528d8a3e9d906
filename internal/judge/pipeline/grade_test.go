package pipeline

import (
	"testing"

	"cpjudge/internal/judge/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "\n"},
		{"abc", "abc\n"},
		{"abc\n", "abc\n"},
		{"abc  \n", "abc\n"},
		{"abc\t\r\n", "abc\n"},
		{"a \nb\t\n", "a\nb\n"},
		{"  a\n", "  a\n"}, // leading whitespace is significant
		{"a\n\n\n", "a\n\n\n"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", "x", "x \ny\t\n", "a\r\n", "  lead\n"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent on %q: %q then %q", in, once, twice)
		}
	}
}

func TestParseGraderOutput(t *testing.T) {
	tests := []struct {
		in      string
		verdict model.Verdict
		score   float64
		ok      bool
	}{
		{"AC", model.VerdictAC, 100, true},
		{"AC\n", model.VerdictAC, 100, true},
		{"WA", model.VerdictWA, 0, true},
		{"PS 55", model.VerdictPS, 55, true},
		{"PS 0", model.VerdictPS, 0, true},
		{"PS 100", model.VerdictPS, 100, true},
		{"PS 12.5\n", model.VerdictPS, 12.5, true},
		{"PS", model.VerdictSE, 0, false},
		{"PS 101", model.VerdictSE, 0, false},
		{"PS -1", model.VerdictSE, 0, false},
		{"PS abc", model.VerdictSE, 0, false},
		{"", model.VerdictSE, 0, false},
		{"ac", model.VerdictSE, 0, false},
		{"ACCEPTED", model.VerdictSE, 0, false},
	}
	for _, tt := range tests {
		verdict, score, ok := parseGraderOutput(tt.in)
		if verdict != tt.verdict || score != tt.score || ok != tt.ok {
			t.Errorf("parseGraderOutput(%q) = (%s, %v, %v), want (%s, %v, %v)",
				tt.in, verdict, score, ok, tt.verdict, tt.score, tt.ok)
		}
	}
}

func TestGraderStdinFraming(t *testing.T) {
	tests := []struct {
		input  string
		output string
		want   string
	}{
		{"1 2\n", "Quadrant I\n", "1\n1 2\n1\nQuadrant I\n"},
		{"1 2\n", "3\n", "1\n1 2\n1\n3\n"},
		// input gets a trailing newline, output is normalized
		{"a\nb", "x  \ny\t", "2\na\nb\n2\nx\ny\n"},
		{"5 6\n7 8\n", "13\n", "2\n5 6\n7 8\n1\n13\n"},
	}
	for _, tt := range tests {
		if got := graderStdin(tt.input, tt.output); got != tt.want {
			t.Errorf("graderStdin(%q, %q) = %q, want %q", tt.input, tt.output, got, tt.want)
		}
	}
}

func TestGradeExact(t *testing.T) {
	if v, s := gradeExact("42\n", "42"); v != model.VerdictAC || s != 100 {
		t.Fatalf("expected full score ac, got %s %v", v, s)
	}
	if v, s := gradeExact("42\n", "24"); v != model.VerdictWA || s != 0 {
		t.Fatalf("expected wa, got %s %v", v, s)
	}
}

package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"cpjudge/internal/judge/model"
)

func writeMeta(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}
	return path
}

func TestParseMetadataFile(t *testing.T) {
	path := writeMeta(t, "time:0.002\ntime-wall:0.025\nmax-rss:2564\ncsw-voluntary:6\n\nexitcode:0\n")
	meta, err := ParseMetadataFile(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if tm, ok := meta.Time(); !ok || tm != 0.002 {
		t.Fatalf("time = %v %v", tm, ok)
	}
	if rss, ok := meta.MaxRSSKB(); !ok || rss != 2564 {
		t.Fatalf("max-rss = %v %v", rss, ok)
	}
	if _, ok := meta.Status(); ok {
		t.Fatalf("status should be absent")
	}
	// unknown keys are kept
	if meta["csw-voluntary"] != "6" {
		t.Fatalf("unknown key dropped: %v", meta)
	}
}

func TestParseMetadataFileTrimsAndSplitsOnFirstColon(t *testing.T) {
	path := writeMeta(t, "  status : TO \nmessage:Time limit exceeded: wall clock\n")
	meta, err := ParseMetadataFile(path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s, _ := meta.Status(); s != "TO" {
		t.Fatalf("status = %q", s)
	}
	if meta["message"] != "Time limit exceeded: wall clock" {
		t.Fatalf("value with colon mangled: %q", meta["message"])
	}
}

func TestParseMetadataFileMissing(t *testing.T) {
	if _, err := ParseMetadataFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status string // empty means absent
		want   model.Verdict
	}{
		{"", model.VerdictAC},
		{StatusRE, model.VerdictRE},
		{StatusSG, model.VerdictRE},
		{StatusTO, model.VerdictTLE},
		{StatusXX, model.VerdictSE},
		{"??", model.VerdictSE},
	}
	for _, tt := range tests {
		meta := Metadata{}
		if tt.status != "" {
			meta[MetaKeyStatus] = tt.status
		}
		if got := meta.Classify(); got != tt.want {
			t.Errorf("Classify(status=%q) = %s, want %s", tt.status, got, tt.want)
		}
	}
}

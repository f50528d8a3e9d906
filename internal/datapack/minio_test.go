package datapack

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

type archiveEntry struct {
	name string
	body string
	dir  bool
}

func buildArchive(t *testing.T, entries []archiveEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pack.tar.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	zw, err := zstd.NewWriter(f)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644}
		if e.dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0755
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("write body: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zstd: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestExtractDataPack(t *testing.T) {
	archive := buildArchive(t, []archiveEntry{
		{name: "aplusb", dir: true},
		{name: "aplusb/1.1.in", body: "1 2\n"},
		{name: "aplusb/1.1.out", body: "3\n"},
		{name: "matching/1.1.in", body: "abc\n"}, // parent dir created implicitly
	})

	dst := t.TempDir()
	if err := extractDataPack(archive, dst); err != nil {
		t.Fatalf("extract: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "aplusb", "1.1.in"))
	if err != nil || string(got) != "1 2\n" {
		t.Fatalf("1.1.in = %q err=%v", got, err)
	}
	if _, err := os.Stat(filepath.Join(dst, "matching", "1.1.in")); err != nil {
		t.Fatalf("implicit parent dir: %v", err)
	}
}

func TestExtractDataPackRejectsTraversal(t *testing.T) {
	archive := buildArchive(t, []archiveEntry{
		{name: "../escape.txt", body: "nope"},
	})
	if err := extractDataPack(archive, t.TempDir()); err == nil {
		t.Fatalf("expected traversal rejection")
	}
}

func TestNewPullerSelection(t *testing.T) {
	p, err := NewPuller(Config{Source: SourceNone})
	if err != nil {
		t.Fatalf("none: %v", err)
	}
	if _, ok := p.(NoopPuller); !ok {
		t.Fatalf("expected noop, got %T", p)
	}

	p, err = NewPuller(Config{Source: SourceGit, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("git: %v", err)
	}
	if _, ok := p.(*GitPuller); !ok {
		t.Fatalf("expected git puller, got %T", p)
	}

	if _, err := NewPuller(Config{Source: "ftp"}); err == nil {
		t.Fatalf("expected error for unknown source")
	}

	if _, err := NewPuller(Config{Source: SourceMinio}); err == nil {
		t.Fatalf("minio without bucket/object must fail")
	}
}

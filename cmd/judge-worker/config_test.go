package main

import (
	"os"
	"path/filepath"
	"testing"

	appErr "cpjudge/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `{"secret_key": "s", "frontend_url": "http://frontend:5000/"}`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8000" || cfg.Workers != 2 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.FrontendURL != "http://frontend:5000" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.FrontendURL)
	}
	if cfg.RunDir != "run" || cfg.CacheDir != "task_info_cache" || cfg.StateFile != "task_info_path.json" {
		t.Fatalf("path defaults wrong: %+v", cfg)
	}
	if cfg.Queue.Backend != "memory" {
		t.Fatalf("queue backend default = %q", cfg.Queue.Backend)
	}
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	path := writeConfig(t, `{"frontend_url": "http://frontend"}`)
	if _, err := loadConfig(path); !appErr.Is(err, appErr.ConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
}

func TestLoadConfigRequiresFrontendOutsideDebug(t *testing.T) {
	path := writeConfig(t, `{"secret_key": "s"}`)
	if _, err := loadConfig(path); !appErr.Is(err, appErr.ConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}

	path = writeConfig(t, `{"secret_key": "s", "debug": true}`)
	if _, err := loadConfig(path); err != nil {
		t.Fatalf("debug mode must not require a frontend: %v", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if !appErr.Is(err, appErr.ConfigMissing) {
		t.Fatalf("expected config missing, got %v", err)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("FRONTEND_URL", "http://other:9000")
	t.Setenv("JUDGE_WORKERS", "8")
	t.Setenv("JUDGE_DEBUG", "true")

	path := writeConfig(t, `{"secret_key": "s", "frontend_url": "http://frontend", "workers": 2}`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FrontendURL != "http://other:9000" {
		t.Fatalf("FRONTEND_URL override ignored: %q", cfg.FrontendURL)
	}
	if cfg.Workers != 8 {
		t.Fatalf("JUDGE_WORKERS override ignored: %d", cfg.Workers)
	}
	if !cfg.Debug {
		t.Fatalf("JUDGE_DEBUG override ignored")
	}
}

func TestLoadConfigLanguageOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"secret_key": "s",
		"frontend_url": "http://frontend",
		"languages": {
			"cpp": {"compile_command": "g++ -O3 -o {exe} {src}"}
		}
	}`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Languages["cpp"].CompileCommand != "g++ -O3 -o {exe} {src}" {
		t.Fatalf("language override lost: %+v", cfg.Languages)
	}
}

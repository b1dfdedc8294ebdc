package rtconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestValidateRejectsBadOverflowPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mailbox.OverflowPolicy = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for bogus overflow policy")
	}
}

func TestLoadFromFileMergesWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "app:\n  name: custom-app\ndirectory:\n  shards: 4\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader()
	cfg, err := loader.LoadFromFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.App.Name != "custom-app" {
		t.Fatalf("expected overridden app name, got %s", cfg.App.Name)
	}
	if cfg.Directory.Shards != 4 {
		t.Fatalf("expected overridden shard count, got %d", cfg.Directory.Shards)
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("expected default log level preserved, got %s", cfg.Log.Level)
	}
}

func TestAutoLoadFallsBackToDefaultsWhenNoFileFound(t *testing.T) {
	loader := NewLoader().SetSearchPaths([]string{t.TempDir()})
	cfg, err := loader.AutoLoad()
	if err != nil {
		t.Fatalf("expected fallback to defaults, got error: %v", err)
	}
	if cfg.App.Name != DefaultConfig().App.Name {
		t.Fatalf("expected default app name")
	}
}

func TestEnvOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  name: file-app\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("ACTORSTAGE_APP_NAME", "env-app")

	loader := NewLoader()
	cfg, err := loader.LoadFromFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.App.Name != "env-app" {
		t.Fatalf("expected env override to win, got %s", cfg.App.Name)
	}
}

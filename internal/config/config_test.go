package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesPrecedence(t *testing.T) {
	dir := t.TempDir()
	zjjDir := filepath.Join(dir, ".zjj")
	if err := os.MkdirAll(zjjDir, 0o755); err != nil {
		t.Fatal(err)
	}
	projectCfg := "[workspace]\nmain_branch = \"trunk\"\n"
	if err := os.WriteFile(filepath.Join(zjjDir, "config.toml"), []byte(projectCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ZJJ_MAX_ATTEMPTS", "7")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace.MainBranch != "trunk" {
		t.Fatalf("project file should override default, got %q", cfg.Workspace.MainBranch)
	}
	if cfg.MergeTrain.MaxAttempts != 7 {
		t.Fatalf("env var should override project file, got %d", cfg.MergeTrain.MaxAttempts)
	}
	if cfg.Lock.MaxRetries != 5 {
		t.Fatalf("unset field should keep default, got %d", cfg.Lock.MaxRetries)
	}
}

package integrity

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateFlagsMissingWorkspaceDirectory(t *testing.T) {
	v := NewValidator(nil)
	result := v.Validate(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))
	if result.IsValid {
		t.Fatalf("expected validation to fail for a missing directory")
	}
	if result.Issues[0].CorruptionType != "missing_workspace_directory" {
		t.Fatalf("unexpected issue: %+v", result.Issues[0])
	}
}

func TestBackupCreateListRestoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	ws := filepath.Join(t.TempDir(), "ws")
	if err := os.MkdirAll(filepath.Join(ws, ".jj"), 0755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(ws, "file.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	bm := NewBackupManager(root)
	meta, err := bm.Create("my-feature", ws, "pre-repair")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if meta.Checksum == "" {
		t.Fatalf("expected a non-empty checksum")
	}

	list, err := bm.List("my-feature")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v entries=%d", err, len(list))
	}

	if err := os.WriteFile(filepath.Join(ws, "file.txt"), []byte("corrupted"), 0644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if err := bm.Restore(meta.ID, "my-feature", ws); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, err := os.ReadFile(filepath.Join(ws, "file.txt"))
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if string(restored) != "hello" {
		t.Fatalf("expected restored content 'hello', got %q", restored)
	}
}

func TestRecoveryLoggerSuppressedWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.log")
	logger := NewRecoveryLogger(path, false)
	if err := logger.Log("should not appear"); err != nil {
		t.Fatalf("log: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no recovery.log file when logging is disabled")
	}
}

func TestRecoveryLoggerWritesISO8601PrefixedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.log")
	logger := NewRecoveryLogger(path, true)
	for i := 0; i < 3; i++ {
		if err := logger.Log("event"); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "[") {
			t.Fatalf("expected ISO-8601-bracketed prefix, got %q", l)
		}
	}
}

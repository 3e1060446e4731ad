package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidateRejectsOutOfRangeDebounce(t *testing.T) {
	cases := []Config{
		{Enabled: true, DebounceMs: 5},
		{Enabled: true, DebounceMs: 5001},
		{Enabled: false, DebounceMs: 250},
	}
	for _, c := range cases {
		if err := c.Validate(); err == nil {
			t.Errorf("expected Validate to reject %+v", c)
		}
	}
	if err := (Config{Enabled: true, DebounceMs: 250}).Validate(); err != nil {
		t.Errorf("expected valid config to pass, got %v", err)
	}
}

func TestRapidChangesCollapseIntoOneEvent(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Enabled: true, DebounceMs: 50, Paths: []string{dir}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	path := filepath.Join(dir, "issues.db")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case ev := <-w.Events():
		if ev.WorkspacePath != path {
			t.Fatalf("unexpected event path: %s", ev.WorkspacePath)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced event")
	}

	select {
	case ev := <-w.Events():
		t.Fatalf("expected rapid writes to collapse into one event, got a second: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	<-done
}

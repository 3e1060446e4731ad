package terminal

import (
	"context"
	"testing"

	"github.com/vinayprograms/zjj/internal/zerr"
)

type fakeRunner struct {
	stdout, stderr string
	exitCode       int
	spawnErr       error
	gotArgs        []string
}

func (f *fakeRunner) Run(ctx context.Context, args []string) (string, string, int, error) {
	f.gotArgs = args
	return f.stdout, f.stderr, f.exitCode, f.spawnErr
}

func TestOpenTabBuildsExpectedArgs(t *testing.T) {
	fr := &fakeRunner{}
	a := &Adapter{Runner: fr}
	if err := a.OpenTab(context.Background(), "zjj:my-feature", "/ws/my-feature", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"action", "new-tab", "--name", "zjj:my-feature", "--cwd", "/ws/my-feature"}
	if len(fr.gotArgs) != len(want) {
		t.Fatalf("args mismatch: got %v want %v", fr.gotArgs, want)
	}
}

func TestOpenTabRejectsEmptyName(t *testing.T) {
	a := &Adapter{Runner: &fakeRunner{}}
	err := a.OpenTab(context.Background(), "", "/ws", nil)
	if !zerr.Is(err, zerr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFocusTabClassifiesNotRunning(t *testing.T) {
	fr := &fakeRunner{stderr: "No session found, zellij is not running", exitCode: 1}
	a := &Adapter{Runner: fr}
	err := a.FocusTab(context.Background(), "zjj:x")
	if err == nil {
		t.Fatal("expected error")
	}
	ze := err.(*zerr.Error)
	if ze.Context["reason"] != "ZellijNotRunning" {
		t.Fatalf("expected ZellijNotRunning reason, got %+v", ze.Context)
	}
}

func TestRunningSessionsToleratesNoDaemon(t *testing.T) {
	fr := &fakeRunner{exitCode: 1}
	a := &Adapter{Runner: fr}
	sessions, err := a.RunningSessions(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessions != nil {
		t.Fatalf("expected nil sessions when daemon is down, got %v", sessions)
	}
}

package vcsadapter

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

func (f *fakeRunner) Run(ctx context.Context, dir string, args []string) (string, string, int, error) {
	f.gotArgs = args
	return f.stdout, f.stderr, f.exitCode, f.spawnErr
}

func TestWorkspaceCreateSuccess(t *testing.T) {
	fr := &fakeRunner{}
	a := &Adapter{Runner: fr}
	if err := a.WorkspaceCreate(context.Background(), "/repo", "feature-x", "/repo/workspaces/feature-x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"workspace", "add", "--name", "feature-x", "/repo/workspaces/feature-x"}
	if len(fr.gotArgs) != len(want) {
		t.Fatalf("args mismatch: got %v", fr.gotArgs)
	}
}

func TestWorkspaceCreateEmptyNameIsValidationError(t *testing.T) {
	a := &Adapter{Runner: &fakeRunner{}}
	err := a.WorkspaceCreate(context.Background(), "/repo", "", "/repo/x")
	if !zerr.Is(err, zerr.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNonZeroExitClassifiesNotFound(t *testing.T) {
	fr := &fakeRunner{stderr: "Error: no such workspace: ghost", exitCode: 1}
	a := &Adapter{Runner: fr}
	err := a.WorkspaceForget(context.Background(), "/repo", "ghost")
	if err == nil {
		t.Fatal("expected error")
	}
	ze := err.(*zerr.Error)
	if ze.Context["is_not_found"] != true {
		t.Fatalf("expected is_not_found=true, got %+v", ze.Context)
	}
}

func TestSpawnFailureClassifiesNotFound(t *testing.T) {
	fr := &fakeRunner{spawnErr: errSpawn{}}
	a := &Adapter{Runner: fr}
	err := a.WorkspaceStatus2(context.Background(), "/repo")
	if err == nil {
		t.Fatal("expected error")
	}
	ze, ok := err.(*zerr.Error)
	if !ok || ze.Context["is_not_found"] != true {
		t.Fatalf("expected is_not_found=true, got %v", err)
	}
}

type errSpawn struct{}

func (errSpawn) Error() string { return "exec: \"jj\": executable file not found in $PATH" }

// WorkspaceStatus2 is a tiny test-only shim avoiding tuple-return awkwardness.
func (a *Adapter) WorkspaceStatus2(ctx context.Context, path string) error {
	_, err := a.WorkspaceStatus(ctx, path)
	return err
}

func TestParseStatusBucketsAndToleratesUnknownLines(t *testing.T) {
	out := "Working copy changes:\nM src/main.go\nA src/new.go\nD src/old.go\nR src/moved.go\n??? weird line with odd tag\n"
	s := parseStatus(out)
	if len(s.Modified) != 1 || len(s.Added) != 1 || len(s.Deleted) != 1 || len(s.Renamed) != 1 {
		t.Fatalf("bucket mismatch: %+v", s)
	}
	if len(s.Unknown) != 1 {
		t.Fatalf("expected 1 unknown line, got %+v", s.Unknown)
	}
}

func TestParseStatusCleanWorkspace(t *testing.T) {
	s := parseStatus("The working copy has no changes.\n")
	if !s.Clean() {
		t.Fatalf("expected clean status, got %+v", s)
	}
}

package lifecycle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vinayprograms/zjj/internal/config"
	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/oplock"
	"github.com/vinayprograms/zjj/internal/store"
	"github.com/vinayprograms/zjj/internal/terminal"
	"github.com/vinayprograms/zjj/internal/vcsadapter"
)

type scriptedVCSRunner struct{}

func (scriptedVCSRunner) Run(ctx context.Context, dir string, args []string) (string, string, int, error) {
	return "", "", 0, nil
}

type scriptedTerminalRunner struct{}

func (scriptedTerminalRunner) Run(ctx context.Context, args []string) (string, string, int, error) {
	return "", "", 0, nil
}

func newTestManager(t *testing.T) (*Manager, *event.MemorySink) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "zjj.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	repoRoot := t.TempDir()
	sink := event.NewMemorySink()
	cfg := config.Default()
	cfg.Workspace.Dir = filepath.Join(repoRoot, "workspaces")

	mgr := New(
		s,
		&vcsadapter.Adapter{Runner: scriptedVCSRunner{}},
		&terminal.Adapter{Runner: scriptedTerminalRunner{}},
		oplock.New(repoRoot),
		sink,
		cfg,
		repoRoot,
	)
	return mgr, sink
}

func TestCreateTransitionsToActiveAndEmitsEvents(t *testing.T) {
	mgr, sink := newTestManager(t)
	sess, err := mgr.Create(context.Background(), "feature-x", CreateOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.Status != store.StatusActive {
		t.Fatalf("expected Active status, got %s", sess.Status)
	}

	var sawSession, sawResult bool
	for _, e := range sink.All() {
		switch e.Type {
		case string(event.KindSession):
			sawSession = true
		case string(event.KindResult):
			sawResult = true
		}
	}
	if !sawSession || !sawResult {
		t.Fatalf("expected Session and Result events, got %+v", sink.All())
	}
}

func TestCreateDuplicateNameIsConflict(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, err := mgr.Create(context.Background(), "dup", CreateOptions{}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := mgr.Create(context.Background(), "dup", CreateOptions{}); err == nil {
		t.Fatalf("expected conflict on duplicate create")
	}
}

func TestRemoveDeletesSessionRow(t *testing.T) {
	mgr, _ := newTestManager(t)
	if _, err := mgr.Create(context.Background(), "to-remove", CreateOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mgr.Remove(context.Background(), "to-remove", RemoveOptions{}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	sess, err := mgr.Store.Get("to-remove")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected session row to be gone after remove")
	}
}

func TestSyncRequiresActiveOrFailed(t *testing.T) {
	mgr, _ := newTestManager(t)
	// a session still in Creating (never promoted) cannot be synced
	if _, err := mgr.Store.Create("stuck", "/ws/stuck"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mgr.Sync(context.Background(), "stuck", SyncOptions{}); err == nil {
		t.Fatalf("expected sync on Creating session to fail")
	}
}

func TestStatusEmitsSummaryWhenEmpty(t *testing.T) {
	mgr, sink := newTestManager(t)
	if err := mgr.Status(context.Background(), nil); err != nil {
		t.Fatalf("status: %v", err)
	}
	all := sink.All()
	if len(all) != 1 || all[0].Message != "No active sessions" {
		t.Fatalf("expected a single 'No active sessions' summary, got %+v", all)
	}
}

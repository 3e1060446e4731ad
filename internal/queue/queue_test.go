package queue

import (
	"path/filepath"
	"testing"

	"github.com/vinayprograms/zjj/internal/store"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "zjj.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestAddIsIdempotentByDedupeKey(t *testing.T) {
	q := newTestQueue(t)
	if _, err := q.Store.Create("ws1", "/ws/ws1"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	e1, err := q.Add("ws1", "", 5, "dedupe-a", 3, 600)
	if err != nil {
		t.Fatalf("add 1: %v", err)
	}
	e2, err := q.Add("ws1", "", 5, "dedupe-a", 3, 600)
	if err != nil {
		t.Fatalf("add 2: %v", err)
	}
	if e1.ID != e2.ID {
		t.Fatalf("expected idempotent add to return same entry, got %d vs %d", e1.ID, e2.ID)
	}
}

func TestStatsReflectsQueueOccupancy(t *testing.T) {
	q := newTestQueue(t)
	for _, name := range []string{"ws1", "ws2"} {
		if _, err := q.Store.Create(name, "/ws/"+name); err != nil {
			t.Fatalf("create session %s: %v", name, err)
		}
	}
	if _, err := q.Add("ws1", "", 1, "", 3, 600); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := q.Add("ws2", "", 1, "", 3, 600); err != nil {
		t.Fatalf("add: %v", err)
	}
	stats, err := q.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 2 {
		t.Fatalf("expected 2 pending, got %+v", stats)
	}
}

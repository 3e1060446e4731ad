package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/vinayprograms/zjj/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "zjj.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestReachTargetStatusWalksEveryImportPathTarget(t *testing.T) {
	for target := range importPaths {
		s := openTestStore(t)
		if _, err := s.Create("sess", "/ws/sess"); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := reachTargetStatus(s, "sess", target); err != nil {
			t.Fatalf("reach %s: %v", target, err)
		}
		got, err := s.Get("sess")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Status != target {
			t.Fatalf("expected status %s, got %s", target, got.Status)
		}
	}
}

func TestExportImportRoundTripPreservesSessionRows(t *testing.T) {
	src := openTestStore(t)
	if _, err := src.Create("feature-x", "/ws/feature-x"); err != nil {
		t.Fatalf("create: %v", err)
	}
	active := store.StatusActive
	branch := "feature-x"
	meta := json.RawMessage(`{"bead_id":"B-1"}`)
	if err := src.Update("feature-x", store.SessionUpdate{Status: &active, Branch: &branch, Metadata: meta}); err != nil {
		t.Fatalf("update: %v", err)
	}

	original, err := src.Get("feature-x")
	if err != nil {
		t.Fatalf("get original: %v", err)
	}

	exported := exportedSession{
		Name: original.Name, WorkspacePath: original.WorkspacePath, Status: string(original.Status),
		Branch: original.Branch, CreatedAt: original.CreatedAt, Metadata: string(original.Metadata),
	}

	dst := openTestStore(t)
	if _, err := dst.CreateWithTimestamp(exported.Name, exported.WorkspacePath, exported.CreatedAt); err != nil {
		t.Fatalf("create with timestamp: %v", err)
	}
	if err := reachTargetStatus(dst, exported.Name, store.Status(exported.Status)); err != nil {
		t.Fatalf("reach target status: %v", err)
	}
	b := exported.Branch
	m := json.RawMessage(exported.Metadata)
	if err := dst.Update(exported.Name, store.SessionUpdate{Branch: &b, Metadata: m}); err != nil {
		t.Fatalf("apply branch/metadata: %v", err)
	}

	restored, err := dst.Get(exported.Name)
	if err != nil {
		t.Fatalf("get restored: %v", err)
	}

	if restored.Name != original.Name || restored.WorkspacePath != original.WorkspacePath ||
		restored.Status != original.Status || restored.Branch != original.Branch ||
		restored.CreatedAt != original.CreatedAt || string(restored.Metadata) != string(original.Metadata) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", restored, original)
	}
}

package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "zjj.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestValidateNameRejectsTraversalAndReserved(t *testing.T) {
	cases := []string{"", "..", "a/../b", "default", "ROOT", " leading", "trailing ", "-dash-start"}
	for _, name := range cases {
		if err := ValidateName(name); err == nil {
			t.Errorf("expected ValidateName(%q) to fail", name)
		}
	}
	if err := ValidateName("feature-123"); err != nil {
		t.Errorf("expected valid name to pass, got %v", err)
	}
}

func TestCreateAndTransition(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Create("feature-x", "/ws/feature-x"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Update("feature-x", SessionUpdate{Status: statusPtr(StatusActive)}); err != nil {
		t.Fatalf("transition to Active: %v", err)
	}
	err := s.Update("feature-x", SessionUpdate{Status: statusPtr(StatusCreating)})
	if err == nil {
		t.Fatalf("expected invalid transition Active->Creating to fail")
	}
}

func statusPtr(s Status) *Status { return &s }

func TestCreateDuplicateNameIsConflict(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Create("dup", "/ws/dup"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Create("dup", "/ws/dup2"); err == nil {
		t.Fatalf("expected conflict on duplicate name")
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Create("a", "/ws/a"); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := s.Create("b", "/ws/b"); err != nil {
		t.Fatalf("create b: %v", err)
	}
	cp, err := s.CreateCheckpoint("before cleanup")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if len(cp.Sessions) != 2 {
		t.Fatalf("expected 2 sessions snapshotted, got %d", len(cp.Sessions))
	}
	if _, err := s.Delete("a"); err != nil {
		t.Fatalf("delete a: %v", err)
	}
	if err := s.RestoreCheckpoint(cp.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	sessions, err := s.List(&Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions after restore, got %d", len(sessions))
	}
}

func TestConflictLogIsAppendOnly(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.RecordConflictResolution(ConflictResolution{
		Timestamp: now, Session: "a", File: "f.go", Strategy: "ours", Decider: "ai",
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	n, err := s.CountConflictResolutions()
	if err != nil || n != 1 {
		t.Fatalf("expected 1 record, got %d err=%v", n, err)
	}
	if _, err := s.RecordConflictResolution(ConflictResolution{
		Timestamp: now, Session: "a", File: "f.go", Strategy: "ours", Decider: "robot",
	}); err == nil {
		t.Fatalf("expected invalid decider to be rejected")
	}
}

func TestQueueClaimExclusivityAndPriorityOrder(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"low", "high"} {
		if _, err := s.Create(name, "/ws/"+name); err != nil {
			t.Fatalf("create session %s: %v", name, err)
		}
	}
	if _, err := s.AddToQueue("low", "", 10, "", 3, 600); err != nil {
		t.Fatalf("add low: %v", err)
	}
	if _, err := s.AddToQueue("high", "", 1, "", 3, 600); err != nil {
		t.Fatalf("add high: %v", err)
	}
	entry, err := s.NextWithLock("agent-1", 30)
	if err != nil {
		t.Fatalf("next_with_lock agent-1: %v", err)
	}
	if entry == nil || entry.Workspace != "high" {
		t.Fatalf("expected priority-1 entry claimed first, got %+v", entry)
	}
	// a second agent should not be able to steal the lock while it's live
	other, err := s.NextWithLock("agent-2", 30)
	if err != nil {
		t.Fatalf("next_with_lock agent-2: %v", err)
	}
	if other != nil {
		t.Fatalf("expected agent-2 to be denied the live lock, got %+v", other)
	}
	if ok, err := s.ReleaseProcessingLock("agent-1"); err != nil || !ok {
		t.Fatalf("release: ok=%v err=%v", ok, err)
	}
}

func TestMarkFailedRetryableReturnsToPending(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Create("ws", "/ws/ws"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := s.AddToQueue("ws", "", 5, "", 2, 600); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.NextWithLock("agent-1", 30); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.MarkFailed("ws", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	entry, err := s.GetByWorkspace("ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.Status != QueuePending {
		t.Fatalf("expected requeue to Pending after retryable failure, got %s", entry.Status)
	}
	if err := s.MarkFailed("ws", true); err != nil {
		t.Fatalf("mark failed 2: %v", err)
	}
	entry, _ = s.GetByWorkspace("ws")
	if entry.Status != QueueFailedTerminal {
		t.Fatalf("expected terminal failure after exhausting attempts, got %s", entry.Status)
	}
}

package filelock

import (
	"path/filepath"
	"testing"
)

func TestTryAcquireExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l1, err := TryAcquire(path)
	if err != nil || l1 == nil {
		t.Fatalf("first acquire: lock=%v err=%v", l1, err)
	}
	defer l1.Release()

	l2, err := TryAcquire(path)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if l2 != nil {
		t.Fatalf("expected second acquire to be denied while first holds the lock")
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l1, err := TryAcquire(path)
	if err != nil || l1 == nil {
		t.Fatalf("first acquire: lock=%v err=%v", l1, err)
	}
	if err := l1.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	l2, err := TryAcquire(path)
	if err != nil || l2 == nil {
		t.Fatalf("reacquire after release: lock=%v err=%v", l2, err)
	}
	defer l2.Release()
}

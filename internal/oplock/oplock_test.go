package oplock

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunSerializesConcurrentCallers(t *testing.T) {
	repo := t.TempDir()
	s := New(repo)

	var active int32
	var maxObserved int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Run(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				if n > atomic.LoadInt32(&maxObserved) {
					atomic.StoreInt32(&maxObserved, n)
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if maxObserved != 1 {
		t.Fatalf("expected exclusive execution, observed max concurrency %d", maxObserved)
	}
}

func TestAcquireTimesOutWhenLockHeldExternally(t *testing.T) {
	repo := t.TempDir()
	lockPath := filepath.Join(repo, ".zjj", ".vcs.lock")
	_ = lockPath

	s := New(repo)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.Run(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Run(ctx, func(ctx context.Context) error { return nil })
	close(release)
	if err == nil {
		t.Fatalf("expected second Run to fail while first holds the process mutex")
	}
}

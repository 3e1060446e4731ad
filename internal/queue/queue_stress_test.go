package queue

import (
	"strconv"
	"sync"
	"testing"
	"time"
)

// TestConcurrentAgentsClaimEachWorkspaceExactlyOnce mirrors the original
// queue stress suite: N agents compete with NextWithLock for N pending
// work items, retrying with backoff on contention, and the claimed set
// must contain no duplicates and cover every item exactly once.
func TestConcurrentAgentsClaimEachWorkspaceExactlyOnce(t *testing.T) {
	const n = 20
	q := newTestQueue(t)

	for i := 0; i < n; i++ {
		if _, err := q.Store.Create(workspaceName(i), "/ws/"+workspaceName(i)); err != nil {
			t.Fatalf("create session %d: %v", i, err)
		}
		if _, err := q.Add(workspaceName(i), "", 5, "", 3, 600); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	stats, err := q.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != n {
		t.Fatalf("expected %d pending entries, got %d", n, stats.Pending)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make([]string, 0, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			backoff := time.Millisecond
			for attempt := 0; attempt < 20; attempt++ {
				entry, err := q.NextWithLock(agentID, 30)
				if err != nil {
					return
				}
				if entry == nil {
					time.Sleep(backoff)
					if backoff < 50*time.Millisecond {
						backoff *= 2
					}
					continue
				}
				if _, err := q.MarkCompleted(entry.Workspace); err != nil {
					return
				}
				if _, err := q.ReleaseLock(agentID); err != nil {
					return
				}
				mu.Lock()
				claimed = append(claimed, entry.Workspace)
				mu.Unlock()
				return
			}
		}(agentName(i))
	}
	wg.Wait()

	if len(claimed) != n {
		t.Fatalf("expected %d successful claims, got %d", n, len(claimed))
	}
	seen := make(map[string]bool, n)
	for _, ws := range claimed {
		if seen[ws] {
			t.Fatalf("workspace %s claimed more than once", ws)
		}
		seen[ws] = true
	}
	if len(seen) != n {
		t.Fatalf("expected every workspace claimed exactly once, got %d distinct", len(seen))
	}
}

// TestProcessingLockIsExclusiveUnderConcurrency hammers NextWithLock from
// many goroutines against a single entry and requires exactly one winner.
func TestProcessingLockIsExclusiveUnderConcurrency(t *testing.T) {
	const agents = 30
	q := newTestQueue(t)
	if _, err := q.Store.Create("contended", "/ws/contended"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := q.Add("contended", "", 5, "", 3, 600); err != nil {
		t.Fatalf("add: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func(agentID string) {
			defer wg.Done()
			entry, err := q.NextWithLock(agentID, 30)
			if err != nil || entry == nil {
				return
			}
			mu.Lock()
			winners++
			mu.Unlock()
		}(agentName(i))
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one agent to win the lock, got %d", winners)
	}
}

func workspaceName(i int) string { return "workspace-" + strconv.Itoa(i) }
func agentName(i int) string     { return "agent-" + strconv.Itoa(i) }

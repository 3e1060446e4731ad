// Package oplock is the Operation Serializer (spec §4.C). It prevents
// concurrent jj invocations within one repository from corrupting the
// operation graph by funnelling every VCS-mutating call through a single
// critical section: first an in-process mutex keyed by the repository's
// canonical path, then a cross-process filesystem lock at
// <repo_root>/.zjj/.vcs.lock. Locks release in the reverse order they were
// acquired.
package oplock

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vinayprograms/zjj/internal/filelock"
	"github.com/vinayprograms/zjj/internal/zerr"
)

// backoffSchedule is the exact retry schedule from spec §4.C: 50, 100, 200,
// 400ms, capped at 5 attempts total.
var backoffSchedule = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
}

const maxRetries = 5

var (
	registryMu sync.Mutex
	registry   = map[string]*sync.Mutex{}
)

func processMutexFor(repoRoot string) *sync.Mutex {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := filepath.Clean(repoRoot)
	m, ok := registry[key]
	if !ok {
		m = &sync.Mutex{}
		registry[key] = m
	}
	return m
}

// Serializer guards one repository's VCS operations.
type Serializer struct {
	repoRoot string
	lockPath string
}

// New returns a Serializer for the repository rooted at repoRoot.
func New(repoRoot string) *Serializer {
	return &Serializer{
		repoRoot: filepath.Clean(repoRoot),
		lockPath: filepath.Join(repoRoot, ".zjj", ".vcs.lock"),
	}
}

// held represents an acquired critical section; release it via Release.
type held struct {
	procMu *sync.Mutex
	fl     *filelock.Lock
}

// Acquire enters the critical section: it takes the in-process mutex first,
// then retries the filesystem lock with the fixed backoff schedule. Waiting
// for the mutex ends with a Timeout error once ctx is done. On exhaustion it
// returns a LockTimeout error and releases the process mutex before
// returning.
func (s *Serializer) acquire(ctx context.Context) (*held, error) {
	op := "oplock.acquire"
	procMu := processMutexFor(s.repoRoot)
	for !procMu.TryLock() {
		select {
		case <-ctx.Done():
			return nil, zerr.Wrap(zerr.Timeout, op, "context cancelled while waiting for the process mutex", ctx.Err())
		case <-time.After(time.Millisecond):
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.lockPath), 0755); err != nil {
		procMu.Unlock()
		return nil, zerr.Wrap(zerr.IO, op, "failed to create lock directory", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			procMu.Unlock()
			return nil, zerr.Wrap(zerr.Timeout, op, "context cancelled while acquiring lock", err)
		}
		fl, err := filelock.TryAcquire(s.lockPath)
		if err != nil {
			procMu.Unlock()
			return nil, err
		}
		if fl != nil {
			return &held{procMu: procMu, fl: fl}, nil
		}
		if attempt < len(backoffSchedule) {
			select {
			case <-time.After(backoffSchedule[attempt]):
			case <-ctx.Done():
				procMu.Unlock()
				return nil, zerr.Wrap(zerr.Timeout, op, "context cancelled while acquiring lock", ctx.Err())
			}
		}
	}
	procMu.Unlock()
	return nil, zerr.New(zerr.LockTimeout, op, "failed to acquire operation lock after retries").
		WithContext("repo_root", s.repoRoot).WithContext("max_retries", maxRetries)
}

func (h *held) release() error {
	var ferr error
	if h.fl != nil {
		ferr = h.fl.Release()
	}
	h.procMu.Unlock()
	return ferr
}

// Run acquires the critical section, invokes fn, and releases regardless of
// fn's outcome (process mutex released last, mirroring acquisition order in
// reverse).
func (s *Serializer) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	h, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer h.release()
	return fn(ctx)
}

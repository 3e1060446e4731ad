// Package queue is the Merge Queue described in spec §4.E. The durable,
// claim-exclusive primitives already live in internal/store (the Session
// Store is the single owner of the merge_queue and processing_lock
// tables, per spec §9 "Arena-style database ownership"); this package is
// the thin public API the Merge Train and CLI call, adding the
// dedupe-by-key and stats-formatting conveniences spec §4.E names.
package queue

import (
	"github.com/vinayprograms/zjj/internal/store"
)

// Queue is the Merge Queue (spec §4.E).
type Queue struct {
	Store *store.Store
}

// New wires a Queue over a Session Store.
func New(s *store.Store) *Queue {
	return &Queue{Store: s}
}

// Entry re-exports store.QueueEntry so callers need not import both
// packages for the same type.
type Entry = store.QueueEntry

// Status re-exports store.QueueStatus.
type Status = store.QueueStatus

const (
	StatusPending         = store.QueuePending
	StatusClaimed         = store.QueueClaimed
	StatusRebasing        = store.QueueRebasing
	StatusTesting         = store.QueueTesting
	StatusReadyToMerge    = store.QueueReadyToMerge
	StatusMerging         = store.QueueMerging
	StatusMerged          = store.QueueMerged
	StatusFailedRetryable = store.QueueFailedRetryable
	StatusFailedTerminal  = store.QueueFailedTerminal
	StatusCancelled       = store.QueueCancelled
)

// Add inserts a Pending entry, returning the existing Pending row instead
// if dedupeKey collides with one already queued (spec §4.E "idempotent").
func (q *Queue) Add(workspace, beadID string, priority int, dedupeKey string, maxAttempts, testTimeoutSecs int) (*Entry, error) {
	return q.Store.AddToQueue(workspace, beadID, priority, dedupeKey, maxAttempts, testTimeoutSecs)
}

// NextWithLock tries to acquire the ProcessingLock for agentID and claim
// the oldest highest-priority Pending entry. Returns (nil, nil) if none is
// available or the lock is held live by a different agent.
func (q *Queue) NextWithLock(agentID string, leaseSecs int) (*Entry, error) {
	return q.Store.NextWithLock(agentID, leaseSecs)
}

// ReleaseLock releases the ProcessingLock only if agentID owns it.
func (q *Queue) ReleaseLock(agentID string) (bool, error) {
	return q.Store.ReleaseProcessingLock(agentID)
}

// ExtendLock extends the ProcessingLock's expiry only if agentID owns it.
func (q *Queue) ExtendLock(agentID string, secs int) (bool, error) {
	return q.Store.ExtendLock(agentID, secs)
}

// MarkCompleted transitions workspace's entry to Merged.
func (q *Queue) MarkCompleted(workspace string) (bool, error) {
	return q.Store.MarkCompleted(workspace)
}

// MarkFailed increments attempt_count and transitions to FailedTerminal or
// FailedRetryable per spec §4.E's retry classification.
func (q *Queue) MarkFailed(workspace string, retryable bool) error {
	return q.Store.MarkFailed(workspace, retryable)
}

// GetByWorkspace returns the most recent queue entry for workspace.
func (q *Queue) GetByWorkspace(workspace string) (*Entry, error) {
	return q.Store.GetByWorkspace(workspace)
}

// List returns queue entries, optionally filtered by status, in priority
// order (ties broken by insertion order).
func (q *Queue) List(status *Status) ([]*Entry, error) {
	var filter *store.QueueFilter
	if status != nil {
		filter = &store.QueueFilter{Status: status}
	}
	return q.Store.ListQueue(filter)
}

// Stats aggregates pending/processing/completed/failed counts (spec §4.E
// "stats()").
type Stats = store.QueueStats

// Stats returns the current aggregate queue occupancy.
func (q *Queue) Stats() (Stats, error) {
	return q.Store.QueueStats()
}

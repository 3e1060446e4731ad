package store

import (
	"database/sql"
	"time"

	"github.com/vinayprograms/zjj/internal/zerr"
)

// QueueStatus is a MergeQueueEntry's state (spec §3, §4.E).
type QueueStatus string

const (
	QueuePending          QueueStatus = "Pending"
	QueueClaimed          QueueStatus = "Claimed"
	QueueRebasing         QueueStatus = "Rebasing"
	QueueTesting          QueueStatus = "Testing"
	QueueReadyToMerge     QueueStatus = "ReadyToMerge"
	QueueMerging          QueueStatus = "Merging"
	QueueMerged           QueueStatus = "Merged"
	QueueFailedRetryable  QueueStatus = "FailedRetryable"
	QueueFailedTerminal   QueueStatus = "FailedTerminal"
	QueueCancelled        QueueStatus = "Cancelled"
)

// QueueEntry is one row of the merge_queue table (spec §3).
type QueueEntry struct {
	ID               int64
	Workspace        string
	BeadID           string
	Priority         int
	Status           QueueStatus
	AddedAt          int64
	StartedAt        *int64
	CompletedAt      *int64
	AgentID          string
	HeadSHA          string
	TestedAgainstSHA string
	AttemptCount     int
	MaxAttempts      int
	TestTimeoutSecs  int
	DedupeKey        string
}

// QueueFilter narrows List() results.
type QueueFilter struct {
	Status *QueueStatus
}

// QueueStats summarises queue occupancy (spec §4.E `stats()`).
type QueueStats struct {
	Pending, Processing, Completed, Failed int
}

// AddToQueue inserts a Pending entry. If dedupeKey is non-empty and another
// Pending entry already carries it, the existing entry is returned instead
// (idempotent add, spec §4.E).
func (s *Store) AddToQueue(workspace, beadID string, priority int, dedupeKey string, maxAttempts, testTimeoutSecs int) (*QueueEntry, error) {
	op := "store.add_to_queue"
	if dedupeKey != "" {
		existing, err := s.queueRow(`WHERE dedupe_key = ? AND status = ?`, dedupeKey, string(QueuePending))
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}
	now := time.Now().Unix()
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	res, err := s.db.Exec(`INSERT INTO merge_queue (workspace, bead_id, priority, status, added_at, attempt_count, max_attempts, test_timeout_secs, dedupe_key)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`, workspace, nullableString(beadID), priority, string(QueuePending), now, maxAttempts, testTimeoutSecs, nullableString(dedupeKey))
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, op, "insert failed", err)
	}
	id, _ := res.LastInsertId()
	return s.queueRow(`WHERE id = ?`, id)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NextWithLock atomically acquires the ProcessingLock for agentID (upserting
// it if absent or expired) and, on success, claims the oldest
// highest-priority Pending entry. Returns (nil, nil) if no entry is
// available or the lock is held by another live agent (spec §4.E).
func (s *Store) NextWithLock(agentID string, leaseSecs int) (*QueueEntry, error) {
	op := "store.next_with_lock"
	tx, err := s.db.Begin()
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, op, "begin tx failed", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	var lockAgent string
	var expiresAt int64
	err = tx.QueryRow(`SELECT agent_id, expires_at FROM processing_lock WHERE id = 1`).Scan(&lockAgent, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
		// no lock held; acquire it
	case err != nil:
		return nil, zerr.Wrap(zerr.DatabaseError, op, "lock query failed", err)
	case expiresAt > now && lockAgent != agentID:
		// held by a live, different agent
		return nil, nil
	}

	if leaseSecs <= 0 {
		leaseSecs = 30
	}
	newExpiry := now + int64(leaseSecs)
	if _, err := tx.Exec(`INSERT INTO processing_lock (id, agent_id, expires_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET agent_id = excluded.agent_id, expires_at = excluded.expires_at`, agentID, newExpiry); err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, op, "lock upsert failed", err)
	}

	row := tx.QueryRow(`SELECT id, workspace, bead_id, priority, status, added_at, started_at, completed_at, agent_id, head_sha, tested_against_sha, attempt_count, max_attempts, test_timeout_secs, dedupe_key
		FROM merge_queue WHERE status = ? ORDER BY priority ASC, added_at ASC LIMIT 1`, string(QueuePending))
	entry, err := scanQueueEntry(row)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if err := tx.Commit(); err != nil {
			return nil, zerr.Wrap(zerr.DatabaseError, op, "commit failed", err)
		}
		return nil, nil
	}

	if _, err := tx.Exec(`UPDATE merge_queue SET status = ?, agent_id = ?, started_at = ? WHERE id = ?`,
		string(QueueClaimed), agentID, now, entry.ID); err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, op, "claim update failed", err)
	}
	entry.Status = QueueClaimed
	entry.AgentID = agentID
	entry.StartedAt = &now

	if err := tx.Commit(); err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, op, "commit failed", err)
	}
	return entry, nil
}

// ReleaseProcessingLock releases the lock only if agentID currently owns it.
func (s *Store) ReleaseProcessingLock(agentID string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM processing_lock WHERE id = 1 AND agent_id = ?`, agentID)
	if err != nil {
		return false, zerr.Wrap(zerr.DatabaseError, "store.release_processing_lock", "delete failed", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ExtendLock extends the current lock's expiry only if agentID owns it.
func (s *Store) ExtendLock(agentID string, secs int) (bool, error) {
	newExpiry := time.Now().Unix() + int64(secs)
	res, err := s.db.Exec(`UPDATE processing_lock SET expires_at = ? WHERE id = 1 AND agent_id = ?`, newExpiry, agentID)
	if err != nil {
		return false, zerr.Wrap(zerr.DatabaseError, "store.extend_lock", "update failed", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCompleted transitions a workspace's queue entry to Merged.
func (s *Store) MarkCompleted(workspace string) (bool, error) {
	now := time.Now().Unix()
	res, err := s.db.Exec(`UPDATE merge_queue SET status = ?, completed_at = ?
		WHERE workspace = ? AND status NOT IN (?, ?, ?)`,
		string(QueueMerged), now, workspace, string(QueueMerged), string(QueueFailedTerminal), string(QueueCancelled))
	if err != nil {
		return false, zerr.Wrap(zerr.DatabaseError, "store.mark_completed", "update failed", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkFailed increments attempt_count and transitions to FailedTerminal
// (when attempts are exhausted or the error is non-retryable) or
// FailedRetryable (returning the entry to the pending pool) otherwise
// (spec §4.E).
func (s *Store) MarkFailed(workspace string, retryable bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.mark_failed", "begin tx failed", err)
	}
	defer tx.Rollback()

	var id int64
	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT id, attempt_count, max_attempts FROM merge_queue WHERE workspace = ?
		ORDER BY id DESC LIMIT 1`, workspace).Scan(&id, &attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return zerr.New(zerr.NotFound, "store.mark_failed", "queue entry not found").WithContext("workspace", workspace)
	}
	if err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.mark_failed", "query failed", err)
	}

	attempts++
	newStatus := QueueFailedRetryable
	if !retryable || attempts >= maxAttempts {
		newStatus = QueueFailedTerminal
	}
	now := time.Now().Unix()
	if _, err := tx.Exec(`UPDATE merge_queue SET attempt_count = ?, status = ?, completed_at = ? WHERE id = ?`,
		attempts, string(newStatus), now, id); err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.mark_failed", "update failed", err)
	}
	if newStatus == QueueFailedRetryable {
		// returns to the pending pool (spec §4.E "mark_failed")
		if _, err := tx.Exec(`UPDATE merge_queue SET status = ?, agent_id = NULL, started_at = NULL WHERE id = ?`,
			string(QueuePending), id); err != nil {
			return zerr.Wrap(zerr.DatabaseError, "store.mark_failed", "requeue failed", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.mark_failed", "commit failed", err)
	}
	return nil
}

// GetByWorkspace returns the most recent queue entry for a workspace.
func (s *Store) GetByWorkspace(workspace string) (*QueueEntry, error) {
	return s.queueRow(`WHERE workspace = ? ORDER BY id DESC LIMIT 1`, workspace)
}

// ListQueue returns queue entries, optionally filtered by status.
func (s *Store) ListQueue(filter *QueueFilter) ([]*QueueEntry, error) {
	q := `SELECT id, workspace, bead_id, priority, status, added_at, started_at, completed_at, agent_id, head_sha, tested_against_sha, attempt_count, max_attempts, test_timeout_secs, dedupe_key FROM merge_queue`
	var args []any
	if filter != nil && filter.Status != nil {
		q += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}
	q += ` ORDER BY priority ASC, added_at ASC`
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.list_queue", "query failed", err)
	}
	defer rows.Close()

	var out []*QueueEntry
	for rows.Next() {
		e, err := scanQueueEntryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// QueueStats returns aggregate occupancy counts.
func (s *Store) QueueStats() (QueueStats, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM merge_queue GROUP BY status`)
	if err != nil {
		return QueueStats{}, zerr.Wrap(zerr.DatabaseError, "store.queue_stats", "query failed", err)
	}
	defer rows.Close()

	var stats QueueStats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return QueueStats{}, zerr.Wrap(zerr.DatabaseError, "store.queue_stats", "scan failed", err)
		}
		switch QueueStatus(status) {
		case QueuePending:
			stats.Pending += n
		case QueueClaimed, QueueRebasing, QueueTesting, QueueReadyToMerge, QueueMerging:
			stats.Processing += n
		case QueueMerged:
			stats.Completed += n
		case QueueFailedRetryable, QueueFailedTerminal:
			stats.Failed += n
		}
	}
	return stats, rows.Err()
}

// SetQueueStatus transitions an entry to an arbitrary status (used by the
// Merge Train to step through Claimed -> Rebasing -> Testing -> ReadyToMerge
// -> Merging).
func (s *Store) SetQueueStatus(id int64, status QueueStatus) error {
	_, err := s.db.Exec(`UPDATE merge_queue SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.set_queue_status", "update failed", err)
	}
	return nil
}

func (s *Store) queueRow(whereClause string, args ...any) (*QueueEntry, error) {
	row := s.db.QueryRow(`SELECT id, workspace, bead_id, priority, status, added_at, started_at, completed_at, agent_id, head_sha, tested_against_sha, attempt_count, max_attempts, test_timeout_secs, dedupe_key
		FROM merge_queue `+whereClause, args...)
	return scanQueueEntry(row)
}

func scanQueueEntry(row *sql.Row) (*QueueEntry, error) {
	var e QueueEntry
	var beadID, agentID, headSHA, testedSHA, dedupeKey sql.NullString
	var startedAt, completedAt sql.NullInt64
	err := row.Scan(&e.ID, &e.Workspace, &beadID, &e.Priority, &e.Status, &e.AddedAt, &startedAt, &completedAt,
		&agentID, &headSHA, &testedSHA, &e.AttemptCount, &e.MaxAttempts, &e.TestTimeoutSecs, &dedupeKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.queue_row", "scan failed", err)
	}
	fillQueueNullables(&e, beadID, agentID, headSHA, testedSHA, dedupeKey, startedAt, completedAt)
	return &e, nil
}

func scanQueueEntryRows(rows *sql.Rows) (*QueueEntry, error) {
	var e QueueEntry
	var beadID, agentID, headSHA, testedSHA, dedupeKey sql.NullString
	var startedAt, completedAt sql.NullInt64
	err := rows.Scan(&e.ID, &e.Workspace, &beadID, &e.Priority, &e.Status, &e.AddedAt, &startedAt, &completedAt,
		&agentID, &headSHA, &testedSHA, &e.AttemptCount, &e.MaxAttempts, &e.TestTimeoutSecs, &dedupeKey)
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.queue_rows", "scan failed", err)
	}
	fillQueueNullables(&e, beadID, agentID, headSHA, testedSHA, dedupeKey, startedAt, completedAt)
	return &e, nil
}

func fillQueueNullables(e *QueueEntry, beadID, agentID, headSHA, testedSHA, dedupeKey sql.NullString, startedAt, completedAt sql.NullInt64) {
	e.BeadID = beadID.String
	e.AgentID = agentID.String
	e.HeadSHA = headSHA.String
	e.TestedAgainstSHA = testedSHA.String
	e.DedupeKey = dedupeKey.String
	if startedAt.Valid {
		v := startedAt.Int64
		e.StartedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Int64
		e.CompletedAt = &v
	}
}

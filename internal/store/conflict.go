package store

import (
	"strings"
	"time"

	"github.com/vinayprograms/zjj/internal/zerr"
)

// ConflictResolution is an append-only audit record (spec §3). The API
// surface intentionally has no Update/Delete method — grounded on
// original_source/crates/zjj-core/src/coordination/conflict_resolutions.rs,
// whose design principles list "Append-Only: No UPDATE or DELETE
// operations" first.
type ConflictResolution struct {
	ID         int64
	Timestamp  string
	Session    string
	File       string
	Strategy   string
	Reason     string
	Confidence string
	Decider    string // "ai" or "human"
}

func validDecider(d string) bool { return d == "ai" || d == "human" }

func validISO8601(ts string) bool {
	_, err := time.Parse(time.RFC3339, ts)
	return err == nil
}

// RecordConflictResolution appends one audit record. It enforces non-empty
// session/file/strategy, a valid decider, and a parseable ISO-8601 timestamp
// (spec §4.G).
func (s *Store) RecordConflictResolution(cr ConflictResolution) (int64, error) {
	op := "store.record_conflict_resolution"
	if strings.TrimSpace(cr.Session) == "" || strings.TrimSpace(cr.File) == "" || strings.TrimSpace(cr.Strategy) == "" {
		return 0, zerr.New(zerr.Validation, op, "session/file/strategy must be non-empty")
	}
	if !validDecider(cr.Decider) {
		return 0, zerr.New(zerr.Validation, op, "decider must be ai or human")
	}
	if !validISO8601(cr.Timestamp) {
		return 0, zerr.New(zerr.Validation, op, "timestamp must be valid ISO-8601")
	}

	res, err := s.db.Exec(`INSERT INTO conflict_resolutions (timestamp, session, file, strategy, reason, confidence, decider)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, cr.Timestamp, cr.Session, cr.File, cr.Strategy, cr.Reason, cr.Confidence, cr.Decider)
	if err != nil {
		return 0, zerr.Wrap(zerr.DatabaseError, op, "insert failed", err)
	}
	return res.LastInsertId()
}

// ListConflictResolutionsBySession returns all records for a session, oldest first.
func (s *Store) ListConflictResolutionsBySession(session string) ([]ConflictResolution, error) {
	return s.queryConflicts(`WHERE session = ? ORDER BY id ASC`, session)
}

// ListConflictResolutionsByDecider returns all records by decider, oldest first.
func (s *Store) ListConflictResolutionsByDecider(decider string) ([]ConflictResolution, error) {
	return s.queryConflicts(`WHERE decider = ? ORDER BY id ASC`, decider)
}

// ListConflictResolutionsByTimeRange returns records with timestamp in
// [start, end), oldest first. start must be < end.
func (s *Store) ListConflictResolutionsByTimeRange(start, end string) ([]ConflictResolution, error) {
	if start >= end {
		return nil, zerr.New(zerr.Validation, "store.list_conflict_resolutions_by_time_range", "start must be < end")
	}
	return s.queryConflicts(`WHERE timestamp >= ? AND timestamp < ? ORDER BY id ASC`, start, end)
}

// CountConflictResolutions returns the total row count (used to verify
// append-only invariants in tests, spec §8 property 8).
func (s *Store) CountConflictResolutions() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM conflict_resolutions`).Scan(&n)
	if err != nil {
		return 0, zerr.Wrap(zerr.DatabaseError, "store.count_conflict_resolutions", "query failed", err)
	}
	return n, nil
}

func (s *Store) queryConflicts(whereAndOrder string, args ...any) ([]ConflictResolution, error) {
	rows, err := s.db.Query(`SELECT id, timestamp, session, file, strategy, reason, confidence, decider FROM conflict_resolutions `+whereAndOrder, args...)
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.query_conflicts", "query failed", err)
	}
	defer rows.Close()

	var out []ConflictResolution
	for rows.Next() {
		var cr ConflictResolution
		var reason, confidence *string
		if err := rows.Scan(&cr.ID, &cr.Timestamp, &cr.Session, &cr.File, &cr.Strategy, &reason, &confidence, &cr.Decider); err != nil {
			return nil, zerr.Wrap(zerr.DatabaseError, "store.query_conflicts", "scan failed", err)
		}
		if reason != nil {
			cr.Reason = *reason
		}
		if confidence != nil {
			cr.Confidence = *confidence
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}

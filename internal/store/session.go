// Package store is the SQLite-backed Session Store described in spec §4.B.
//
// It owns every Session / CheckpointSet / MergeQueueEntry / ProcessingLock /
// ConflictResolution row (spec §3 "Ownership"); every other component reads
// and mutates through the methods here, never through raw SQL of its own.
// The driver choice (mattn/go-sqlite3 via database/sql) and the
// schema-on-open / upsert shape are grounded on the teacher's alternate
// src/internal/session/sqlite.go.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vinayprograms/zjj/internal/zerr"
)

// Status is a Session's lifecycle state (spec §3, §4.B).
type Status string

const (
	StatusCreating  Status = "Creating"
	StatusActive    Status = "Active"
	StatusSyncing   Status = "Syncing"
	StatusSynced    Status = "Synced"
	StatusPaused    Status = "Paused"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// transitions is the allowed status graph from spec §4.B.
var transitions = map[Status]map[Status]bool{
	StatusCreating:  {StatusActive: true, StatusFailed: true},
	StatusActive:    {StatusSyncing: true, StatusPaused: true, StatusCompleted: true, StatusFailed: true},
	StatusSyncing:   {StatusSynced: true, StatusFailed: true},
	StatusSynced:    {StatusActive: true, StatusPaused: true, StatusCompleted: true},
	StatusPaused:    {StatusActive: true, StatusCompleted: true, StatusFailed: true},
	StatusCompleted: {StatusActive: true},
	StatusFailed:    {StatusCreating: true},
}

// ValidateStatusTransition reports whether old -> next is an allowed edge.
func ValidateStatusTransition(old, next Status) error {
	allowed, ok := transitions[old]
	if ok && allowed[next] {
		return nil
	}
	allowedList := make([]string, 0, len(allowed))
	for s := range allowed {
		allowedList = append(allowedList, string(s))
	}
	e := zerr.New(zerr.InvalidTransition, "validate_status_transition",
		fmt.Sprintf("invalid transition %s -> %s", old, next))
	e.WithContext("actual", string(old))
	e.WithContext("allowed", allowedList)
	return e
}

// Session is the central entity described in spec §3.
type Session struct {
	Name          string
	WorkspacePath string
	ZellijTab     string
	Status        Status
	Branch        string
	CreatedAt     int64
	UpdatedAt     int64
	LastSynced    *int64
	Metadata      json.RawMessage
}

// ZellijTabFor deterministically derives the tab id from a session name.
func ZellijTabFor(name string) string { return "zjj:" + name }

var reservedNames = map[string]bool{"default": true, "root": true}

// nameDisallowed matches any ASCII control character, whitespace, or shell
// metacharacter from spec §3. Path traversal ("..") is rejected separately
// so both the source's "blacklist" test style and its "explicit traversal
// check" test style pass (spec §9 Open Question).
var nameDisallowed = regexp.MustCompile(`[\x00-\x20\x7f$` + "`" + `|&;<>()\[\]{}\\/*?]`)

// ValidateName enforces spec §3's session-name rules.
func ValidateName(name string) error {
	op := "validate_name"
	if len(name) == 0 || len(name) > 64 {
		return zerr.New(zerr.Validation, op, "name must be 1-64 bytes")
	}
	for _, r := range name {
		if r > 127 {
			return zerr.New(zerr.Validation, op, "name must be ASCII")
		}
	}
	if strings.TrimSpace(name) != name {
		return zerr.New(zerr.Validation, op, "name must not have leading/trailing whitespace")
	}
	if reservedNames[strings.ToLower(name)] {
		return zerr.New(zerr.Validation, op, "name is reserved")
	}
	first := name[0]
	if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return zerr.New(zerr.Validation, op, "name must start with a letter")
	}
	if strings.Contains(name, "..") {
		return zerr.New(zerr.Validation, op, "name must not contain path traversal sequences")
	}
	if nameDisallowed.MatchString(name) {
		return zerr.New(zerr.Validation, op, "name contains disallowed characters")
	}
	for _, r := range name {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-'
		if !ok {
			return zerr.New(zerr.Validation, op, "name must match [A-Za-z0-9._-]")
		}
	}
	return nil
}

// Filter narrows List() results.
type Filter struct {
	Status *Status
}

// SessionUpdate is a partial update applied by Update().
type SessionUpdate struct {
	Status     *Status
	Branch     *string
	LastSynced *int64
	Metadata   json.RawMessage
}

// Store is the Session Store (spec §4.B).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.open", "failed to open database", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init() error {
	const schema = `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS sessions (
		name TEXT PRIMARY KEY,
		workspace_path TEXT NOT NULL UNIQUE,
		zellij_tab TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		branch TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		last_synced INTEGER,
		metadata TEXT
	);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS checkpoint_sessions (
		checkpoint_id TEXT NOT NULL REFERENCES checkpoints(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		workspace_path TEXT NOT NULL,
		status TEXT NOT NULL,
		branch TEXT,
		metadata TEXT
	);

	CREATE TABLE IF NOT EXISTS merge_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workspace TEXT NOT NULL REFERENCES sessions(name) ON DELETE CASCADE,
		bead_id TEXT,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		added_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		agent_id TEXT,
		head_sha TEXT,
		tested_against_sha TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		test_timeout_secs INTEGER NOT NULL DEFAULT 600,
		dedupe_key TEXT
	);

	CREATE TABLE IF NOT EXISTS processing_lock (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		agent_id TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conflict_resolutions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		session TEXT NOT NULL,
		file TEXT NOT NULL,
		strategy TEXT NOT NULL,
		reason TEXT,
		confidence TEXT,
		decider TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conflict_session ON conflict_resolutions(session);
	CREATE INDEX IF NOT EXISTS idx_conflict_timestamp ON conflict_resolutions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_conflict_decider ON conflict_resolutions(decider);
	CREATE INDEX IF NOT EXISTS idx_conflict_session_timestamp ON conflict_resolutions(session, timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.init", "failed to create schema", err)
	}
	return nil
}

// Create reserves a new session row with status Creating.
func (s *Store) Create(name, workspacePath string) (*Session, error) {
	return s.CreateWithTimestamp(name, workspacePath, time.Now().Unix())
}

// CreateWithTimestamp is Create with an explicit created_at, used by import
// (spec §4.B).
func (s *Store) CreateWithTimestamp(name, workspacePath string, createdAt int64) (*Session, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	tab := ZellijTabFor(name)
	_, err := s.db.Exec(`INSERT INTO sessions (name, workspace_path, zellij_tab, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, name, workspacePath, tab, string(StatusCreating), createdAt, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, zerr.New(zerr.Conflict, "store.create", "session already exists").WithContext("name", name)
		}
		return nil, zerr.Wrap(zerr.DatabaseError, "store.create", "insert failed", err)
	}
	return &Session{Name: name, WorkspacePath: workspacePath, ZellijTab: tab, Status: StatusCreating, CreatedAt: createdAt, UpdatedAt: createdAt}, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Get returns a session by name, or nil if it does not exist.
func (s *Store) Get(name string) (*Session, error) {
	row := s.db.QueryRow(`SELECT name, workspace_path, zellij_tab, status, branch, created_at, updated_at, last_synced, metadata
		FROM sessions WHERE name = ?`, name)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*Session, error) {
	var sess Session
	var branch sql.NullString
	var lastSynced sql.NullInt64
	var metadata sql.NullString
	err := row.Scan(&sess.Name, &sess.WorkspacePath, &sess.ZellijTab, &sess.Status, &branch, &sess.CreatedAt, &sess.UpdatedAt, &lastSynced, &metadata)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.get", "query failed", err)
	}
	if branch.Valid {
		sess.Branch = branch.String
	}
	if lastSynced.Valid {
		v := lastSynced.Int64
		sess.LastSynced = &v
	}
	if metadata.Valid {
		sess.Metadata = json.RawMessage(metadata.String)
	}
	return &sess, nil
}

// List returns sessions, optionally filtered by status, in insertion order.
func (s *Store) List(filter *Filter) ([]*Session, error) {
	q := `SELECT name, workspace_path, zellij_tab, status, branch, created_at, updated_at, last_synced, metadata FROM sessions`
	var args []any
	if filter != nil && filter.Status != nil {
		q += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}
	q += ` ORDER BY created_at ASC, rowid ASC`
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.list", "query failed", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		var branch sql.NullString
		var lastSynced sql.NullInt64
		var metadata sql.NullString
		if err := rows.Scan(&sess.Name, &sess.WorkspacePath, &sess.ZellijTab, &sess.Status, &branch, &sess.CreatedAt, &sess.UpdatedAt, &lastSynced, &metadata); err != nil {
			return nil, zerr.Wrap(zerr.DatabaseError, "store.list", "scan failed", err)
		}
		if branch.Valid {
			sess.Branch = branch.String
		}
		if lastSynced.Valid {
			v := lastSynced.Int64
			sess.LastSynced = &v
		}
		if metadata.Valid {
			sess.Metadata = json.RawMessage(metadata.String)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// Update applies a partial update, bumping updated_at. If Status changes,
// the transition must be legal per ValidateStatusTransition.
func (s *Store) Update(name string, upd SessionUpdate) error {
	existing, err := s.Get(name)
	if err != nil {
		return err
	}
	if existing == nil {
		return zerr.New(zerr.NotFound, "store.update", "session not found").WithContext("name", name)
	}

	now := time.Now().Unix()
	newStatus := existing.Status
	if upd.Status != nil {
		if err := ValidateStatusTransition(existing.Status, *upd.Status); err != nil {
			return err
		}
		newStatus = *upd.Status
	}
	newBranch := existing.Branch
	if upd.Branch != nil {
		newBranch = *upd.Branch
	}
	var newLastSynced any
	if upd.LastSynced != nil {
		newLastSynced = *upd.LastSynced
	} else if existing.LastSynced != nil {
		newLastSynced = *existing.LastSynced
	}
	var newMetadata any
	if upd.Metadata != nil {
		newMetadata = string(upd.Metadata)
	} else if existing.Metadata != nil {
		newMetadata = string(existing.Metadata)
	}

	_, err = s.db.Exec(`UPDATE sessions SET status = ?, branch = ?, updated_at = ?, last_synced = ?, metadata = ? WHERE name = ?`,
		string(newStatus), newBranch, now, newLastSynced, newMetadata, name)
	if err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.update", "update failed", err)
	}
	return nil
}

// Delete removes a session row; FK cascades remove its merge-queue entries.
func (s *Store) Delete(name string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE name = ?`, name)
	if err != nil {
		return false, zerr.Wrap(zerr.DatabaseError, "store.delete", "delete failed", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DB exposes the underlying *sql.DB. The queue package goes through the
// Store's methods instead; every table in the file is created and owned here.
func (s *Store) DB() *sql.DB { return s.db }

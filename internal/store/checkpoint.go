package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/zjj/internal/zerr"
)

// CheckpointSet is an immutable snapshot of all sessions at a point in time
// (spec §3).
type CheckpointSet struct {
	ID          string
	CreatedAt   int64
	Description string
	Sessions    []CheckpointSession
}

// CheckpointSession is one child row of a CheckpointSet.
type CheckpointSession struct {
	Name          string
	WorkspacePath string
	Status        Status
	Branch        string
	Metadata      string
}

// CreateCheckpoint snapshots every current session into a new CheckpointSet,
// as one INSERT into checkpoints plus one INSERT per session into
// checkpoint_sessions, all in a single transaction (spec §4.B).
func (s *Store) CreateCheckpoint(description string) (*CheckpointSet, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.create_checkpoint", "begin tx failed", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	now := time.Now().Unix()
	if _, err := tx.Exec(`INSERT INTO checkpoints (id, created_at, description) VALUES (?, ?, ?)`, id, now, description); err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.create_checkpoint", "insert checkpoint failed", err)
	}

	rows, err := tx.Query(`SELECT name, workspace_path, status, branch, metadata FROM sessions`)
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.create_checkpoint", "query sessions failed", err)
	}
	var sessions []CheckpointSession
	for rows.Next() {
		var cs CheckpointSession
		var branch, metadata sql.NullString
		if err := rows.Scan(&cs.Name, &cs.WorkspacePath, &cs.Status, &branch, &metadata); err != nil {
			rows.Close()
			return nil, zerr.Wrap(zerr.DatabaseError, "store.create_checkpoint", "scan session failed", err)
		}
		cs.Branch = branch.String
		cs.Metadata = metadata.String
		sessions = append(sessions, cs)
	}
	rows.Close()

	for _, cs := range sessions {
		if _, err := tx.Exec(`INSERT INTO checkpoint_sessions (checkpoint_id, name, workspace_path, status, branch, metadata)
			VALUES (?, ?, ?, ?, ?, ?)`, id, cs.Name, cs.WorkspacePath, string(cs.Status), cs.Branch, cs.Metadata); err != nil {
			return nil, zerr.Wrap(zerr.DatabaseError, "store.create_checkpoint", "insert checkpoint session failed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.create_checkpoint", "commit failed", err)
	}
	return &CheckpointSet{ID: id, CreatedAt: now, Description: description, Sessions: sessions}, nil
}

// ListCheckpoints returns every recorded checkpoint, newest first.
func (s *Store) ListCheckpoints() ([]*CheckpointSet, error) {
	rows, err := s.db.Query(`SELECT id, created_at, description FROM checkpoints ORDER BY created_at DESC`)
	if err != nil {
		return nil, zerr.Wrap(zerr.DatabaseError, "store.list_checkpoints", "query failed", err)
	}
	defer rows.Close()

	var out []*CheckpointSet
	for rows.Next() {
		var cp CheckpointSet
		var desc sql.NullString
		if err := rows.Scan(&cp.ID, &cp.CreatedAt, &desc); err != nil {
			return nil, zerr.Wrap(zerr.DatabaseError, "store.list_checkpoints", "scan failed", err)
		}
		cp.Description = desc.String
		out = append(out, &cp)
	}
	return out, rows.Err()
}

// RestoreCheckpoint replaces the live session table with the snapshot from
// checkpoint id, as DELETE FROM sessions; INSERT ... FROM checkpoint_sessions,
// in a single transaction (spec §4.B).
func (s *Store) RestoreCheckpoint(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.restore_checkpoint", "begin tx failed", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM checkpoints WHERE id = ?`, id).Scan(&exists); err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.restore_checkpoint", "lookup failed", err)
	}
	if exists == 0 {
		return zerr.New(zerr.NotFound, "store.restore_checkpoint", "checkpoint not found").WithContext("id", id)
	}

	if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.restore_checkpoint", "delete sessions failed", err)
	}

	rows, err := tx.Query(`SELECT name, workspace_path, status, branch, metadata FROM checkpoint_sessions WHERE checkpoint_id = ?`, id)
	if err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.restore_checkpoint", "query checkpoint sessions failed", err)
	}
	type row struct {
		name, workspace, status, branch, metadata string
	}
	var toInsert []row
	for rows.Next() {
		var r row
		var branch, metadata sql.NullString
		if err := rows.Scan(&r.name, &r.workspace, &r.status, &branch, &metadata); err != nil {
			rows.Close()
			return zerr.Wrap(zerr.DatabaseError, "store.restore_checkpoint", "scan failed", err)
		}
		r.branch, r.metadata = branch.String, metadata.String
		toInsert = append(toInsert, r)
	}
	rows.Close()

	now := time.Now().Unix()
	for _, r := range toInsert {
		tab := ZellijTabFor(r.name)
		if _, err := tx.Exec(`INSERT INTO sessions (name, workspace_path, zellij_tab, status, branch, created_at, updated_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, r.name, r.workspace, tab, r.status, r.branch, now, now, r.metadata); err != nil {
			return zerr.Wrap(zerr.DatabaseError, "store.restore_checkpoint", "insert session failed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return zerr.Wrap(zerr.DatabaseError, "store.restore_checkpoint", "commit failed", err)
	}
	return nil
}

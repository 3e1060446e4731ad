// Package template stores named Zellij layouts (spec §3 Template entity):
// a KDL layout plus a small metadata record, one directory per template
// under a templates root, guarded by an advisory file lock for the
// duration of writes. The per-key directory store with a guarding lock is
// grounded on the teacher's internal/checkpoint.Store (one JSON file per
// step id under a store directory), generalised from an in-process
// sync.RWMutex to internal/filelock's flock wrapper since template writes
// must be safe across separate zjj process invocations, not just
// goroutines within one.
package template

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/vinayprograms/zjj/internal/filelock"
	"github.com/vinayprograms/zjj/internal/zerr"
)

// MaxContentBytes is the maximum size of a template's layout.kdl (spec §3).
const MaxContentBytes = 1 << 20

// Metadata is a template's small JSON sidecar record.
type Metadata struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Template is a named layout plus its metadata.
type Template struct {
	Metadata Metadata
	Layout   string
}

// Store manages templates under a root directory, one subdirectory per
// template name (spec §6 "templates/<name>/{layout.kdl, metadata.json}").
type Store struct {
	root string
}

// NewStore opens (without yet creating) a template store rooted at root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) dir(name string) string      { return filepath.Join(s.root, name) }
func (s *Store) lockPath(name string) string { return filepath.Join(s.dir(name), ".template.lock") }

// Save writes a template's layout and metadata, creating it or replacing
// an existing one, under the per-template advisory lock.
func (s *Store) Save(name, layout, description string) (*Metadata, error) {
	op := "template.save"
	if name == "" {
		return nil, zerr.New(zerr.Validation, op, "template name must not be empty")
	}
	if len(layout) > MaxContentBytes {
		return nil, zerr.New(zerr.Validation, op, "layout exceeds maximum content size").
			WithContext("max_bytes", MaxContentBytes).WithContext("actual_bytes", len(layout))
	}

	dir := s.dir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to create template directory", err)
	}

	lock, err := filelock.TryAcquire(s.lockPath(name))
	if err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to acquire template lock", err)
	}
	if lock == nil {
		return nil, zerr.New(zerr.LockTimeout, op, "template is locked by another writer").WithContext("name", name)
	}
	defer lock.Release()

	now := time.Now()
	meta := Metadata{Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	if existing, err := s.readMetadata(name); err == nil {
		meta.CreatedAt = existing.CreatedAt
	}

	layoutPath := filepath.Join(dir, "layout.kdl")
	if err := os.WriteFile(layoutPath, []byte(layout), 0644); err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to write layout", err)
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to marshal metadata", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metaBytes, 0644); err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to write metadata", err)
	}

	return &meta, nil
}

// Get loads a template's layout and metadata.
func (s *Store) Get(name string) (*Template, error) {
	op := "template.get"
	meta, err := s.readMetadata(name)
	if err != nil {
		return nil, err
	}
	layout, err := os.ReadFile(filepath.Join(s.dir(name), "layout.kdl"))
	if err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to read layout", err)
	}
	return &Template{Metadata: *meta, Layout: string(layout)}, nil
}

func (s *Store) readMetadata(name string) (*Metadata, error) {
	op := "template.get"
	data, err := os.ReadFile(filepath.Join(s.dir(name), "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, zerr.New(zerr.NotFound, op, "template not found").WithContext("name", name)
		}
		return nil, zerr.Wrap(zerr.IO, op, "failed to read metadata", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to parse metadata", err)
	}
	return &meta, nil
}

// List returns every template's metadata, sorted by name.
func (s *Store) List() ([]Metadata, error) {
	op := "template.list"
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, zerr.Wrap(zerr.IO, op, "failed to list templates directory", err)
	}
	var out []Metadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.readMetadata(e.Name())
		if err != nil {
			continue
		}
		out = append(out, *meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a template directory under its advisory lock.
func (s *Store) Delete(name string) error {
	op := "template.delete"
	if _, err := s.readMetadata(name); err != nil {
		return err
	}
	lock, err := filelock.TryAcquire(s.lockPath(name))
	if err != nil {
		return zerr.Wrap(zerr.IO, op, "failed to acquire template lock", err)
	}
	if lock == nil {
		return zerr.New(zerr.LockTimeout, op, "template is locked by another writer").WithContext("name", name)
	}
	defer lock.Release()

	if err := os.RemoveAll(s.dir(name)); err != nil {
		return zerr.Wrap(zerr.IO, op, "failed to remove template directory", err)
	}
	return nil
}

package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/store"
	"github.com/vinayprograms/zjj/internal/zerr"
)

// exportedSession is the on-disk shape export/import round-trip through;
// CreatedAt rides along so import can restore the original timestamp via
// store.CreateWithTimestamp (spec §8 property 9).
type exportedSession struct {
	Name          string `json:"name"`
	WorkspacePath string `json:"workspace_path"`
	Status        string `json:"status"`
	Branch        string `json:"branch,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	Metadata      string `json:"metadata,omitempty"`
}

type exportFile struct {
	ExportedAt int64             `json:"exported_at"`
	Sessions   []exportedSession `json:"sessions"`
}

type ExportCmd struct {
	contractFlags
	Path string `arg:"" help:"Destination file."`
}

func (c *ExportCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "export"); done || err != nil {
		return err
	}
	sessions, err := app.Store.List(nil)
	if err != nil {
		return err
	}
	out := exportFile{ExportedAt: time.Now().Unix()}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, exportedSession{
			Name: s.Name, WorkspacePath: s.WorkspacePath, Status: string(s.Status),
			Branch: s.Branch, CreatedAt: s.CreatedAt, Metadata: string(s.Metadata),
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return zerr.Wrap(zerr.IO, "cli.export", "failed to marshal export", err)
	}
	if err := os.WriteFile(c.Path, data, 0644); err != nil {
		return zerr.Wrap(zerr.IO, "cli.export", "failed to write export file", err)
	}
	return app.Sink.Emit(event.Summary("export", "exported "+c.Path, map[string]any{"sessions": len(out.Sessions)}))
}

type ImportCmd struct {
	contractFlags
	Path  string `arg:"" help:"Export file to import."`
	Force bool   `help:"Overwrite sessions that already exist."`
}

func (c *ImportCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "import"); done || err != nil {
		return err
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return zerr.Wrap(zerr.IO, "cli.import", "failed to read export file", err)
	}
	var in exportFile
	if err := json.Unmarshal(data, &in); err != nil {
		return zerr.Wrap(zerr.Validation, "cli.import", "failed to parse export file", err)
	}

	imported := 0
	for _, es := range in.Sessions {
		existing, err := app.Store.Get(es.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			if !c.Force {
				return zerr.New(zerr.Conflict, "cli.import", "session already exists; pass --force to overwrite").WithContext("name", es.Name)
			}
			if _, err := app.Store.Delete(es.Name); err != nil {
				return err
			}
		}
		if _, err := app.Store.CreateWithTimestamp(es.Name, es.WorkspacePath, es.CreatedAt); err != nil {
			return err
		}
		if err := reachTargetStatus(app.Store, es.Name, store.Status(es.Status)); err != nil {
			return err
		}
		if es.Branch != "" || es.Metadata != "" {
			branch := es.Branch
			var metadata json.RawMessage
			if es.Metadata != "" {
				metadata = json.RawMessage(es.Metadata)
			}
			if err := app.Store.Update(es.Name, store.SessionUpdate{Branch: &branch, Metadata: metadata}); err != nil {
				return err
			}
		}
		imported++
	}
	return app.Sink.Emit(event.Summary("import", "imported "+c.Path, map[string]any{"sessions": imported}))
}

// reachTargetStatus drives a freshly created (status=Creating) session
// through the legal transition graph to land on target: import must
// reproduce an arbitrary recorded status without ValidateStatusTransition
// rejecting the jump (spec §4.B transition graph, spec §8 property 9).
func reachTargetStatus(s *store.Store, name string, target store.Status) error {
	steps, ok := importPaths[target]
	if !ok {
		return nil
	}
	for _, step := range steps {
		st := step
		if err := s.Update(name, store.SessionUpdate{Status: &st}); err != nil {
			return err
		}
	}
	return nil
}

var importPaths = map[store.Status][]store.Status{
	store.StatusActive:    {store.StatusActive},
	store.StatusFailed:    {store.StatusFailed},
	store.StatusSyncing:   {store.StatusActive, store.StatusSyncing},
	store.StatusSynced:    {store.StatusActive, store.StatusSyncing, store.StatusSynced},
	store.StatusPaused:    {store.StatusActive, store.StatusPaused},
	store.StatusCompleted: {store.StatusActive, store.StatusCompleted},
}

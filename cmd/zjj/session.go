package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/lifecycle"
	"github.com/vinayprograms/zjj/internal/store"
	"github.com/vinayprograms/zjj/internal/zerr"
)

type InitCmd struct {
	contractFlags
}

func (c *InitCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "init"); done || err != nil {
		return err
	}
	path := filepath.Join(app.RepoRoot, ".zjj", "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return zerr.Wrap(zerr.IO, "cli.init", "failed to write default config", err)
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(app.Config); err != nil {
			return zerr.Wrap(zerr.IO, "cli.init", "failed to encode default config", err)
		}
	}
	return app.Sink.Emit(event.Summary("info", "zjj initialised", map[string]any{"repo_root": app.RepoRoot}))
}

type AddCmd struct {
	contractFlags
	Name       string `arg:"" help:"Session name."`
	NoHooks    bool   `help:"Skip post_create hooks." name:"no-hooks"`
	NoOpen     bool   `help:"Do not open a Zellij tab." name:"no-open"`
	AtRevision string `help:"Create the workspace at a specific jj revision." name:"at-revision"`
}

func (c *AddCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "add"); done || err != nil {
		return err
	}
	_, err := app.Lifecycle.Create(context.Background(), c.Name, lifecycle.CreateOptions{
		NoHooks: c.NoHooks, NoOpen: c.NoOpen, AtRevision: c.AtRevision,
	})
	return err
}

type RemoveCmd struct {
	contractFlags
	Name    string `arg:"" help:"Session name."`
	NoHooks bool   `help:"Skip pre_remove hooks." name:"no-hooks"`
	Merge   bool   `help:"Squash, rebase, and push onto main before removing."`
}

func (c *RemoveCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "remove"); done || err != nil {
		return err
	}
	return app.Lifecycle.Remove(context.Background(), c.Name, lifecycle.RemoveOptions{NoHooks: c.NoHooks, Merge: c.Merge})
}

type ListCmd struct {
	contractFlags
	Status string `help:"Filter by status (Creating, Active, Syncing, Synced, Paused, Completed, Failed)."`
}

func (c *ListCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "list"); done || err != nil {
		return err
	}
	return app.Lifecycle.Status(context.Background(), statusFilter(c.Status))
}

type FocusCmd struct {
	contractFlags
	Name string `arg:"" help:"Session name."`
}

func (c *FocusCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "focus"); done || err != nil {
		return err
	}
	sess, err := app.Store.Get(c.Name)
	if err != nil {
		return err
	}
	if sess == nil {
		return zerr.New(zerr.NotFound, "cli.focus", "session not found").WithContext("name", c.Name)
	}
	if err := app.Terminal.FocusTab(context.Background(), sess.ZellijTab); err != nil {
		return err
	}
	return app.Sink.Emit(event.Result("focus", event.OutcomeSuccess, "focused "+c.Name, nil))
}

type StatusCmd struct {
	contractFlags
	Status string `help:"Filter by status."`
}

func (c *StatusCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "status"); done || err != nil {
		return err
	}
	return app.Lifecycle.Status(context.Background(), statusFilter(c.Status))
}

type SyncCmd struct {
	contractFlags
	Name       string `arg:"" help:"Session name."`
	AllowDirty bool   `help:"Allow a dirty working copy." name:"allow-dirty"`
}

func (c *SyncCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "sync"); done || err != nil {
		return err
	}
	return app.Lifecycle.Sync(context.Background(), c.Name, lifecycle.SyncOptions{AllowDirty: c.AllowDirty})
}

type DiffCmd struct {
	contractFlags
	Status string `help:"Filter by status."`
}

func (c *DiffCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "diff"); done || err != nil {
		return err
	}
	return app.Lifecycle.Diff(context.Background(), statusFilter(c.Status))
}

func statusFilter(s string) *store.Filter {
	if s == "" {
		return nil
	}
	st := store.Status(s)
	return &store.Filter{Status: &st}
}

type QueryCmd struct {
	contractFlags
	Status string `help:"Filter by status."`
	Queue  bool   `help:"Query the merge queue instead of sessions."`
}

func (c *QueryCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "query"); done || err != nil {
		return err
	}
	if c.Queue {
		return c.runQueue(app)
	}
	sessions, err := app.Store.List(statusFilter(c.Status))
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := app.Sink.Emit(event.Session(s.Name, s.WorkspacePath, s.ZellijTab, string(s.Status), s.Branch)); err != nil {
			return err
		}
	}
	return app.Sink.Emit(event.Summary("count", "query complete", len(sessions)))
}

func (c *QueryCmd) runQueue(app *AppContext) error {
	entries, err := app.Queue.List(queueStatusFilter(c.Status))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := app.Sink.Emit(event.Summary("queue_entry", e.Workspace, e)); err != nil {
			return err
		}
	}
	return app.Sink.Emit(event.Summary("count", "query complete", len(entries)))
}

// WaitCmd polls a session until it reaches one of the given target statuses
// or TimeoutSecs elapses. Spec §6 names "wait" in the CLI surface with no
// further detail; this is the poll primitive a caller uses after a
// non-blocking add/sync to learn when a session has settled (see DESIGN.md
// for the full resolution).
type WaitCmd struct {
	contractFlags
	Name        string   `arg:"" help:"Session name."`
	For         []string `help:"Target statuses to wait for (default: any terminal status)." name:"for"`
	TimeoutSecs int      `help:"Give up after this many seconds (0 = no timeout)." name:"timeout" default:"60"`
	PollMs      int      `help:"Polling interval in milliseconds." name:"poll-ms" default:"200"`
}

var defaultWaitTargets = []store.Status{
	store.StatusActive, store.StatusSynced, store.StatusCompleted, store.StatusFailed, store.StatusPaused,
}

func (c *WaitCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "wait"); done || err != nil {
		return err
	}
	targets := map[store.Status]bool{}
	if len(c.For) == 0 {
		for _, s := range defaultWaitTargets {
			targets[s] = true
		}
	} else {
		for _, s := range c.For {
			targets[store.Status(s)] = true
		}
	}

	var deadline time.Time
	if c.TimeoutSecs > 0 {
		deadline = time.Now().Add(time.Duration(c.TimeoutSecs) * time.Second)
	}
	interval := time.Duration(c.PollMs) * time.Millisecond
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	for {
		sess, err := app.Store.Get(c.Name)
		if err != nil {
			return err
		}
		if sess == nil {
			return zerr.New(zerr.NotFound, "cli.wait", "session not found").WithContext("name", c.Name)
		}
		if targets[sess.Status] {
			return app.Sink.Emit(event.Session(sess.Name, sess.WorkspacePath, sess.ZellijTab, string(sess.Status), sess.Branch))
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return zerr.New(zerr.Timeout, "cli.wait", "timed out waiting for a target status").
				WithContext("name", c.Name).WithContext("actual", string(sess.Status))
		}
		time.Sleep(interval)
	}
}

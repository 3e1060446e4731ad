// Package watcher is the debounced filesystem Watcher described in spec
// §4.J. It watches a set of workspace paths and produces a channel of
// BeadsChanged events, collapsing rapid changes within debounce_ms into a
// single event per path. The debounce buffer is a single-threaded state
// machine per watched path (timer + pending flag), per spec §9's "Watcher"
// design note, not a per-event goroutine spawn. Grounded on the teacher's
// own fsnotify usage for workspace file watching.
package watcher

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vinayprograms/zjj/internal/zerr"
)

// Config controls the Watcher (spec §4.J).
type Config struct {
	Enabled    bool
	DebounceMs int
	Paths      []string
}

// Validate rejects an out-of-range debounce at construction.
func (c Config) Validate() error {
	if !c.Enabled {
		return zerr.New(zerr.Validation, "watcher.validate", "watcher is disabled")
	}
	if c.DebounceMs < 10 || c.DebounceMs > 5000 {
		return zerr.New(zerr.Validation, "watcher.validate", "debounce_ms must be in [10, 5000]").
			WithContext("debounce_ms", c.DebounceMs)
	}
	return nil
}

// BeadsChanged is emitted when a watched workspace's files settle after a
// burst of changes.
type BeadsChanged struct {
	WorkspacePath string
}

// Watcher wraps fsnotify with a per-path debounce state machine.
type Watcher struct {
	cfg     Config
	fsw     *fsnotify.Watcher
	events  chan BeadsChanged
	pending map[string]*time.Timer
}

// New constructs a Watcher for cfg, failing fast on an invalid config
// (disabled or out-of-range debounce).
func New(cfg Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, zerr.Wrap(zerr.IO, "watcher.new", "failed to create fsnotify watcher", err)
	}
	for _, p := range cfg.Paths {
		if err := fsw.Add(p); err != nil {
			fsw.Close()
			return nil, zerr.Wrap(zerr.IO, "watcher.new", "failed to watch path", err).WithContext("path", p)
		}
	}
	return &Watcher{cfg: cfg, fsw: fsw, events: make(chan BeadsChanged, 64), pending: make(map[string]*time.Timer)}, nil
}

// Events returns the channel of debounced BeadsChanged events.
func (w *Watcher) Events() <-chan BeadsChanged { return w.events }

// Run drives the watcher's single-threaded debounce loop until ctx is
// cancelled. Every fsnotify event for a path resets that path's timer
// rather than spawning a new task, bounding concurrency to one goroutine
// regardless of event volume.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	debounce := time.Duration(w.cfg.DebounceMs) * time.Millisecond

	fired := make(chan string, 64)
	defer func() {
		for _, t := range w.pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			path := ev.Name
			if t, exists := w.pending[path]; exists {
				t.Stop()
			}
			w.pending[path] = time.AfterFunc(debounce, func() {
				select {
				case fired <- path:
				default:
				}
			})
		case path := <-fired:
			delete(w.pending, path)
			select {
			case w.events <- BeadsChanged{WorkspacePath: path}:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				return zerr.Wrap(zerr.IO, "watcher.run", "fsnotify reported an error", err)
			}
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error { return w.fsw.Close() }

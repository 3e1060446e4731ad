// Package lifecycle is the Lifecycle Manager described in spec §4.D. It
// orchestrates per-session commands by combining the Session Store, the
// Operation Serializer, the VCS Adapter, hooks, and the Terminal Adapter.
// The orchestration shape (validate -> reserve -> lock -> mutate -> hook ->
// transition -> emit) is grounded on the teacher's internal/supervision
// step-execution pipeline, generalised from LLM-step commit/execute/
// reconcile phases to VCS session create/remove/sync phases.
package lifecycle

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/zjj/internal/config"
	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/oplock"
	"github.com/vinayprograms/zjj/internal/store"
	"github.com/vinayprograms/zjj/internal/telemetry"
	"github.com/vinayprograms/zjj/internal/terminal"
	"github.com/vinayprograms/zjj/internal/vcsadapter"
	"github.com/vinayprograms/zjj/internal/zerr"
)

// HookType is one of the three points hooks attach to (spec §4.D "Hook
// contract").
type HookType string

const (
	HookPostCreate HookType = "post_create"
	HookPreRemove  HookType = "pre_remove"
	HookPostMerge  HookType = "post_merge"
)

// HookOutcome distinguishes "no hooks configured" from "hooks ran and
// succeeded" (original_source/crates/zjj-core/src/hooks.rs), so callers can
// skip emitting an Action event when nothing ran.
type HookOutcome int

const (
	HookOutcomeNoHooks HookOutcome = iota
	HookOutcomeRan
)

// HookRunner executes a hook's shell command list sequentially in dir using
// the user's $SHELL, falling back to /bin/sh.
type HookRunner struct{}

// Run executes commands in order in workDir. The first non-zero exit stops
// the sequence and is reported as HookFailed; a command that cannot be
// spawned at all is reported as HookExecFailed.
func (HookRunner) Run(ctx context.Context, hookType HookType, commands []string, workDir string) (HookOutcome, error) {
	if len(commands) == 0 {
		return HookOutcomeNoHooks, nil
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	for _, command := range commands {
		cmd := exec.CommandContext(ctx, shell, "-c", command)
		cmd.Dir = workDir
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err := cmd.Run()
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				e := zerr.New(zerr.HookFailed, "lifecycle.run_hook", "hook command failed")
				e.WithContext("hook_type", string(hookType))
				e.WithContext("command", command)
				e.WithContext("exit_code", exitErr.ExitCode())
				e.WithContext("stdout", stdout.String())
				e.WithContext("stderr", stderr.String())
				return HookOutcomeRan, e
			}
			e := zerr.Wrap(zerr.HookExecFailed, "lifecycle.run_hook", "hook command could not be spawned", err)
			e.WithContext("hook_type", string(hookType))
			e.WithContext("command", command)
			return HookOutcomeRan, e
		}
	}
	return HookOutcomeRan, nil
}

// Manager is the Lifecycle Manager (spec §4.D).
type Manager struct {
	Store    *store.Store
	VCS      *vcsadapter.Adapter
	Terminal *terminal.Adapter
	Lock     *oplock.Serializer
	Hooks    HookRunner
	Sink     event.Sink
	Config   *config.Config
	RepoRoot string
}

// New wires a Manager from its collaborators.
func New(s *store.Store, vcs *vcsadapter.Adapter, term *terminal.Adapter, lock *oplock.Serializer, sink event.Sink, cfg *config.Config, repoRoot string) *Manager {
	return &Manager{Store: s, VCS: vcs, Terminal: term, Lock: lock, Sink: sink, Config: cfg, RepoRoot: repoRoot}
}

// CreateOptions adjusts Create's behavior.
type CreateOptions struct {
	NoHooks bool
	NoOpen  bool
	AtRevision string
}

// Create runs the canonical create flow from spec §4.D: validate, reserve,
// lock, create workspace, run post_create, open terminal tab, transition to
// Active.
func (m *Manager) Create(ctx context.Context, name string, opts CreateOptions) (_ *store.Session, retErr error) {
	op := "lifecycle.create"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("session.name", name))
	defer func() { telemetry.EndSpan(span, retErr) }()

	if err := store.ValidateName(name); err != nil {
		m.emitIssue(err)
		return nil, err
	}
	if existing, err := m.Store.Get(name); err != nil {
		return nil, err
	} else if existing != nil {
		err := zerr.New(zerr.Conflict, op, "session already exists").WithContext("name", name)
		m.emitIssue(err)
		return nil, err
	}

	workspacePath := vcsadapter.JoinPath(m.Config.Workspace.Dir, name)
	sess, err := m.Store.Create(name, workspacePath)
	if err != nil {
		m.emitIssue(err)
		return nil, err
	}

	runErr := m.Lock.Run(ctx, func(ctx context.Context) error {
		if opts.AtRevision != "" {
			return m.VCS.WorkspaceCreateAtRevision(ctx, m.RepoRoot, name, workspacePath, opts.AtRevision)
		}
		return m.VCS.WorkspaceCreate(ctx, m.RepoRoot, name, workspacePath)
	})
	if runErr != nil {
		m.rollbackRow(name)
		m.emitIssue(runErr)
		return nil, runErr
	}

	if !opts.NoHooks {
		if _, err := m.Hooks.Run(ctx, HookPostCreate, m.Config.Hooks.PostCreate, workspacePath); err != nil {
			_ = m.Lock.Run(ctx, func(ctx context.Context) error { return m.VCS.WorkspaceForget(ctx, m.RepoRoot, name) })
			m.rollbackRow(name)
			m.emitIssue(err)
			return nil, err
		}
	}

	if !opts.NoOpen {
		tab := store.ZellijTabFor(name)
		if err := m.Terminal.OpenTab(ctx, tab, workspacePath, nil); err != nil {
			m.emitIssue(err)
			// Terminal failure does not unwind the workspace; the session
			// still exists and can be focused manually later.
		}
	}

	active := store.StatusActive
	if err := m.Store.Update(name, store.SessionUpdate{Status: &active}); err != nil {
		m.emitIssue(err)
		return nil, err
	}
	sess, err = m.Store.Get(name)
	if err != nil {
		return nil, err
	}

	m.emitSession(sess)
	m.emitResult(op, event.OutcomeSuccess, "session created")
	return sess, nil
}

// RemoveOptions adjusts Remove's behavior.
type RemoveOptions struct {
	NoHooks bool
	Merge   bool
}

// Remove runs the remove flow from spec §4.D: optional pre_remove hook,
// optional squash+rebase+push merge into main, workspace_forget, tab close,
// row delete.
func (m *Manager) Remove(ctx context.Context, name string, opts RemoveOptions) (retErr error) {
	op := "lifecycle.remove"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("session.name", name))
	defer func() { telemetry.EndSpan(span, retErr) }()

	sess, err := m.Store.Get(name)
	if err != nil {
		return err
	}
	if sess == nil {
		err := zerr.New(zerr.NotFound, op, "session not found").WithContext("name", name)
		m.emitIssue(err)
		return err
	}

	if !opts.NoHooks {
		if _, err := m.Hooks.Run(ctx, HookPreRemove, m.Config.Hooks.PreRemove, sess.WorkspacePath); err != nil {
			m.emitIssue(err)
			return err
		}
	}

	if opts.Merge {
		mainBranch := m.VCS.MainBranchHead(ctx, sess.WorkspacePath)
		if mainBranch == "" {
			mainBranch = m.Config.Workspace.MainBranch
		}
		mergeErr := m.Lock.Run(ctx, func(ctx context.Context) error {
			if err := m.VCS.WorkspaceSquash(ctx, sess.WorkspacePath); err != nil {
				return err
			}
			if err := m.VCS.WorkspaceRebaseOnto(ctx, sess.WorkspacePath, mainBranch); err != nil {
				return err
			}
			return m.VCS.WorkspaceGitPush(ctx, sess.WorkspacePath)
		})
		if mergeErr != nil {
			m.emitIssue(mergeErr)
			return mergeErr
		}
		if len(m.Config.Hooks.PostMerge) > 0 {
			if _, err := m.Hooks.Run(ctx, HookPostMerge, m.Config.Hooks.PostMerge, sess.WorkspacePath); err != nil {
				m.emitIssue(err)
				return err
			}
		}
	}

	forgetErr := m.Lock.Run(ctx, func(ctx context.Context) error {
		return m.VCS.WorkspaceForget(ctx, m.RepoRoot, name)
	})
	if forgetErr != nil {
		m.emitIssue(forgetErr)
		return forgetErr
	}

	if err := m.Terminal.CloseTab(ctx, sess.ZellijTab); err != nil {
		m.emitIssue(err)
		// non-fatal: the tab may already be gone
	}

	if _, err := m.Store.Delete(name); err != nil {
		m.emitIssue(err)
		return err
	}

	m.emitResult(op, event.OutcomeSuccess, "session removed")
	return nil
}

// SyncOptions adjusts Sync's behavior.
type SyncOptions struct {
	AllowDirty bool
}

// Sync runs the sync flow from spec §4.D: Active -> Syncing -> Synced ->
// Active, or Syncing -> Failed on conflict.
func (m *Manager) Sync(ctx context.Context, name string, opts SyncOptions) (retErr error) {
	op := "lifecycle.sync"
	ctx, span := telemetry.StartSpan(ctx, op, attribute.String("session.name", name))
	defer func() { telemetry.EndSpan(span, retErr) }()

	sess, err := m.Store.Get(name)
	if err != nil {
		return err
	}
	if sess == nil {
		err := zerr.New(zerr.NotFound, op, "session not found").WithContext("name", name)
		m.emitIssue(err)
		return err
	}
	if sess.Status != store.StatusActive && sess.Status != store.StatusFailed {
		err := zerr.New(zerr.InvalidTransition, op, "sync requires an Active or Failed session").
			WithContext("actual", string(sess.Status))
		m.emitIssue(err)
		return err
	}

	if !opts.AllowDirty {
		status, err := m.VCS.WorkspaceStatus(ctx, sess.WorkspacePath)
		if err != nil {
			m.emitIssue(err)
			return err
		}
		if !status.Clean() {
			err := zerr.New(zerr.Validation, op, "workspace is dirty; pass --allow-dirty or commit first")
			m.emitIssue(err)
			return err
		}
	}

	syncing := store.StatusSyncing
	if err := m.Store.Update(name, store.SessionUpdate{Status: &syncing}); err != nil {
		m.emitIssue(err)
		return err
	}

	mainBranch := m.VCS.MainBranchHead(ctx, sess.WorkspacePath)
	syncErr := m.Lock.Run(ctx, func(ctx context.Context) error {
		return m.VCS.WorkspaceRebaseOnto(ctx, sess.WorkspacePath, mainBranch)
	})
	if syncErr != nil {
		failed := store.StatusFailed
		_ = m.Store.Update(name, store.SessionUpdate{Status: &failed})
		if conflicted, convErr := m.VCS.WorkspaceStatus(ctx, sess.WorkspacePath); convErr == nil && !conflicted.Clean() {
			ce := zerr.Wrap(zerr.Conflict, op, "rebase produced conflicts; run jj resolve, then retry", syncErr)
			ce.WithContext("workspace", sess.WorkspacePath)
			ce.WithContext("conflicted_files", append(append([]string{}, conflicted.Modified...), conflicted.Added...))
			m.emitIssue(ce)
			return ce
		}
		m.emitIssue(syncErr)
		return syncErr
	}

	synced := store.StatusSynced
	if err := m.Store.Update(name, store.SessionUpdate{Status: &synced}); err != nil {
		m.emitIssue(err)
		return err
	}
	active := store.StatusActive
	if err := m.Store.Update(name, store.SessionUpdate{Status: &active}); err != nil {
		m.emitIssue(err)
		return err
	}

	sess, _ = m.Store.Get(name)
	m.emitSession(sess)
	m.emitResult(op, event.OutcomeSuccess, "session synced")
	return nil
}

// concurrencyLimit bounds the number of in-flight per-session queries
// buffered during Status/Diff (spec §4.D "N=10").
const concurrencyLimit = 10

// Status is a read-only, concurrent-safe flow: it emits one Session event
// per session plus a terminal Summary.
func (m *Manager) Status(ctx context.Context, filter *store.Filter) error {
	sessions, err := m.Store.List(filter)
	if err != nil {
		return err
	}
	sem := make(chan struct{}, concurrencyLimit)
	results := make([]event.Envelope, len(sessions))
	done := make(chan int, len(sessions))
	for i, sess := range sessions {
		sem <- struct{}{}
		go func(i int, sess *store.Session) {
			defer func() { <-sem; done <- i }()
			results[i] = event.Session(sess.Name, sess.WorkspacePath, sess.ZellijTab, string(sess.Status), sess.Branch)
		}(i, sess)
	}
	for range sessions {
		<-done
	}
	for _, r := range results {
		if err := m.Sink.Emit(r); err != nil {
			return err
		}
	}
	if len(sessions) == 0 {
		return m.Sink.Emit(event.Summary("info", "No active sessions", nil))
	}
	return m.Sink.Emit(event.Summary("count", "status complete", len(sessions)))
}

// Diff reports a diff summary for every session matching filter, with the
// same buffering/ordering discipline as Status.
func (m *Manager) Diff(ctx context.Context, filter *store.Filter) error {
	sessions, err := m.Store.List(filter)
	if err != nil {
		return err
	}
	sem := make(chan struct{}, concurrencyLimit)
	type diffResult struct {
		name string
		d    vcsadapter.DiffSummary
		err  error
	}
	results := make([]diffResult, len(sessions))
	done := make(chan int, len(sessions))
	for i, sess := range sessions {
		sem <- struct{}{}
		go func(i int, sess *store.Session) {
			defer func() { <-sem; done <- i }()
			d, err := m.VCS.WorkspaceDiff(ctx, sess.WorkspacePath)
			results[i] = diffResult{name: sess.Name, d: d, err: err}
		}(i, sess)
	}
	for range sessions {
		<-done
	}
	for _, r := range results {
		if r.err != nil {
			m.emitIssue(r.err)
			continue
		}
		details := map[string]any{"insertions": r.d.Insertions, "deletions": r.d.Deletions, "files_changed": r.d.FilesChanged}
		if err := m.Sink.Emit(event.Summary("info", r.name, details)); err != nil {
			return err
		}
	}
	return m.Sink.Emit(event.Summary("count", "diff complete", len(sessions)))
}

func (m *Manager) rollbackRow(name string) {
	_, _ = m.Store.Delete(name)
}

func (m *Manager) emitSession(sess *store.Session) {
	if sess == nil || m.Sink == nil {
		return
	}
	_ = m.Sink.Emit(event.Session(sess.Name, sess.WorkspacePath, sess.ZellijTab, string(sess.Status), sess.Branch))
}

func (m *Manager) emitResult(op string, outcome event.Outcome, message string) {
	if m.Sink == nil {
		return
	}
	_ = m.Sink.Emit(event.Result(op, outcome, message, nil))
}

func (m *Manager) emitIssue(err error) {
	if m.Sink == nil || err == nil {
		return
	}
	ze, ok := err.(*zerr.Error)
	if !ok {
		_ = m.Sink.Emit(event.Issue("", err.Error(), event.IssueExternal, event.SeverityError, "", ""))
		return
	}
	var kind event.IssueKind
	switch ze.Kind {
	case zerr.Validation:
		kind = event.IssueValidation
	case zerr.Conflict:
		kind = event.IssueStateConflict
	case zerr.InvalidTransition:
		kind = event.IssueStateConflict
	case zerr.NotFound:
		kind = event.IssueResourceMissing
	case zerr.Timeout, zerr.LockTimeout:
		kind = event.IssueTimeout
	default:
		kind = event.IssueExternal
	}
	suggestion := ""
	if ze.Kind == zerr.Conflict {
		if hint, ok := ze.Context["conflicted_files"]; ok {
			suggestion = "run jj resolve, then retry"
			_ = hint
		}
	}
	_ = m.Sink.Emit(event.Issue(ze.Code(), ze.Error(), kind, event.SeverityError, suggestion, ze.Op))
}

// Package doctor implements Introspection & Doctor (spec §4.H): a fixed
// set of named checks, aggregated into a DoctorOutput whose exit-code
// policy is "0 iff healthy", with an idempotent auto-fix mode. The
// collect-everything-then-report shape (never abort on first failure) is
// grounded on the teacher's internal/setup diagnostics, which runs every
// prerequisite check and reports the full list rather than failing fast.
package doctor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/vinayprograms/zjj/internal/integrity"
	"github.com/vinayprograms/zjj/internal/store"
	"github.com/vinayprograms/zjj/internal/terminal"
	"github.com/vinayprograms/zjj/internal/vcsadapter"
)

// CheckStatus is a single check's verdict.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check is one named diagnostic result (spec §4.H).
type Check struct {
	Name        string      `json:"name"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Suggestion  string      `json:"suggestion,omitempty"`
	AutoFixable bool        `json:"auto_fixable"`
	Details     any         `json:"details,omitempty"`

	fix func(ctx context.Context) error
}

// Output is the aggregate doctor report.
type Output struct {
	Checks            []Check `json:"checks"`
	Warnings          int     `json:"warnings"`
	Errors            int     `json:"errors"`
	AutoFixableIssues int     `json:"auto_fixable_issues"`
	Healthy           bool    `json:"healthy"`
}

// Doctor runs the fixed check suite spec §4.H names.
type Doctor struct {
	RepoRoot  string
	VCS       *vcsadapter.Adapter
	Terminal  *terminal.Adapter
	Store     *store.Store
	Backups   *integrity.BackupManager
	Validator *integrity.Validator
}

// New wires a Doctor from its collaborators.
func New(repoRoot string, vcs *vcsadapter.Adapter, term *terminal.Adapter, s *store.Store, backups *integrity.BackupManager, validator *integrity.Validator) *Doctor {
	return &Doctor{RepoRoot: repoRoot, VCS: vcs, Terminal: term, Store: s, Backups: backups, Validator: validator}
}

// Run executes every check and aggregates the result.
func (d *Doctor) Run(ctx context.Context) Output {
	checks := []Check{
		d.checkJJInstalled(ctx),
		d.checkZellijInstalled(ctx),
		d.checkJJRepoPresent(),
		d.checkZjjInitialized(),
		d.checkStateDB(),
		d.checkWorkspaceIntegrity(ctx),
		d.checkOrphanedWorkspaces(ctx),
		d.checkStaleSessions(),
		d.checkPendingAddOperations(),
		d.checkBeadsIntegration(),
		d.checkWorkflowHealth(),
		d.checkWorkspaceContext(),
	}
	return aggregate(checks)
}

func aggregate(checks []Check) Output {
	var out Output
	out.Checks = checks
	for _, c := range checks {
		switch c.Status {
		case StatusWarn:
			out.Warnings++
		case StatusFail:
			out.Errors++
		}
		if c.AutoFixable && c.Status != StatusPass {
			out.AutoFixableIssues++
		}
	}
	out.Healthy = out.Errors == 0
	return out
}

// Fix applies every auto-fixable failing check from a prior Run, returning
// how many were actually fixed. Calling Fix again immediately after a
// successful run should fix zero issues (spec §8 property 10).
func (d *Doctor) Fix(ctx context.Context, checks []Check) (int, error) {
	fixed := 0
	for _, c := range checks {
		if !c.AutoFixable || c.Status == StatusPass || c.fix == nil {
			continue
		}
		if err := c.fix(ctx); err != nil {
			return fixed, err
		}
		fixed++
	}
	return fixed, nil
}

func (d *Doctor) checkJJInstalled(ctx context.Context) Check {
	if _, err := exec.LookPath("jj"); err != nil {
		return Check{Name: "jj_installed", Status: StatusFail, Message: "jj is not on PATH",
			Suggestion: "install jj: https://jj-vcs.github.io/jj/latest/install-and-setup/", AutoFixable: false}
	}
	return Check{Name: "jj_installed", Status: StatusPass, Message: "jj is installed"}
}

func (d *Doctor) checkZellijInstalled(ctx context.Context) Check {
	if _, err := exec.LookPath("zellij"); err != nil {
		return Check{Name: "zellij_installed", Status: StatusWarn, Message: "zellij is not on PATH",
			Suggestion: "install zellij to enable terminal tab integration", AutoFixable: false}
	}
	return Check{Name: "zellij_installed", Status: StatusPass, Message: "zellij is installed"}
}

func (d *Doctor) checkJJRepoPresent() Check {
	if _, err := os.Stat(filepath.Join(d.RepoRoot, ".jj")); err != nil {
		return Check{Name: "jj_repo_present", Status: StatusFail, Message: "no .jj directory found at repo root",
			Suggestion: "run `jj git init` or `jj init`", AutoFixable: false}
	}
	return Check{Name: "jj_repo_present", Status: StatusPass, Message: "jj repository found"}
}

func (d *Doctor) checkZjjInitialized() Check {
	if _, err := os.Stat(filepath.Join(d.RepoRoot, ".zjj")); err != nil {
		return Check{Name: "zjj_initialized", Status: StatusFail, Message: ".zjj directory not found",
			Suggestion: "run `zjj init`", AutoFixable: false}
	}
	return Check{Name: "zjj_initialized", Status: StatusPass, Message: "zjj is initialised"}
}

func (d *Doctor) checkStateDB() Check {
	if d.Store == nil {
		return Check{Name: "state_db", Status: StatusFail, Message: "session store is not open"}
	}
	if _, err := d.Store.List(nil); err != nil {
		return Check{Name: "state_db", Status: StatusFail, Message: "sessions.db is unreadable: " + err.Error()}
	}
	return Check{Name: "state_db", Status: StatusPass, Message: "sessions.db is readable"}
}

// checkOrphanedWorkspaces finds sessions whose workspace directory no
// longer exists on disk (spec §5 "Cancellation & timeouts" reconciliation
// duty). Workspace directories with no matching session row are not
// detected.
func (d *Doctor) checkOrphanedWorkspaces(ctx context.Context) Check {
	if d.Store == nil {
		return Check{Name: "orphaned_workspaces", Status: StatusPass, Message: "skipped: no store"}
	}
	sessions, err := d.Store.List(nil)
	if err != nil {
		return Check{Name: "orphaned_workspaces", Status: StatusFail, Message: "failed to list sessions: " + err.Error()}
	}
	var orphaned []string
	for _, sess := range sessions {
		if _, err := os.Stat(sess.WorkspacePath); err != nil {
			orphaned = append(orphaned, sess.Name)
		}
	}
	if len(orphaned) == 0 {
		return Check{Name: "orphaned_workspaces", Status: StatusPass, Message: "no orphaned sessions found"}
	}
	names := orphaned
	return Check{
		Name: "orphaned_workspaces", Status: StatusFail,
		Message:     "sessions reference workspace directories that no longer exist",
		Suggestion:  "run `doctor --fix` to remove orphaned session rows",
		AutoFixable: true,
		Details:     map[string]any{"sessions": names},
		fix: func(ctx context.Context) error {
			for _, name := range names {
				if _, err := d.Store.Delete(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (d *Doctor) checkStaleSessions() Check {
	if d.Store == nil {
		return Check{Name: "stale_sessions", Status: StatusPass, Message: "skipped: no store"}
	}
	syncing := store.StatusSyncing
	stale, err := d.Store.List(&store.Filter{Status: &syncing})
	if err != nil {
		return Check{Name: "stale_sessions", Status: StatusFail, Message: "failed to list sessions: " + err.Error()}
	}
	if len(stale) == 0 {
		return Check{Name: "stale_sessions", Status: StatusPass, Message: "no sessions stuck mid-sync"}
	}
	return Check{Name: "stale_sessions", Status: StatusWarn,
		Message:    "sessions are stuck in Syncing, possibly from an aborted process",
		Suggestion: "re-run sync for the affected sessions", AutoFixable: false,
		Details: map[string]any{"count": len(stale)},
	}
}

func (d *Doctor) checkPendingAddOperations() Check {
	if d.Store == nil {
		return Check{Name: "pending_add_operations", Status: StatusPass, Message: "skipped: no store"}
	}
	creating := store.StatusCreating
	pending, err := d.Store.List(&store.Filter{Status: &creating})
	if err != nil {
		return Check{Name: "pending_add_operations", Status: StatusFail, Message: "failed to list sessions: " + err.Error()}
	}
	if len(pending) == 0 {
		return Check{Name: "pending_add_operations", Status: StatusPass, Message: "no sessions stuck in Creating"}
	}
	names := make([]string, len(pending))
	for i, s := range pending {
		names[i] = s.Name
	}
	return Check{
		Name: "pending_add_operations", Status: StatusFail,
		Message:     "sessions are stuck in Creating, likely from an interrupted add",
		Suggestion:  "run `doctor --fix` to clean up incomplete reservations",
		AutoFixable: true,
		Details:     map[string]any{"sessions": names},
		fix: func(ctx context.Context) error {
			for _, name := range names {
				if _, err := d.Store.Delete(name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// checkWorkspaceIntegrity folds the per-session workspace validation
// (internal/integrity) into the doctor suite so a single `zjj doctor` run
// surfaces corruption across every live session, not just the one a caller
// happens to `zjj integrity validate` by hand.
func (d *Doctor) checkWorkspaceIntegrity(ctx context.Context) Check {
	if d.Store == nil || d.Validator == nil {
		return Check{Name: "workspace_integrity", Status: StatusPass, Message: "skipped: no store or validator"}
	}
	sessions, err := d.Store.List(nil)
	if err != nil {
		return Check{Name: "workspace_integrity", Status: StatusFail, Message: "failed to list sessions: " + err.Error()}
	}
	type sessionIssues struct {
		Session string                    `json:"session"`
		Issues  []integrity.IntegrityIssue `json:"issues"`
	}
	var affected []sessionIssues
	for _, sess := range sessions {
		result := d.Validator.Validate(ctx, sess.WorkspacePath)
		if !result.IsValid {
			affected = append(affected, sessionIssues{Session: sess.Name, Issues: result.Issues})
		}
	}
	if len(affected) == 0 {
		return Check{Name: "workspace_integrity", Status: StatusPass, Message: "all session workspaces validated clean"}
	}
	return Check{
		Name: "workspace_integrity", Status: StatusFail,
		Message:     "one or more session workspaces failed integrity validation",
		Suggestion:  "run `zjj integrity repair <session>` for each affected session",
		AutoFixable: false,
		Details:     map[string]any{"sessions": affected},
	}
}

// checkBeadsIntegration checks the narrow beads interface spec §1 scopes:
// a configured issue-tracking DB path, consumed but never deeply integrated.
func (d *Doctor) checkBeadsIntegration() Check {
	path := os.Getenv("ZJJ_BEADS_DB")
	if path == "" {
		return Check{Name: "beads_integration", Status: StatusPass, Message: "beads integration not configured"}
	}
	if _, err := os.Stat(path); err != nil {
		return Check{Name: "beads_integration", Status: StatusWarn,
			Message:    "ZJJ_BEADS_DB is set but the database is not readable: " + err.Error(),
			Suggestion: "check the ZJJ_BEADS_DB path or unset it to disable beads integration"}
	}
	return Check{Name: "beads_integration", Status: StatusPass, Message: "beads database is configured and readable"}
}

// checkWorkflowHealth inspects in-flight queue entries for ones stuck past
// their own configured test timeout, a real signal for a wedged merge train
// rather than a disguised no-op.
func (d *Doctor) checkWorkflowHealth() Check {
	if d.Store == nil {
		return Check{Name: "workflow_health", Status: StatusPass, Message: "skipped: no store"}
	}
	inFlight := []store.QueueStatus{store.QueueClaimed, store.QueueRebasing, store.QueueTesting, store.QueueMerging}
	now := time.Now().Unix()
	var stuck []int64
	for _, st := range inFlight {
		status := st
		entries, err := d.Store.ListQueue(&store.QueueFilter{Status: &status})
		if err != nil {
			return Check{Name: "workflow_health", Status: StatusFail, Message: "failed to list queue: " + err.Error()}
		}
		for _, e := range entries {
			if e.StartedAt == nil {
				continue
			}
			timeout := int64(e.TestTimeoutSecs)
			if timeout <= 0 {
				continue
			}
			if now-*e.StartedAt > timeout {
				stuck = append(stuck, e.ID)
			}
		}
	}
	if len(stuck) == 0 {
		return Check{Name: "workflow_health", Status: StatusPass, Message: "no workflow issues detected"}
	}
	return Check{Name: "workflow_health", Status: StatusWarn,
		Message:    "queue entries are stuck past their test timeout",
		Suggestion: "inspect the merge train for a wedged or crashed worker",
		Details:    map[string]any{"entries": stuck},
	}
}

// checkWorkspaceContext reports whether the doctor process is itself running
// inside a spawned session workspace (ZJJ_WORKSPACE, set by `zjj spawn`'s
// child environment) and whether that workspace still has a matching row.
func (d *Doctor) checkWorkspaceContext() Check {
	ws := os.Getenv("ZJJ_WORKSPACE")
	if ws == "" {
		return Check{Name: "workspace_context", Status: StatusPass, Message: "not running inside a session workspace"}
	}
	if d.Store == nil {
		return Check{Name: "workspace_context", Status: StatusPass, Message: "skipped: no store"}
	}
	sessions, err := d.Store.List(nil)
	if err != nil {
		return Check{Name: "workspace_context", Status: StatusFail, Message: "failed to list sessions: " + err.Error()}
	}
	for _, sess := range sessions {
		if sess.WorkspacePath == ws {
			return Check{Name: "workspace_context", Status: StatusPass, Message: "running inside session " + sess.Name}
		}
	}
	return Check{Name: "workspace_context", Status: StatusWarn,
		Message:    "ZJJ_WORKSPACE does not match any known session workspace",
		Suggestion: "the session backing this workspace may have been removed"}
}

// Package train is the Merge Train described in spec §4.F. It drains the
// Merge Queue one entry at a time, walking Claimed -> Rebasing -> Testing
// -> ReadyToMerge -> Merging -> Merged, and emits a TrainStep per phase plus
// one terminal TrainResult. The per-phase-classify-retry shape is grounded
// on the teacher's internal/supervision reconcile step, which also
// classifies a phase's outcome into a small enum before deciding whether to
// continue, retry, or stop.
package train

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vinayprograms/zjj/internal/config"
	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/oplock"
	"github.com/vinayprograms/zjj/internal/queue"
	"github.com/vinayprograms/zjj/internal/store"
	"github.com/vinayprograms/zjj/internal/telemetry"
	"github.com/vinayprograms/zjj/internal/vcsadapter"
)

// TestRunner executes the configured test command with a wall-clock
// timeout and classifies the result (spec §4.F step 3).
type TestRunner interface {
	RunTests(ctx context.Context, workDir string, timeout time.Duration) (exitCode int, err error)
}

// ShellTestRunner runs the workspace's configured test command (if any)
// via $SHELL -c, the same spawn style as lifecycle's HookRunner.
type ShellTestRunner struct {
	Command string
}

func (r ShellTestRunner) RunTests(ctx context.Context, workDir string, timeout time.Duration) (int, error) {
	if r.Command == "" {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", r.Command)
	cmd.Dir = workDir
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return 124, ctx.Err()
	}
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Train is the Merge Train worker (spec §4.F).
type Train struct {
	Queue    *queue.Queue
	VCS      *vcsadapter.Adapter
	Lock     *oplock.Serializer
	Tests    TestRunner
	Sink     event.Sink
	Config   *config.Config
	RepoRoot string
	AgentID  string
}

// New wires a Train from its collaborators.
func New(q *queue.Queue, vcs *vcsadapter.Adapter, lock *oplock.Serializer, tests TestRunner, sink event.Sink, cfg *config.Config, repoRoot, agentID string) *Train {
	return &Train{Queue: q, VCS: vcs, Lock: lock, Tests: tests, Sink: sink, Config: cfg, RepoRoot: repoRoot, AgentID: agentID}
}

func isRetryableExit(cfg *config.Config, code int) bool {
	for _, c := range cfg.MergeTrain.RetryableExitCodes {
		if c == code {
			return true
		}
	}
	return code == 124
}

func isTerminalExit(cfg *config.Config, code int) bool {
	for _, c := range cfg.MergeTrain.TerminalExitCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Step drains at most one entry from the queue and walks it through the
// full state machine. It returns (false, nil) when the queue has nothing
// claimable right now.
func (t *Train) Step(ctx context.Context) (did bool, retErr error) {
	ctx, span := telemetry.StartSpan(ctx, "train.step")
	defer func() { telemetry.EndSpan(span, retErr) }()

	entry, err := t.Queue.NextWithLock(t.AgentID, 30)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	defer t.Queue.ReleaseLock(t.AgentID)

	span.SetAttributes(attribute.Int64("queue.entry_id", entry.ID), attribute.String("queue.workspace", entry.Workspace))
	t.emitStep(entry.ID, "Claimed", "claimed for processing")

	workspacePath := vcsadapter.JoinPath(t.Config.Workspace.Dir, entry.Workspace)
	mainBranch := t.VCS.MainBranchHead(ctx, workspacePath)

	t.emitStep(entry.ID, "Rebasing", "rebasing onto "+mainBranch)
	t.Queue.Store.SetQueueStatus(entry.ID, store.QueueRebasing)
	rebaseErr := t.Lock.Run(ctx, func(ctx context.Context) error {
		return t.VCS.WorkspaceRebaseOnto(ctx, workspacePath, mainBranch)
	})
	if rebaseErr != nil {
		t.fail(entry.Workspace, entry.ID, false, "rebase conflict", rebaseErr)
		return true, nil
	}
	t.Queue.Store.SetQueueStatus(entry.ID, store.QueueTesting)

	timeout := time.Duration(entry.TestTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(t.Config.MergeTrain.TestTimeoutSecs) * time.Second
	}
	t.emitStep(entry.ID, "Testing", fmt.Sprintf("running tests (timeout=%s)", timeout))
	exitCode, testErr := t.Tests.RunTests(ctx, workspacePath, timeout)
	switch {
	case exitCode == 0 && testErr == nil:
		t.Queue.Store.SetQueueStatus(entry.ID, store.QueueReadyToMerge)
	case isRetryableExit(t.Config, exitCode):
		t.fail(entry.Workspace, entry.ID, true, "tests failed retryably", testErr)
		return true, nil
	case isTerminalExit(t.Config, exitCode) || testErr != nil:
		t.fail(entry.Workspace, entry.ID, false, "tests failed deterministically", testErr)
		return true, nil
	default:
		// an unclassified non-zero exit defaults to retryable, matching the
		// "flaky tests, test-runner crash" default spec §4.F names.
		t.fail(entry.Workspace, entry.ID, true, "tests failed with unclassified exit code", testErr)
		return true, nil
	}

	t.emitStep(entry.ID, "Merging", "squash, rebase, push onto "+mainBranch)
	t.Queue.Store.SetQueueStatus(entry.ID, store.QueueMerging)
	mergeErr := t.Lock.Run(ctx, func(ctx context.Context) error {
		if err := t.VCS.WorkspaceSquash(ctx, workspacePath); err != nil {
			return err
		}
		if err := t.VCS.WorkspaceRebaseOnto(ctx, workspacePath, mainBranch); err != nil {
			return err
		}
		return t.VCS.WorkspaceGitPush(ctx, workspacePath)
	})
	if mergeErr != nil {
		t.fail(entry.Workspace, entry.ID, false, "merge failed", mergeErr)
		return true, nil
	}

	if _, err := t.Queue.MarkCompleted(entry.Workspace); err != nil {
		return true, err
	}
	t.emitResult(entry.ID, "Merged", "merged onto "+mainBranch)
	return true, nil
}

// Run loops Step until the queue is empty or ctx is cancelled, sleeping
// idlePause between empty polls (spec §4.F "sleep and retry, caller-
// controlled loop").
func (t *Train) Run(ctx context.Context, idlePause time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		did, err := t.Step(ctx)
		if err != nil {
			return err
		}
		if !did {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idlePause):
			}
		}
	}
}

func (t *Train) fail(workspace string, entryID int64, retryable bool, detail string, cause error) {
	if err := t.Queue.MarkFailed(workspace, retryable); err != nil {
		detail = detail + " (mark_failed error: " + err.Error() + ")"
	}
	msg := detail
	if cause != nil {
		msg = detail + ": " + cause.Error()
	}
	outcome := "FailedTerminal"
	if retryable {
		outcome = "FailedRetryable"
	}
	t.emitStep(entryID, "Failed", msg)
	t.emitResult(entryID, outcome, msg)
}

func (t *Train) emitStep(entryID int64, action, detail string) {
	if t.Sink == nil {
		return
	}
	_ = t.Sink.Emit(event.Action(fmt.Sprintf("TrainStep:%d", entryID), action, statusForAction(action), map[string]any{"detail": detail}))
}

func (t *Train) emitResult(entryID int64, outcome, message string) {
	if t.Sink == nil {
		return
	}
	oc := event.OutcomeSuccess
	if strings.HasPrefix(strings.ToLower(outcome), "failed") || strings.EqualFold(outcome, "Cancelled") {
		oc = event.OutcomeFailure
	}
	_ = t.Sink.Emit(event.Result(fmt.Sprintf("TrainResult:%d", entryID), oc, message, map[string]any{"outcome": outcome}))
}

func statusForAction(action string) event.ActionStatus {
	switch action {
	case "Merged":
		return event.ActionCompleted
	case "Failed":
		return event.ActionFailed
	default:
		return event.ActionInProgress
	}
}

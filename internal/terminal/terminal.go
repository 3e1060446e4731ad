// Package terminal wraps `zellij action` subcommands for tab/pane control
// (spec §4.K). It mirrors vcsadapter's Runner-interface shape so tests can
// substitute a fake Zellij CLI.
package terminal

import (
	"context"
	"os/exec"
	"strings"

	"github.com/vinayprograms/zjj/internal/zerr"
)

// Runner abstracts process execution, grounded on vcsadapter.Runner
// (spec §9 "Subprocess adapter" applies equally to the terminal CLI).
type Runner interface {
	Run(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner spawns the real zellij binary.
type ExecRunner struct {
	Bin string // defaults to "zellij"
}

func (r ExecRunner) Run(ctx context.Context, args []string) (string, string, int, error) {
	bin := r.Bin
	if bin == "" {
		bin = "zellij"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			err = nil
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}

// Adapter is the Terminal Adapter described in spec §4.K.
type Adapter struct {
	Runner Runner
}

// New returns an Adapter that shells out to the real zellij binary.
func New() *Adapter {
	return &Adapter{Runner: ExecRunner{}}
}

func (a *Adapter) run(ctx context.Context, op string, args ...string) (string, error) {
	stdout, stderr, exitCode, spawnErr := a.Runner.Run(ctx, args)
	if spawnErr != nil {
		e := zerr.Wrap(zerr.SubprocessError, op, "zellij is not running or could not be spawned", spawnErr)
		e.WithContext("is_not_found", true)
		return "", e
	}
	if exitCode != 0 {
		low := strings.ToLower(stderr)
		switch {
		case strings.Contains(low, "no session") || strings.Contains(low, "not running"):
			return "", zerr.New(zerr.SubprocessError, op, "zellij is not running").WithContext("operation", op).WithContext("stderr", stderr).WithContext("exit_code", exitCode).WithContext("reason", "ZellijNotRunning")
		case strings.Contains(low, "no such tab") || strings.Contains(low, "tab not found"):
			return "", zerr.New(zerr.SubprocessError, op, "zellij tab not found").WithContext("operation", op).WithContext("stderr", stderr).WithContext("exit_code", exitCode).WithContext("reason", "ZellijTabNotFound")
		default:
			return "", zerr.New(zerr.SubprocessError, op, stderr).WithContext("operation", op).WithContext("stderr", stderr).WithContext("exit_code", exitCode)
		}
	}
	return stdout, nil
}

// OpenTab opens a new tab named tabName running cmd (if non-empty) in cwd.
func (a *Adapter) OpenTab(ctx context.Context, tabName, cwd string, cmd []string) error {
	if tabName == "" {
		return zerr.New(zerr.Validation, "terminal.open_tab", "tab name cannot be empty")
	}
	args := []string{"action", "new-tab", "--name", tabName}
	if cwd != "" {
		args = append(args, "--cwd", cwd)
	}
	if len(cmd) > 0 {
		args = append(args, "--")
		args = append(args, cmd...)
	}
	_, err := a.run(ctx, "open terminal tab "+tabName, args...)
	return err
}

// CloseTab closes the tab named tabName.
func (a *Adapter) CloseTab(ctx context.Context, tabName string) error {
	if tabName == "" {
		return zerr.New(zerr.Validation, "terminal.close_tab", "tab name cannot be empty")
	}
	if err := a.FocusTab(ctx, tabName); err != nil {
		return err
	}
	_, err := a.run(ctx, "close terminal tab "+tabName, "action", "close-tab")
	return err
}

// FocusTab switches focus to tabName.
func (a *Adapter) FocusTab(ctx context.Context, tabName string) error {
	if tabName == "" {
		return zerr.New(zerr.Validation, "terminal.focus_tab", "tab name cannot be empty")
	}
	_, err := a.run(ctx, "focus terminal tab "+tabName, "action", "go-to-tab-name", tabName)
	return err
}

// FocusNextPane moves focus to the next pane in the current tab.
func (a *Adapter) FocusNextPane(ctx context.Context) error {
	_, err := a.run(ctx, "focus next pane", "action", "focus-next-pane")
	return err
}

// RunningSessions lists active Zellij session names, tolerating a daemon
// that is not running at all (returns an empty list, not an error, since
// `zellij list-sessions` exits non-zero when no server is up).
func (a *Adapter) RunningSessions(ctx context.Context) ([]string, error) {
	out, _, exitCode, spawnErr := a.Runner.Run(ctx, []string{"list-sessions"})
	if spawnErr != nil {
		e := zerr.Wrap(zerr.SubprocessError, "list zellij sessions", "zellij could not be spawned", spawnErr)
		e.WithContext("is_not_found", true)
		return nil, e
	}
	if exitCode != 0 {
		return nil, nil
	}
	var sessions []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sessions = append(sessions, strings.Fields(line)[0])
	}
	return sessions, nil
}

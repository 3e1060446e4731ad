package main

import (
	"context"
	"os"
	"os/exec"

	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/zerr"
)

// SpawnCmd execs a hook or agent command inside a session's workspace with
// the environment contract spec §6 names: ZJJ_BEAD_ID, ZJJ_WORKSPACE,
// ZJJ_ACTIVE are always set, even when empty, so a missing variable in a
// spawned process is always a bug, never an absent optional.
type SpawnCmd struct {
	contractFlags
	Name    string   `arg:"" help:"Session name."`
	BeadID  string   `name:"bead-id" help:"Bead/issue id to expose as ZJJ_BEAD_ID."`
	Command []string `arg:"" help:"Command and arguments to execute."`
}

func (c *SpawnCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "spawn"); done || err != nil {
		return err
	}
	sess, err := app.Store.Get(c.Name)
	if err != nil {
		return err
	}
	if sess == nil {
		return zerr.New(zerr.NotFound, "cli.spawn", "session not found").WithContext("name", c.Name)
	}
	if len(c.Command) == 0 {
		return zerr.New(zerr.Validation, "cli.spawn", "a command to execute is required")
	}

	cmd := exec.CommandContext(context.Background(), c.Command[0], c.Command[1:]...)
	cmd.Dir = sess.WorkspacePath
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		"ZJJ_BEAD_ID="+c.BeadID,
		"ZJJ_WORKSPACE="+sess.WorkspacePath,
		"ZJJ_ACTIVE="+string(sess.Status),
	)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return zerr.New(zerr.SubprocessError, "cli.spawn", "spawned command exited non-zero").WithContext("exit_code", exitErr.ExitCode())
		}
		return zerr.Wrap(zerr.SubprocessError, "cli.spawn", "failed to spawn command", err)
	}
	return app.Sink.Emit(event.Result("spawn", event.OutcomeSuccess, "spawned command in "+c.Name, nil))
}

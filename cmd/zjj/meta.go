package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/zerr"
)

type SchemaCmd struct{}

func (c *SchemaCmd) Run(app *AppContext) error {
	return app.Sink.Emit(event.Summary("schema", "zjj JSONL event schema", map[string]any{
		"schema_url": "https://zjj.dev/schema/event.json",
		"types":      []string{"Session", "Summary", "Issue", "Plan", "Action", "Warning", "Result"},
	}))
}

var topLevelVerbs = []string{
	"init", "add", "remove", "list", "focus", "status", "sync", "diff", "query",
	"schema", "completions", "wait", "pane", "config", "checkpoint", "template",
	"integrity", "doctor", "introspect", "import", "export", "spawn", "queue", "train",
}

// CompletionsCmd writes a raw shell script to stdout rather than a JSONL
// envelope: a completion script must be sourceable shell text, not JSON.
type CompletionsCmd struct {
	Shell string `arg:"" optional:"" default:"bash" help:"bash or zsh."`
}

func (c *CompletionsCmd) Run(app *AppContext) error {
	var script string
	switch c.Shell {
	case "zsh":
		script = "#compdef zjj\n_arguments '1: :(" + strings.Join(topLevelVerbs, " ") + ")'\n"
	default:
		script = "complete -W \"" + strings.Join(topLevelVerbs, " ") + "\" zjj\n"
	}
	_, err := fmt.Fprint(os.Stdout, script)
	return err
}

type ConfigCmd struct {
	contractFlags
}

func (c *ConfigCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "config"); done || err != nil {
		return err
	}
	return app.Sink.Emit(event.Summary("config", "merged configuration", app.Config))
}

// PaneCmd controls the focused Zellij pane within the current tab.
type PaneCmd struct {
	Next PaneNextCmd `cmd:"" help:"Focus the next pane in the current Zellij tab."`
}

type PaneNextCmd struct{}

func (c *PaneNextCmd) Run(app *AppContext) error {
	if err := app.Terminal.FocusNextPane(context.Background()); err != nil {
		return err
	}
	return app.Sink.Emit(event.Result("pane_next", event.OutcomeSuccess, "focused next pane", nil))
}

// IntrospectCmd prints a named command's contract (spec §4.H
// "Introspection"): description, arguments, flags, examples, prerequisites,
// side effects, error conditions, as JSON.
type IntrospectCmd struct {
	Command string `arg:"" help:"Command name to describe (e.g. add, sync, queue-add)."`
}

func (c *IntrospectCmd) Run(app *AppContext) error {
	contract, ok := contracts[c.Command]
	if !ok {
		return zerr.New(zerr.NotFound, "cli.introspect", "no contract registered for this command").WithContext("command", c.Command)
	}
	return app.Sink.Emit(event.Summary("contract", c.Command, contract))
}

package main

import "github.com/alecthomas/kong"

// CLI is the top-level command surface (spec §6; the CLI surface there is
// explicitly illustrative, not normative on flag names). Queue and Train are
// added as first-class verbs since the named surface otherwise gives
// internal/queue and internal/train no way to be reached at all.
type CLI struct {
	Repo          string `help:"Repository root." default:"."`
	SchemaVersion string `help:"Schema version stamped onto emitted envelopes." name:"schema-version" default:"1"`

	Init        InitCmd        `cmd:"" help:"Initialise zjj in the current jj repository."`
	Add         AddCmd         `cmd:"" help:"Create a new session."`
	Remove      RemoveCmd      `cmd:"" help:"Remove a session."`
	List        ListCmd        `cmd:"" help:"List sessions."`
	Focus       FocusCmd       `cmd:"" help:"Focus a session's terminal tab."`
	Status      StatusCmd      `cmd:"" help:"Report session statuses."`
	Sync        SyncCmd        `cmd:"" help:"Sync a session onto the main branch."`
	Diff        DiffCmd        `cmd:"" help:"Report session diff summaries."`
	Query       QueryCmd       `cmd:"" help:"Query sessions or the merge queue."`
	Schema      SchemaCmd      `cmd:"" help:"Print the JSONL event schema."`
	Completions CompletionsCmd `cmd:"" help:"Print a shell completion script."`
	Wait        WaitCmd        `cmd:"" help:"Wait for a session to reach a target status."`
	Pane        PaneCmd        `cmd:"" help:"Control Zellij panes."`
	Config      ConfigCmd      `cmd:"" help:"Print the merged configuration."`
	Checkpoint  CheckpointCmd  `cmd:"" help:"Manage session checkpoints."`
	Template    TemplateCmd    `cmd:"" help:"Manage Zellij layout templates."`
	Integrity   IntegrityCmd   `cmd:"" help:"Validate and repair workspace integrity."`
	Doctor      DoctorCmd      `cmd:"" help:"Run environment and state diagnostics."`
	Introspect  IntrospectCmd  `cmd:"" help:"Describe a command's contract."`
	Import      ImportCmd      `cmd:"" help:"Import sessions from an export file."`
	Export      ExportCmd      `cmd:"" help:"Export sessions to a file."`
	Spawn       SpawnCmd       `cmd:"" help:"Spawn a hook or agent process inside a session's environment."`
	Queue       QueueCmd       `cmd:"" help:"Inspect and enqueue merge queue entries."`
	Train       TrainCmd       `cmd:"" help:"Drive the merge train worker."`

	Version kong.VersionFlag `help:"Print version and exit."`
}

package main

import "github.com/vinayprograms/zjj/internal/event"

// CheckpointCmd groups checkpoint lifecycle operations (spec §4.C /
// internal/store checkpoint.go): snapshot every session, list snapshots,
// restore one.
type CheckpointCmd struct {
	Create  CheckpointCreateCmd  `cmd:"" help:"Snapshot every current session."`
	List    CheckpointListCmd    `cmd:"" help:"List checkpoints."`
	Restore CheckpointRestoreCmd `cmd:"" help:"Restore sessions from a checkpoint."`
}

type CheckpointCreateCmd struct {
	Description string `arg:"" optional:"" help:"Optional human-readable description."`
}

func (c *CheckpointCreateCmd) Run(app *AppContext) error {
	cp, err := app.Store.CreateCheckpoint(c.Description)
	if err != nil {
		return err
	}
	return app.Sink.Emit(event.Summary("checkpoint", "checkpoint created", map[string]any{"id": cp.ID, "sessions": len(cp.Sessions)}))
}

type CheckpointListCmd struct{}

func (c *CheckpointListCmd) Run(app *AppContext) error {
	cps, err := app.Store.ListCheckpoints()
	if err != nil {
		return err
	}
	for _, cp := range cps {
		if err := app.Sink.Emit(event.Summary("checkpoint", cp.ID, map[string]any{"created_at": cp.CreatedAt, "description": cp.Description, "sessions": len(cp.Sessions)})); err != nil {
			return err
		}
	}
	return app.Sink.Emit(event.Summary("count", "checkpoint list complete", len(cps)))
}

type CheckpointRestoreCmd struct {
	ID string `arg:"" help:"Checkpoint id to restore."`
}

func (c *CheckpointRestoreCmd) Run(app *AppContext) error {
	if err := app.Store.RestoreCheckpoint(c.ID); err != nil {
		return err
	}
	return app.Sink.Emit(event.Result("checkpoint_restore", event.OutcomeSuccess, "restored checkpoint "+c.ID, nil))
}

package main

import (
	"context"

	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/integrity"
	"github.com/vinayprograms/zjj/internal/zerr"
)

// IntegrityCmd groups workspace validation, repair, and backup operations
// (spec §4.G Integrity & Recovery).
type IntegrityCmd struct {
	Validate IntegrityValidateCmd `cmd:"" help:"Validate a session's workspace."`
	Repair   IntegrityRepairCmd   `cmd:"" help:"Repair a session's workspace."`
	Backup   IntegrityBackupCmd   `cmd:"" help:"Snapshot a session's workspace."`
	Backups  IntegrityBackupsCmd  `cmd:"" help:"List a session's backups."`
	Restore  IntegrityRestoreCmd  `cmd:"" help:"Restore a session's workspace from a backup."`
}

func sessionWorkspacePath(app *AppContext, name string) (string, error) {
	sess, err := app.Store.Get(name)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", zerr.New(zerr.NotFound, "cli.integrity", "session not found").WithContext("name", name)
	}
	return sess.WorkspacePath, nil
}

type IntegrityValidateCmd struct {
	Name string `arg:""`
}

func (c *IntegrityValidateCmd) Run(app *AppContext) error {
	path, err := sessionWorkspacePath(app, c.Name)
	if err != nil {
		return err
	}
	result := app.Validator.Validate(context.Background(), path)
	return app.Sink.Emit(event.Summary("validation", c.Name, result))
}

type IntegrityRepairCmd struct {
	Name     string `arg:""`
	Strategy string `arg:"" help:"NoRepairPossible, Reinitialize, RestoreFromBackup, or ForceUnlock."`
}

func (c *IntegrityRepairCmd) Run(app *AppContext) error {
	path, err := sessionWorkspacePath(app, c.Name)
	if err != nil {
		return err
	}
	result, err := app.Repairer.Repair(context.Background(), c.Name, path, integrity.RepairStrategy(c.Strategy))
	if err != nil {
		return err
	}
	if err := app.Recovery.Log("repair " + c.Strategy + " on " + c.Name + ": " + result.Summary); err != nil {
		return err
	}
	return app.Sink.Emit(event.Summary("repair", c.Name, result))
}

type IntegrityBackupCmd struct {
	Name   string `arg:""`
	Reason string `default:"manual"`
}

func (c *IntegrityBackupCmd) Run(app *AppContext) error {
	path, err := sessionWorkspacePath(app, c.Name)
	if err != nil {
		return err
	}
	meta, err := app.Backups.Create(c.Name, path, c.Reason)
	if err != nil {
		return err
	}
	return app.Sink.Emit(event.Summary("backup", c.Name, meta))
}

type IntegrityBackupsCmd struct {
	Name string `arg:""`
}

func (c *IntegrityBackupsCmd) Run(app *AppContext) error {
	backups, err := app.Backups.List(c.Name)
	if err != nil {
		return err
	}
	for _, b := range backups {
		if err := app.Sink.Emit(event.Summary("backup", b.ID, b)); err != nil {
			return err
		}
	}
	return app.Sink.Emit(event.Summary("count", "backup list complete", len(backups)))
}

type IntegrityRestoreCmd struct {
	Name     string `arg:""`
	BackupID string `arg:"" name:"backup-id"`
}

func (c *IntegrityRestoreCmd) Run(app *AppContext) error {
	path, err := sessionWorkspacePath(app, c.Name)
	if err != nil {
		return err
	}
	if err := app.Backups.Restore(c.BackupID, c.Name, path); err != nil {
		return err
	}
	if err := app.Recovery.Log("restored " + c.Name + " from backup " + c.BackupID); err != nil {
		return err
	}
	return app.Sink.Emit(event.Result("restore", event.OutcomeSuccess, "restored "+c.Name+" from "+c.BackupID, nil))
}

// DoctorCmd runs the fixed diagnostic suite (spec §4.H Doctor) and,
// with --fix, applies every auto-fixable repair a failed check reported.
type DoctorCmd struct {
	contractFlags
	Fix bool `help:"Apply auto-fixable repairs after reporting."`
}

func (c *DoctorCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "doctor"); done || err != nil {
		return err
	}
	ctx := context.Background()
	out := app.Doctor.Run(ctx)
	if err := app.Sink.Emit(event.Summary("doctor", "diagnostics complete", out)); err != nil {
		return err
	}
	if c.Fix {
		fixed, err := app.Doctor.Fix(ctx, out.Checks)
		if err != nil {
			return err
		}
		if err := app.Sink.Emit(event.Summary("doctor_fix", "auto-fix complete", map[string]any{"fixed": fixed})); err != nil {
			return err
		}
		out = app.Doctor.Run(ctx)
		if err := app.Sink.Emit(event.Summary("doctor", "diagnostics complete after fix", out)); err != nil {
			return err
		}
	}
	if !out.Healthy {
		return zerr.New(zerr.Validation, "cli.doctor", "one or more checks failed")
	}
	return nil
}

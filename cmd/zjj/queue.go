package main

import (
	"context"
	"time"

	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/queue"
)

func queueStatusFilter(s string) *queue.Status {
	if s == "" {
		return nil
	}
	st := queue.Status(s)
	return &st
}

// QueueCmd groups Merge Queue inspection and manual enqueue (spec §4.E).
// The CLI surface in spec §6 is illustrative and names no queue verb
// explicitly; this is the thin exposure the already-built queue package
// needs to be reachable at all.
type QueueCmd struct {
	Add   QueueAddCmd   `cmd:"" help:"Enqueue a workspace for the merge train."`
	List  QueueListCmd  `cmd:"" help:"List merge queue entries."`
	Stats QueueStatsCmd `cmd:"" help:"Report merge queue occupancy."`
}

type QueueAddCmd struct {
	contractFlags
	Workspace       string `arg:"" help:"Workspace (session name) to enqueue."`
	BeadID          string `name:"bead-id" help:"Associated bead/issue id."`
	Priority        int    `default:"0" help:"Lower values are processed first."`
	DedupeKey       string `name:"dedupe-key" help:"Idempotency key; a pending entry with the same key is returned instead of duplicated."`
	MaxAttempts     int    `name:"max-attempts" default:"0" help:"0 uses the configured default."`
	TestTimeoutSecs int    `name:"test-timeout-secs" default:"0" help:"0 uses the configured default."`
}

func (c *QueueAddCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "queue-add"); done || err != nil {
		return err
	}
	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = app.Config.MergeTrain.MaxAttempts
	}
	timeout := c.TestTimeoutSecs
	if timeout <= 0 {
		timeout = app.Config.MergeTrain.TestTimeoutSecs
	}
	entry, err := app.Queue.Add(c.Workspace, c.BeadID, c.Priority, c.DedupeKey, maxAttempts, timeout)
	if err != nil {
		return err
	}
	return app.Sink.Emit(event.Summary("queue_entry", "enqueued "+c.Workspace, entry))
}

type QueueListCmd struct {
	Status string `help:"Filter by queue status."`
}

func (c *QueueListCmd) Run(app *AppContext) error {
	entries, err := app.Queue.List(queueStatusFilter(c.Status))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := app.Sink.Emit(event.Summary("queue_entry", e.Workspace, e)); err != nil {
			return err
		}
	}
	return app.Sink.Emit(event.Summary("count", "queue list complete", len(entries)))
}

type QueueStatsCmd struct{}

func (c *QueueStatsCmd) Run(app *AppContext) error {
	stats, err := app.Queue.Stats()
	if err != nil {
		return err
	}
	return app.Sink.Emit(event.Summary("queue_stats", "merge queue occupancy", stats))
}

// TrainCmd drives the Merge Train worker (spec §4.F): Step runs a single
// claim-and-process cycle, Run loops until ctx is cancelled.
type TrainCmd struct {
	Step TrainStepCmd `cmd:"" help:"Process at most one queue entry."`
	Run  TrainRunCmd  `cmd:"" help:"Loop, processing entries until interrupted."`
}

type TrainStepCmd struct {
	contractFlags
}

func (c *TrainStepCmd) Run(app *AppContext) error {
	if done, err := c.maybePrintContract(app, "train-step"); done || err != nil {
		return err
	}
	did, err := app.Train.Step(context.Background())
	if err != nil {
		return err
	}
	return app.Sink.Emit(event.Summary("train_step", "step complete", map[string]any{"processed": did}))
}

type TrainRunCmd struct {
	IdlePauseMs int `name:"idle-pause-ms" default:"2000" help:"Sleep between empty polls."`
}

func (c *TrainRunCmd) Run(app *AppContext) error {
	return app.Train.Run(context.Background(), time.Duration(c.IdlePauseMs)*time.Millisecond)
}

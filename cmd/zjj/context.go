package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vinayprograms/zjj/internal/config"
	"github.com/vinayprograms/zjj/internal/doctor"
	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/integrity"
	"github.com/vinayprograms/zjj/internal/lifecycle"
	"github.com/vinayprograms/zjj/internal/oplock"
	"github.com/vinayprograms/zjj/internal/queue"
	"github.com/vinayprograms/zjj/internal/store"
	"github.com/vinayprograms/zjj/internal/template"
	"github.com/vinayprograms/zjj/internal/terminal"
	"github.com/vinayprograms/zjj/internal/train"
	"github.com/vinayprograms/zjj/internal/vcsadapter"
	"github.com/vinayprograms/zjj/internal/zerr"
)

// AppContext wires every component over one repository root. It is bound
// into kong's Run(app *AppContext) methods via kong.Context.Run, the same
// dependency-injection-by-reflection kong offers for any runtime value a
// command needs beyond its own flags.
type AppContext struct {
	RepoRoot string
	Config   *config.Config
	Sink     event.Sink

	Store     *store.Store
	VCS       *vcsadapter.Adapter
	Terminal  *terminal.Adapter
	Lock      *oplock.Serializer
	Lifecycle *lifecycle.Manager
	Queue     *queue.Queue
	Train     *train.Train
	Validator *integrity.Validator
	Repairer  *integrity.RepairExecutor
	Backups   *integrity.BackupManager
	Recovery  *integrity.RecoveryLogger
	Doctor    *doctor.Doctor
	Templates *template.Store

	AgentID string
}

// newAppContext opens (creating if necessary) every piece of durable state
// under <repoRoot>/.zjj and wires the components that operate on it.
func newAppContext(repo string, sink event.Sink) (*AppContext, error) {
	repoRoot, err := filepath.Abs(repo)
	if err != nil {
		return nil, zerr.Wrap(zerr.IO, "cli.context", "failed to resolve repository root", err)
	}

	zjjDir := filepath.Join(repoRoot, ".zjj")
	if err := os.MkdirAll(zjjDir, 0755); err != nil {
		return nil, zerr.Wrap(zerr.IO, "cli.context", "failed to create .zjj directory", err)
	}

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(zjjDir, "sessions.db"))
	if err != nil {
		return nil, err
	}

	vcs := vcsadapter.New()
	term := terminal.New()
	lock := oplock.New(repoRoot)
	q := queue.New(st)
	backups := integrity.NewBackupManager(filepath.Join(zjjDir, "backups"))
	validator := integrity.NewValidator(vcs)
	repairer := integrity.NewRepairExecutor(validator, backups, vcs)
	recovery := integrity.NewRecoveryLogger(filepath.Join(zjjDir, "recovery.log"), cfg.Recovery.LogRecovered)
	doc := doctor.New(repoRoot, vcs, term, st, backups, validator)
	templates := template.NewStore(filepath.Join(zjjDir, "templates"))

	agentID := os.Getenv("ZJJ_AGENT_ID")
	if agentID == "" {
		host, _ := os.Hostname()
		agentID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	lifecycleMgr := lifecycle.New(st, vcs, term, lock, sink, cfg, repoRoot)
	tests := train.ShellTestRunner{Command: os.Getenv("ZJJ_TEST_COMMAND")}
	trainWorker := train.New(q, vcs, lock, tests, sink, cfg, repoRoot, agentID)

	return &AppContext{
		RepoRoot:  repoRoot,
		Config:    cfg,
		Sink:      sink,
		Store:     st,
		VCS:       vcs,
		Terminal:  term,
		Lock:      lock,
		Lifecycle: lifecycleMgr,
		Queue:     q,
		Train:     trainWorker,
		Validator: validator,
		Repairer:  repairer,
		Backups:   backups,
		Recovery:  recovery,
		Doctor:    doc,
		Templates: templates,
		AgentID:   agentID,
	}, nil
}

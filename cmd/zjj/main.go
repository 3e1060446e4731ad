package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/vinayprograms/zjj/internal/event"
	"github.com/vinayprograms/zjj/internal/zerr"
)

var version = "dev"

func main() {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("zjj"),
		kong.Description("Control plane for parallel jj workspaces and Zellij sessions."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	sink := event.NewWriterSink(os.Stdout)
	sink.SchemaVersion = cli.SchemaVersion

	app, err := newAppContext(cli.Repo, sink)
	if err != nil {
		_ = sink.Emit(issueFromErr(err))
		os.Exit(zerr.ExitCode(err))
	}
	defer app.Store.Close()

	runErr := kctx.Run(app)
	if runErr != nil {
		_ = sink.Emit(issueFromErr(runErr))
	}
	os.Exit(zerr.ExitCode(runErr))
}

func issueFromErr(err error) event.Envelope {
	ze, ok := err.(*zerr.Error)
	if !ok {
		return event.Issue("E_UNKNOWN", err.Error(), event.IssueExternal, event.SeverityError, "", "")
	}
	return event.Issue(ze.Code(), ze.Error(), issueKindFor(ze.Kind), event.SeverityError, "", ze.Op)
}

func issueKindFor(k zerr.Kind) event.IssueKind {
	switch k {
	case zerr.Validation:
		return event.IssueValidation
	case zerr.Conflict, zerr.InvalidTransition:
		return event.IssueStateConflict
	case zerr.NotFound:
		return event.IssueResourceMissing
	case zerr.Timeout, zerr.LockTimeout:
		return event.IssueTimeout
	default:
		return event.IssueExternal
	}
}

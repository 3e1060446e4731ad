package main

import (
	"testing"

	"github.com/vinayprograms/zjj/internal/event"
)

func TestMaybePrintContractShortCircuitsExecution(t *testing.T) {
	sink := event.NewMemorySink()
	app := &AppContext{Sink: sink}

	flags := contractFlags{Contract: true, AIHints: true}
	done, err := flags.maybePrintContract(app, "add")
	if err != nil {
		t.Fatalf("maybePrintContract: %v", err)
	}
	if !done {
		t.Fatal("expected maybePrintContract to report done when --contract is set")
	}

	events := sink.All()
	if len(events) != 1 {
		t.Fatalf("expected exactly one emitted envelope, got %d", len(events))
	}
	if events[0].Message != "add" {
		t.Fatalf("expected message %q, got %q", "add", events[0].Message)
	}
	contract, ok := events[0].Details.(CommandContract)
	if !ok {
		t.Fatalf("expected Details to be a CommandContract, got %T", events[0].Details)
	}
	if len(contract.AIHints) == 0 {
		t.Fatal("expected --ai-hints to populate AIHints for add")
	}
}

func TestMaybePrintContractIsNoopWhenFlagUnset(t *testing.T) {
	sink := event.NewMemorySink()
	app := &AppContext{Sink: sink}

	flags := contractFlags{}
	done, err := flags.maybePrintContract(app, "add")
	if err != nil {
		t.Fatalf("maybePrintContract: %v", err)
	}
	if done {
		t.Fatal("expected maybePrintContract to be a no-op without --contract")
	}
	if len(sink.All()) != 0 {
		t.Fatal("expected no envelope emitted without --contract")
	}
}

func TestMaybePrintContractFallsBackForUnknownCommand(t *testing.T) {
	sink := event.NewMemorySink()
	app := &AppContext{Sink: sink}

	flags := contractFlags{Contract: true}
	done, err := flags.maybePrintContract(app, "no-such-command")
	if err != nil {
		t.Fatalf("maybePrintContract: %v", err)
	}
	if !done {
		t.Fatal("expected done even for an unregistered command")
	}
	contract := sink.All()[0].Details.(CommandContract)
	if contract.Description == "" {
		t.Fatal("expected a fallback description for an unregistered command")
	}
}

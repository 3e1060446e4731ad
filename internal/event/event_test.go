package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestWriterSinkEmitsOneJSONObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)

	if err := sink.Emit(Session("my-feature", "/ws/my-feature", "zjj:my-feature", "Active", "")); err != nil {
		t.Fatalf("emit session: %v", err)
	}
	if err := sink.Emit(Result("create", OutcomeSuccess, "created", nil)); err != nil {
		t.Fatalf("emit result: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, line := range lines {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line did not parse as JSON object: %v", err)
		}
		if _, ok := m["type"]; !ok {
			t.Fatalf("line missing type field: %s", line)
		}
	}
}

func TestValidationRejectsBlankAndOversized(t *testing.T) {
	sink := NewMemorySink()
	if err := sink.Emit(Summary("status", "   ", nil)); err == nil {
		t.Fatal("expected error for blank message")
	}
	big := strings.Repeat("x", 1001)
	if err := sink.Emit(Action("sync", big, ActionCompleted, nil)); err == nil {
		t.Fatal("expected error for oversized target")
	}
	if len(sink.All()) != 0 {
		t.Fatal("invalid envelopes must not be recorded")
	}
}

func TestMemorySinkCapturesOrder(t *testing.T) {
	sink := NewMemorySink()
	_ = sink.Emit(Issue("i1", "bad name", IssueValidation, SeverityError, "", ""))
	_ = sink.Emit(Result("add", OutcomeFailure, "rejected", nil))

	events := sink.All()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != string(KindIssue) || events[1].Type != string(KindResult) {
		t.Fatalf("events out of order: %+v", events)
	}
}

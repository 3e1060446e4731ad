// Package event implements the JSONL schema envelope described in spec §4.I.
//
// Every line written by a Sink is a single JSON object terminated by "\n";
// there is no other stdout output in non-interactive mode. The shape of the
// record types (a discriminated union keyed by "type") and the
// line-per-event, flush-per-line writer style are grounded on the teacher's
// JSONL session log (internal/session/session.go in vinayprograms-agent),
// generalised from a single forensic Event type to the family of envelope
// types spec §4.I names: Session, Summary, Issue, Plan, Action, Warning,
// Result.
package event

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Kind discriminates the JSON envelope's "type" field.
type Kind string

const (
	KindSession Kind = "Session"
	KindSummary Kind = "Summary"
	KindIssue   Kind = "Issue"
	KindPlan    Kind = "Plan"
	KindAction  Kind = "Action"
	KindWarning Kind = "Warning"
	KindResult  Kind = "Result"
)

// IssueKind enumerates the categories a Issue line may carry.
type IssueKind string

const (
	IssueValidation      IssueKind = "validation"
	IssueStateConflict   IssueKind = "state_conflict"
	IssueResourceMissing IssueKind = "resource_not_found"
	IssuePermission      IssueKind = "permission_denied"
	IssueTimeout         IssueKind = "timeout"
	IssueConfiguration   IssueKind = "configuration"
	IssueExternal        IssueKind = "external"
)

// Severity enumerates Issue severities.
type Severity string

const (
	SeverityHint     Severity = "hint"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ActionStatus enumerates Action.Status values.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionFailed     ActionStatus = "failed"
	ActionSkipped    ActionStatus = "skipped"
)

// Outcome enumerates Result.Outcome values.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Envelope is the generic JSONL line. Concrete constructors below populate
// only the fields relevant to their Kind; encoding/json omits the rest via
// omitempty.
type Envelope struct {
	Type string `json:"type"`

	// Session
	Name          string `json:"name,omitempty"`
	WorkspacePath string `json:"workspace_path,omitempty"`
	ZellijTab     string `json:"zellij_tab,omitempty"`
	Status        string `json:"status,omitempty"`
	Branch        string `json:"branch,omitempty"`

	// Summary
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`

	// Issue
	ID         string    `json:"id,omitempty"`
	Title      string    `json:"title,omitempty"`
	IssueKind  IssueKind `json:"kind,omitempty"`
	Severity   Severity  `json:"severity,omitempty"`
	Suggestion string    `json:"suggestion,omitempty"`
	Scope      string    `json:"scope,omitempty"`

	// Action
	Verb         string       `json:"verb,omitempty"`
	Target       string       `json:"target,omitempty"`
	ActionStatus ActionStatus `json:"action_status,omitempty"`
	Result       any          `json:"result,omitempty"`

	// Warning
	Code    string `json:"code,omitempty"`
	Context any    `json:"context,omitempty"`

	// Result
	ResultKind string  `json:"result_kind,omitempty"`
	Outcome    Outcome `json:"outcome,omitempty"`
	Data       any     `json:"data,omitempty"`
}

// validate rejects empty/whitespace-only required strings and oversized
// targets per spec §4.I.
func validate(e Envelope) error {
	isBlank := func(s string) bool {
		for _, r := range s {
			if r != ' ' && r != '\t' && r != '\n' {
				return false
			}
		}
		return true
	}
	switch Kind(e.Type) {
	case KindSession:
		if isBlank(e.Name) {
			return fmt.Errorf("event: Session.name must not be blank")
		}
	case KindSummary:
		if isBlank(e.Message) {
			return fmt.Errorf("event: Summary.message must not be blank")
		}
	case KindIssue:
		if isBlank(e.Title) {
			return fmt.Errorf("event: Issue.title must not be blank")
		}
	case KindAction:
		if isBlank(e.Verb) || isBlank(e.Target) {
			return fmt.Errorf("event: Action.verb/target must not be blank")
		}
		if len(e.Target) > 1000 {
			return fmt.Errorf("event: Action.target exceeds 1000 bytes")
		}
	case KindWarning:
		if isBlank(e.Code) {
			return fmt.Errorf("event: Warning.code must not be blank")
		}
	case KindResult:
		if isBlank(e.Message) {
			return fmt.Errorf("event: Result.message must not be blank")
		}
	}
	return nil
}

// Session builds a Session envelope snapshot.
func Session(name, workspacePath, zellijTab, status, branch string) Envelope {
	return Envelope{Type: string(KindSession), Name: name, WorkspacePath: workspacePath, ZellijTab: zellijTab, Status: status, Branch: branch}
}

// Summary builds a Summary envelope.
func Summary(kind, message string, details any) Envelope {
	return Envelope{Type: string(KindSummary), ResultKind: kind, Message: message, Details: details}
}

// Issue builds an Issue envelope.
func Issue(id, title string, kind IssueKind, severity Severity, suggestion, scope string) Envelope {
	return Envelope{Type: string(KindIssue), ID: id, Title: title, IssueKind: kind, Severity: severity, Suggestion: suggestion, Scope: scope}
}

// Action builds an Action envelope.
func Action(verb, target string, status ActionStatus, result any) Envelope {
	return Envelope{Type: string(KindAction), Verb: verb, Target: target, ActionStatus: status, Result: result}
}

// Warning builds a Warning envelope.
func Warning(code, message string, context any) Envelope {
	return Envelope{Type: string(KindWarning), Code: code, Message: message, Context: context}
}

// Result builds a Result envelope.
func Result(kind string, outcome Outcome, message string, data any) Envelope {
	return Envelope{Type: string(KindResult), ResultKind: kind, Outcome: outcome, Message: message, Data: data}
}

// Sink is the collaborator the Lifecycle Manager and Merge Train emit
// through. At least two implementations exist: a stdout-JSONL writer and an
// in-memory capture for tests (spec §9 "Event sink").
type Sink interface {
	Emit(e Envelope) error
}

// WriterSink flushes one JSON object per line to the underlying writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
	// SchemaVersion, when non-empty, merges the SchemaEnvelope fields
	// ($schema/_schema_version/schema_type) into every emitted line;
	// cmd/zjj sets it from the --schema-version flag.
	SchemaVersion string
}

// NewWriterSink returns a Sink that writes JSONL to w, flushing per line.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Emit(e Envelope) error {
	if err := validate(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload any = e
	if s.SchemaVersion != "" {
		// encoding/json has no real ",inline"; flatten by marshalling the
		// envelope and merging schema fields in directly.
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		m["$schema"] = "https://zjj.dev/schema/event.json"
		m["_schema_version"] = s.SchemaVersion
		m["schema_type"] = e.Type
		payload = m
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = s.w.Write(b)
	return err
}

// MemorySink captures emitted envelopes in-process, for tests.
type MemorySink struct {
	mu     sync.Mutex
	Events []Envelope
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (m *MemorySink) Emit(e Envelope) error {
	if err := validate(e); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

func (m *MemorySink) All() []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Envelope, len(m.Events))
	copy(out, m.Events)
	return out
}

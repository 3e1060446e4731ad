package doctor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/vinayprograms/zjj/internal/store"
)

// TestRunOutputIsAlwaysValidJSON guards the JSON-validity invariant: no
// matter which checks pass, warn, or fail, the aggregated Output must
// marshal cleanly and round-trip through json.Unmarshal.
func TestRunOutputIsAlwaysValidJSON(t *testing.T) {
	d, _ := newTestDoctor(t)
	out := d.Run(context.Background())

	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTripped Output
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(roundTripped.Checks) != len(out.Checks) {
		t.Fatalf("expected %d checks after round trip, got %d", len(out.Checks), len(roundTripped.Checks))
	}
}

// TestRunIsReadOnly asserts check mode never mutates session rows: running
// Run several times over an unchanged store must yield byte-identical
// check results every time.
func TestRunIsReadOnly(t *testing.T) {
	d, s := newTestDoctor(t)
	if _, err := s.Create("steady", t.TempDir()); err != nil {
		t.Fatalf("create: %v", err)
	}

	first := d.Run(context.Background())
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal first: %v", err)
	}

	for i := 0; i < 3; i++ {
		again := d.Run(context.Background())
		againJSON, err := json.Marshal(again)
		if err != nil {
			t.Fatalf("marshal rerun %d: %v", i, err)
		}
		if string(againJSON) != string(firstJSON) {
			t.Fatalf("Run mutated state between calls: run 1 = %s, run %d = %s", firstJSON, i+2, againJSON)
		}
	}

	sessions, err := s.List(&store.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected Run to leave session count unchanged, got %d", len(sessions))
	}
}

// TestHealthyIffNoFailures exhaustively checks the aggregation rule across
// every combination of pass/warn/fail for a small fixed set of checks:
// Healthy must be true exactly when no check failed, regardless of warnings.
func TestHealthyIffNoFailures(t *testing.T) {
	statuses := []CheckStatus{StatusPass, StatusWarn, StatusFail}
	for _, a := range statuses {
		for _, b := range statuses {
			for _, c := range statuses {
				checks := []Check{{Name: "a", Status: a}, {Name: "b", Status: b}, {Name: "c", Status: c}}
				out := aggregate(checks)
				anyFailed := a == StatusFail || b == StatusFail || c == StatusFail
				if out.Healthy == anyFailed {
					t.Fatalf("aggregate(%v,%v,%v): healthy=%v, want healthy=%v", a, b, c, out.Healthy, !anyFailed)
				}
			}
		}
	}
}

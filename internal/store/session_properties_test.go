package store

import "testing"

// allStatuses enumerates every Status value so the transition-graph tests
// below can check every (from, to) pair exhaustively rather than sampling.
var allStatuses = []Status{
	StatusCreating, StatusActive, StatusSyncing, StatusSynced,
	StatusPaused, StatusCompleted, StatusFailed,
}

func TestValidateStatusTransitionMatchesGraphForEveryPair(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			allowed := transitions[from][to]
			err := ValidateStatusTransition(from, to)
			if allowed && err != nil {
				t.Errorf("expected %s -> %s to be allowed, got error: %v", from, to, err)
			}
			if !allowed && err == nil {
				t.Errorf("expected %s -> %s to be rejected, got nil error", from, to)
			}
		}
	}
}

func TestValidateStatusTransitionIsDeterministic(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			err1 := ValidateStatusTransition(from, to)
			err2 := ValidateStatusTransition(from, to)
			if (err1 == nil) != (err2 == nil) {
				t.Errorf("%s -> %s validation was non-deterministic", from, to)
			}
		}
	}
}

// TestEveryStatusReachableFromCreating walks the transition graph with a
// breadth-first search and requires every status to be reachable from
// Creating, so no status can become permanently orphaned.
func TestEveryStatusReachableFromCreating(t *testing.T) {
	visited := map[Status]bool{StatusCreating: true}
	queue := []Status{StatusCreating}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for next := range transitions[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	for _, s := range allStatuses {
		if !visited[s] {
			t.Errorf("status %s is unreachable from %s", s, StatusCreating)
		}
	}
}

func TestZellijTabForIsDeterministicAndPrefixed(t *testing.T) {
	names := []string{"feature-x", "Bug123", "a", "z-z-z"}
	for _, name := range names {
		tab := ZellijTabFor(name)
		if tab != "zjj:"+name {
			t.Errorf("ZellijTabFor(%q) = %q, want %q", name, tab, "zjj:"+name)
		}
		if ZellijTabFor(name) != tab {
			t.Errorf("ZellijTabFor(%q) is not deterministic", name)
		}
	}
}

// TestDistinctSessionsGetDistinctWorkspacesAndTabs grounds the "one
// workspace, one tab per session" invariant in the real store: creating
// several sessions with distinct names must leave each with its own
// workspace path and a tab name unique across all of them.
func TestDistinctSessionsGetDistinctWorkspacesAndTabs(t *testing.T) {
	s := openTestStore(t)
	names := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	seenWorkspaces := map[string]bool{}
	seenTabs := map[string]bool{}
	for _, name := range names {
		workspace := "/ws/" + name
		sess, err := s.Create(name, workspace)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if seenWorkspaces[sess.WorkspacePath] {
			t.Fatalf("workspace %s reused across sessions", sess.WorkspacePath)
		}
		seenWorkspaces[sess.WorkspacePath] = true
		tab := ZellijTabFor(sess.Name)
		if seenTabs[tab] {
			t.Fatalf("tab %s reused across sessions", tab)
		}
		seenTabs[tab] = true
	}
	if len(seenWorkspaces) != len(names) || len(seenTabs) != len(names) {
		t.Fatalf("expected %d distinct workspaces and tabs, got %d workspaces, %d tabs", len(names), len(seenWorkspaces), len(seenTabs))
	}
}

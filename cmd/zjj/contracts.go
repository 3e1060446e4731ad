package main

import "github.com/vinayprograms/zjj/internal/event"

// contractFlags is embedded in every top-level command that recognises
// spec §6's --contract/--ai-hints flags, which print a command's structured
// contract instead of executing it.
type contractFlags struct {
	Contract bool `help:"Print this command's structured contract instead of executing." name:"contract"`
	AIHints  bool `help:"Include AI-oriented usage hints in contract output." name:"ai-hints"`
}

// maybePrintContract emits key's contract and reports true if the --contract
// flag was set, so the caller can return immediately without executing.
func (c contractFlags) maybePrintContract(app *AppContext, key string) (bool, error) {
	if !c.Contract {
		return false, nil
	}
	contract, ok := contracts[key]
	if !ok {
		contract = CommandContract{Description: "no contract registered for this command"}
	}
	if c.AIHints {
		contract.AIHints = aiHints(key)
	}
	return true, app.Sink.Emit(event.Summary("contract", key, contract))
}

// CommandContract is the machine-readable shape both --contract and the
// introspect verb print for a command (spec §4.H "Introspection", §6
// --contract/--ai-hints).
type CommandContract struct {
	Description     string   `json:"description"`
	Arguments       []string `json:"arguments,omitempty"`
	Flags           []string `json:"flags,omitempty"`
	Examples        []string `json:"examples,omitempty"`
	Prerequisites   []string `json:"prerequisites,omitempty"`
	SideEffects     []string `json:"side_effects,omitempty"`
	ErrorConditions []string `json:"error_conditions,omitempty"`
	AIHints         []string `json:"ai_hints,omitempty"`
}

var contracts = map[string]CommandContract{
	"init": {
		Description:   "Initialise zjj in the current jj repository.",
		Prerequisites: []string{"a .jj directory must exist at the repository root"},
		SideEffects:   []string{"creates .zjj/ and a default config.toml if one is not already present"},
	},
	"add": {
		Description:     "Create a new session: reserve a name, create a jj workspace, run post_create hooks, open a Zellij tab.",
		Arguments:       []string{"name"},
		Flags:           []string{"--no-hooks", "--no-open", "--at-revision"},
		Examples:        []string{"zjj add feature-x", "zjj add feature-x --no-open --at-revision main"},
		Prerequisites:   []string{"name must be unused, ASCII, 1-64 bytes, matching [A-Za-z0-9._-]"},
		SideEffects:     []string{"creates a jj workspace directory", "may run shell hooks", "may open a Zellij tab"},
		ErrorConditions: []string{"E_CONFLICT if the name already exists", "E_VALIDATION if the name is invalid", "E_HOOK_FAILED if a post_create hook exits non-zero"},
	},
	"remove": {
		Description:     "Remove a session, optionally merging it onto main first.",
		Arguments:       []string{"name"},
		Flags:           []string{"--no-hooks", "--merge"},
		SideEffects:     []string{"forgets the jj workspace", "closes the Zellij tab", "deletes the session row"},
		ErrorConditions: []string{"E_NOT_FOUND if the session does not exist"},
	},
	"list": {
		Description: "List sessions, optionally filtered by status.",
		Flags:       []string{"--status"},
	},
	"focus": {
		Description:     "Switch Zellij focus to a session's tab.",
		Arguments:       []string{"name"},
		ErrorConditions: []string{"E_NOT_FOUND if the session does not exist", "E_SUBPROCESS if Zellij is not running"},
	},
	"status": {
		Description: "Report every session's current status, with bounded concurrency.",
		Flags:       []string{"--status"},
	},
	"sync": {
		Description:     "Rebase a session's workspace onto the main branch.",
		Arguments:       []string{"name"},
		Flags:           []string{"--allow-dirty"},
		ErrorConditions: []string{"E_CONFLICT if the rebase produces conflicts", "E_INVALID_TRANSITION if the session is not Active or Failed"},
	},
	"diff": {
		Description: "Report a diff summary for every session matching a filter.",
		Flags:       []string{"--status"},
	},
	"query": {
		Description: "Query sessions or the merge queue by status.",
		Flags:       []string{"--status", "--queue"},
	},
	"wait": {
		Description:     "Poll a session until it reaches a target status or a timeout elapses.",
		Arguments:       []string{"name"},
		Flags:           []string{"--for", "--timeout", "--poll-ms"},
		Examples:        []string{"zjj wait feature-x --for Synced --timeout 120"},
		ErrorConditions: []string{"E_TIMEOUT if no target status is reached in time", "E_NOT_FOUND if the session does not exist"},
	},
	"config": {
		Description: "Print the merged configuration (defaults, global file, project file, ZJJ_* environment overlay).",
	},
	"doctor": {
		Description: "Run the fixed diagnostic check suite and report health.",
		Flags:       []string{"--fix"},
		SideEffects: []string{"--fix removes orphaned or stuck session rows where a check marked itself auto-fixable"},
	},
	"import": {
		Description:     "Import sessions from a JSON export file.",
		Arguments:       []string{"path"},
		Flags:           []string{"--force"},
		ErrorConditions: []string{"E_CONFLICT if a session already exists and --force is not set"},
	},
	"export": {
		Description: "Export every session to a JSON file.",
		Arguments:   []string{"path"},
	},
	"spawn": {
		Description:     "Exec a hook or agent command inside a session's workspace, with ZJJ_BEAD_ID/ZJJ_WORKSPACE/ZJJ_ACTIVE set in its environment.",
		Arguments:       []string{"name", "command..."},
		Flags:           []string{"--bead-id"},
		ErrorConditions: []string{"E_NOT_FOUND if the session does not exist", "E_SUBPROCESS if the command exits non-zero"},
	},
	"queue-add": {
		Description: "Enqueue a workspace for the merge train.",
		Arguments:   []string{"workspace"},
		Flags:       []string{"--bead-id", "--priority", "--dedupe-key", "--max-attempts", "--test-timeout-secs"},
	},
	"train-step": {
		Description: "Claim and process at most one merge queue entry.",
	},
}

func aiHints(command string) []string {
	switch command {
	case "spawn":
		return []string{"the spawned hook environment always carries ZJJ_BEAD_ID, ZJJ_WORKSPACE, ZJJ_ACTIVE; a missing one is a bug, not an absent optional"}
	case "wait":
		return []string{"use this after a non-blocking add/sync to learn when a session has settled into a terminal status"}
	case "queue-add":
		return []string{"pass --dedupe-key to make repeated enqueue attempts idempotent"}
	default:
		return nil
	}
}

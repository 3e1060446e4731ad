// Package vcsadapter wraps the jj (Jujutsu) CLI as described in spec §4.A.
//
// Every operation spawns one jj subcommand with an explicit working
// directory, captures stdout/stderr, and classifies the exit code. The
// one-function-per-subcommand shape, and the "not found" stderr sniffing,
// are grounded on original_source/crates/zjj-core/src/jj/workspace.rs,
// translated from Rust's std::process::Command to os/exec.Command.
package vcsadapter

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vinayprograms/zjj/internal/zerr"
)

// Status buckets the paths reported by `jj status` per spec §4.A.
type Status struct {
	Modified []string
	Added    []string
	Deleted  []string
	Renamed  []string
	Unknown  []string
}

// Clean reports whether the workspace has no outstanding changes at all.
func (s Status) Clean() bool {
	return len(s.Modified) == 0 && len(s.Added) == 0 && len(s.Deleted) == 0 && len(s.Renamed) == 0
}

// DiffSummary is the result of `jj diff --stat`.
type DiffSummary struct {
	Insertions int
	Deletions  int
	FilesChanged int
}

// WorkspaceInfo is one entry of `jj workspace list`.
type WorkspaceInfo struct {
	Name     string
	Revision string
}

// LogEntry is one revision from `jj log`.
type LogEntry struct {
	ChangeID    string
	Description string
}

// OpLogEntry is one entry from `jj operation log`.
type OpLogEntry struct {
	OpID        string
	Description string
}

// Runner abstracts process execution so tests can substitute a fake with
// scripted stdout/stderr/exit-code sequences (spec §9 "Subprocess adapter").
type Runner interface {
	Run(ctx context.Context, dir string, args []string) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner is the real Runner, spawning the jj binary.
type ExecRunner struct {
	Bin string // defaults to "jj"
}

func (r ExecRunner) Run(ctx context.Context, dir string, args []string) (string, string, int, error) {
	bin := r.Bin
	if bin == "" {
		bin = "jj"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			err = nil
		}
	}
	return stdout.String(), stderr.String(), exitCode, err
}

// Adapter is the VCS Adapter described in spec §4.A.
type Adapter struct {
	Runner Runner
}

// New returns an Adapter that shells out to the real jj binary.
func New() *Adapter {
	return &Adapter{Runner: ExecRunner{}}
}

var notFoundPatterns = []string{
	"no such workspace",
	"does not exist",
	"no such revision",
	"not found",
}

func looksNotFound(stderr string) bool {
	low := strings.ToLower(stderr)
	for _, p := range notFoundPatterns {
		if strings.Contains(low, p) {
			return true
		}
	}
	return false
}

// run executes args in dir and classifies the result per spec §4.A.
func (a *Adapter) run(ctx context.Context, op, dir string, args ...string) (string, error) {
	stdout, stderr, exitCode, spawnErr := a.Runner.Run(ctx, dir, args)
	if spawnErr != nil {
		e := zerr.Wrap(zerr.SubprocessError, op, "jj is not installed or could not be spawned", spawnErr)
		e.WithContext("is_not_found", true)
		e.WithContext("source", "install jj: https://jj-vcs.github.io/jj/latest/install-and-setup/")
		return "", e
	}
	if exitCode != 0 {
		e := zerr.New(zerr.SubprocessError, op, stderr)
		e.WithContext("operation", op)
		e.WithContext("stderr", stderr)
		e.WithContext("exit_code", exitCode)
		e.WithContext("is_not_found", looksNotFound(stderr))
		return "", e
	}
	return stdout, nil
}

// WorkspaceCreate runs `jj workspace add --name <name> <path>`.
func (a *Adapter) WorkspaceCreate(ctx context.Context, repoRoot, name, path string) error {
	if name == "" {
		return zerr.New(zerr.Validation, "workspace_create", "workspace name cannot be empty")
	}
	_, err := a.run(ctx, "create workspace", repoRoot, "workspace", "add", "--name", name, path)
	return err
}

// WorkspaceCreateAtRevision runs `jj workspace add --name <name> -r <rev> <path>`.
func (a *Adapter) WorkspaceCreateAtRevision(ctx context.Context, repoRoot, name, path, revision string) error {
	if name == "" {
		return zerr.New(zerr.Validation, "workspace_create_at_revision", "workspace name cannot be empty")
	}
	if revision == "" {
		return zerr.New(zerr.Validation, "workspace_create_at_revision", "revision cannot be empty")
	}
	_, err := a.run(ctx, "create workspace at revision "+revision, repoRoot, "workspace", "add", "--name", name, "-r", revision, path)
	return err
}

// WorkspaceForget runs `jj workspace forget <name>`.
func (a *Adapter) WorkspaceForget(ctx context.Context, repoRoot, name string) error {
	if name == "" {
		return zerr.New(zerr.Validation, "workspace_forget", "workspace name cannot be empty")
	}
	_, err := a.run(ctx, "forget workspace", repoRoot, "workspace", "forget", name)
	return err
}

// WorkspaceList runs `jj workspace list`.
func (a *Adapter) WorkspaceList(ctx context.Context, repoRoot string) ([]WorkspaceInfo, error) {
	out, err := a.run(ctx, "list workspaces", repoRoot, "workspace", "list")
	if err != nil {
		return nil, err
	}
	return parseWorkspaceList(out), nil
}

// WorkspaceStatus runs `jj status` in the workspace directory.
func (a *Adapter) WorkspaceStatus(ctx context.Context, path string) (Status, error) {
	out, err := a.run(ctx, "get workspace status", path, "status")
	if err != nil {
		return Status{}, err
	}
	return parseStatus(out), nil
}

// WorkspaceDiff runs `jj diff --stat` in the workspace directory.
func (a *Adapter) WorkspaceDiff(ctx context.Context, path string) (DiffSummary, error) {
	out, err := a.run(ctx, "get workspace diff", path, "diff", "--stat")
	if err != nil {
		return DiffSummary{}, err
	}
	return parseDiffStat(out), nil
}

// WorkspaceSquash runs `jj squash` in the workspace directory.
func (a *Adapter) WorkspaceSquash(ctx context.Context, path string) error {
	_, err := a.run(ctx, "squash commits", path, "squash")
	return err
}

// WorkspaceRebaseOnto runs `jj rebase -d <target>` in the workspace directory.
func (a *Adapter) WorkspaceRebaseOnto(ctx context.Context, path, target string) error {
	if target == "" {
		return zerr.New(zerr.Validation, "workspace_rebase_onto", "rebase target cannot be empty")
	}
	_, err := a.run(ctx, "rebase onto "+target, path, "rebase", "-d", target)
	return err
}

// WorkspaceGitPush runs `jj git push` in the workspace directory.
func (a *Adapter) WorkspaceGitPush(ctx context.Context, path string) error {
	_, err := a.run(ctx, "git push", path, "git", "push")
	return err
}

// WorkspaceGitFetch runs `jj git fetch` in the workspace directory.
func (a *Adapter) WorkspaceGitFetch(ctx context.Context, path string) error {
	_, err := a.run(ctx, "git fetch", path, "git", "fetch")
	return err
}

// WorkspaceGitPushBookmark runs `jj git push --bookmark <name>`.
func (a *Adapter) WorkspaceGitPushBookmark(ctx context.Context, path, name string) error {
	if name == "" {
		return zerr.New(zerr.Validation, "workspace_git_push_bookmark", "bookmark name cannot be empty")
	}
	_, err := a.run(ctx, "git push bookmark "+name, path, "git", "push", "--bookmark", name)
	return err
}

// WorkspaceBookmarkCreate runs `jj bookmark create <name>`.
func (a *Adapter) WorkspaceBookmarkCreate(ctx context.Context, path, name string) error {
	if name == "" {
		return zerr.New(zerr.Validation, "workspace_bookmark_create", "bookmark name cannot be empty")
	}
	_, err := a.run(ctx, "create bookmark "+name, path, "bookmark", "create", name)
	return err
}

// WorkspaceBookmarkSet runs `jj bookmark set <name>`.
func (a *Adapter) WorkspaceBookmarkSet(ctx context.Context, path, name string) error {
	if name == "" {
		return zerr.New(zerr.Validation, "workspace_bookmark_set", "bookmark name cannot be empty")
	}
	_, err := a.run(ctx, "set bookmark "+name, path, "bookmark", "set", name)
	return err
}

// WorkspaceDescribe runs `jj describe -m <message>`.
func (a *Adapter) WorkspaceDescribe(ctx context.Context, path, message string) error {
	if message == "" {
		return zerr.New(zerr.Validation, "workspace_describe", "description message cannot be empty")
	}
	_, err := a.run(ctx, "describe revision", path, "describe", "-m", message)
	return err
}

// WorkspaceNew runs `jj new`, optionally at a given parent revision.
func (a *Adapter) WorkspaceNew(ctx context.Context, path, parent string) error {
	args := []string{"new"}
	if parent != "" {
		args = append(args, parent)
	}
	_, err := a.run(ctx, "new revision", path, args...)
	return err
}

// WorkspaceLog runs `jj log`, optionally restricted to revset.
func (a *Adapter) WorkspaceLog(ctx context.Context, path, revset string, all bool) ([]LogEntry, error) {
	args := []string{"log", "-T", "change_id ++ \"\\t\" ++ description"}
	if all {
		args = append(args, "-r", "all()")
	}
	if revset != "" {
		args = append(args, "-r", revset)
	}
	out, err := a.run(ctx, "log", path, args...)
	if err != nil {
		return nil, err
	}
	return parseLog(out), nil
}

// WorkspaceRestore runs `jj restore` (optionally from a revision, optionally
// limited to a file set).
func (a *Adapter) WorkspaceRestore(ctx context.Context, path, fromRev string, files []string) error {
	args := []string{"restore"}
	if fromRev != "" {
		args = append(args, "--from", fromRev)
	}
	args = append(args, files...)
	_, err := a.run(ctx, "restore", path, args...)
	return err
}

// WorkspaceUndo runs `jj undo`.
func (a *Adapter) WorkspaceUndo(ctx context.Context, path string) error {
	_, err := a.run(ctx, "undo", path, "undo")
	return err
}

// WorkspaceOpLog runs `jj operation log`.
func (a *Adapter) WorkspaceOpLog(ctx context.Context, path string) ([]OpLogEntry, error) {
	out, err := a.run(ctx, "op log", path, "operation", "log", "-T", "id.short() ++ \"\\t\" ++ description")
	if err != nil {
		return nil, err
	}
	return parseOpLog(out), nil
}

// WorkspaceOpRestore runs `jj operation restore <op_id>`.
func (a *Adapter) WorkspaceOpRestore(ctx context.Context, path, opID string) error {
	if opID == "" {
		return zerr.New(zerr.Validation, "workspace_op_restore", "operation id cannot be empty")
	}
	_, err := a.run(ctx, "op restore "+opID, path, "operation", "restore", opID)
	return err
}

// MainBranchHead discovers the configured main branch name, falling back to
// "main" if no such bookmark exists (spec §4.D "Remove flow").
func (a *Adapter) MainBranchHead(ctx context.Context, path string) string {
	out, err := a.run(ctx, "discover main branch", path, "log", "-r", "heads(main|master|trunk)", "-T", "self.bookmarks()")
	if err != nil {
		return "main"
	}
	for _, candidate := range []string{"main", "master", "trunk"} {
		if strings.Contains(out, candidate) {
			return candidate
		}
	}
	return "main"
}

// ---- parsers: whitespace-tolerant, total (never panic), unrecognised
// lines become "unknown" rather than an error (spec §4.A). ----

func parseStatus(out string) Status {
	var s Status
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		tag := strings.ToUpper(fields[0])
		path := strings.Join(fields[1:], " ")
		switch tag {
		case "M":
			s.Modified = append(s.Modified, path)
		case "A":
			s.Added = append(s.Added, path)
		case "D":
			s.Deleted = append(s.Deleted, path)
		case "R":
			s.Renamed = append(s.Renamed, path)
		default:
			if strings.HasPrefix(line, "Working copy") || strings.HasPrefix(line, "Parent commit") {
				continue
			}
			s.Unknown = append(s.Unknown, path)
		}
	}
	return s
}

func parseDiffStat(out string) DiffSummary {
	var d DiffSummary
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if idx := strings.LastIndex(line, "|"); idx != -1 {
			rest := line[idx+1:]
			ins := strings.Count(rest, "+")
			del := strings.Count(rest, "-")
			if ins+del > 0 {
				d.Insertions += ins
				d.Deletions += del
				d.FilesChanged++
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 4 && fields[len(fields)-2] == "insertion(+)," {
			continue
		}
	}
	return d
}

func parseWorkspaceList(out string) []WorkspaceInfo {
	var list []WorkspaceInfo
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		name := strings.TrimSpace(parts[0])
		rev := ""
		if len(parts) == 2 {
			rev = strings.TrimSpace(parts[1])
		}
		list = append(list, WorkspaceInfo{Name: name, Revision: rev})
	}
	return list
}

func parseLog(out string) []LogEntry {
	var entries []LogEntry
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		e := LogEntry{ChangeID: strings.TrimSpace(parts[0])}
		if len(parts) == 2 {
			e.Description = strings.TrimSpace(parts[1])
		}
		entries = append(entries, e)
	}
	return entries
}

func parseOpLog(out string) []OpLogEntry {
	var entries []OpLogEntry
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		e := OpLogEntry{OpID: strings.TrimSpace(parts[0])}
		if len(parts) == 2 {
			e.Description = strings.TrimSpace(parts[1])
		}
		entries = append(entries, e)
	}
	return entries
}

// JoinPath is a small helper so callers needn't import path/filepath solely
// to build a workspace path from a name.
func JoinPath(dir, name string) string {
	return filepath.Join(dir, name)
}

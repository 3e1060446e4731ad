// Package integrity implements Integrity & Recovery (spec §4.G): a
// Validator, a Repair Executor, a Backup Manager, and a Recovery Logger.
// The Conflict Resolution Log itself lives in internal/store (it is one of
// the Session Store's owned tables); this package is the component that
// drives validation and repair around it.
package integrity

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/zjj/internal/vcsadapter"
	"github.com/vinayprograms/zjj/internal/zerr"
)

// RepairStrategy enumerates the remediation options spec §4.G names.
type RepairStrategy string

const (
	StrategyNoRepairPossible  RepairStrategy = "NoRepairPossible"
	StrategyReinitialize      RepairStrategy = "Reinitialize"
	StrategyRestoreFromBackup RepairStrategy = "RestoreFromBackup"
	StrategyForceUnlock       RepairStrategy = "ForceUnlock"
)

// IntegrityIssue is one finding from a validation pass.
type IntegrityIssue struct {
	CorruptionType      string         `json:"corruption_type"`
	Description         string         `json:"description"`
	Context             map[string]any `json:"context,omitempty"`
	Severity            string         `json:"severity"`
	RecommendedStrategy RepairStrategy `json:"recommended_strategy"`
	AutoRepairable      bool           `json:"auto_repairable"`
}

// ValidationResult is the Validator's report for one workspace.
type ValidationResult struct {
	IsValid     bool              `json:"is_valid"`
	Issues      []IntegrityIssue  `json:"issues"`
	ValidatedAt time.Time         `json:"validated_at"`
	DurationMs  int64             `json:"duration_ms"`
}

// RepairResult is the Repair Executor's report.
type RepairResult struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
}

// Validator runs integrity checks against a workspace (spec §4.G).
type Validator struct {
	VCS *vcsadapter.Adapter
}

// NewValidator wires a Validator over a VCS Adapter.
func NewValidator(vcs *vcsadapter.Adapter) *Validator {
	return &Validator{VCS: vcs}
}

// Validate runs the check suite against workspacePath.
func (v *Validator) Validate(ctx context.Context, workspacePath string) ValidationResult {
	start := time.Now()
	var issues []IntegrityIssue

	if _, err := os.Stat(workspacePath); err != nil {
		issues = append(issues, IntegrityIssue{
			CorruptionType:      "missing_workspace_directory",
			Description:         "workspace directory does not exist on disk: " + workspacePath,
			Severity:            "error",
			RecommendedStrategy: StrategyRestoreFromBackup,
			AutoRepairable:       true,
		})
	} else if _, err := os.Stat(filepath.Join(workspacePath, ".jj")); err != nil {
		issues = append(issues, IntegrityIssue{
			CorruptionType:      "missing_jj_metadata",
			Description:         "workspace has no .jj metadata directory",
			Severity:            "error",
			RecommendedStrategy: StrategyReinitialize,
			AutoRepairable:       false,
		})
	} else if _, err := v.VCS.WorkspaceStatus(ctx, workspacePath); err != nil {
		ze, _ := err.(*zerr.Error)
		issues = append(issues, IntegrityIssue{
			CorruptionType:      "vcs_status_unreadable",
			Description:         "jj status failed against this workspace",
			Context:             errContext(ze),
			Severity:            "error",
			RecommendedStrategy: StrategyForceUnlock,
			AutoRepairable:       true,
		})
	}

	return ValidationResult{
		IsValid:     len(issues) == 0,
		Issues:      issues,
		ValidatedAt: start,
		DurationMs:  time.Since(start).Milliseconds(),
	}
}

func errContext(ze *zerr.Error) map[string]any {
	if ze == nil {
		return nil
	}
	return ze.Context
}

// RepairExecutor carries out a chosen strategy and verifies post-state by
// re-validating (spec §4.G "Repair Executor").
type RepairExecutor struct {
	Validator *Validator
	Backups   *BackupManager
	VCS       *vcsadapter.Adapter
}

// NewRepairExecutor wires a RepairExecutor.
func NewRepairExecutor(validator *Validator, backups *BackupManager, vcs *vcsadapter.Adapter) *RepairExecutor {
	return &RepairExecutor{Validator: validator, Backups: backups, VCS: vcs}
}

// Repair backs the workspace up (reason "pre-repair"), executes strategy,
// then re-validates. On any failure the backup acts as the rollback point
// and the workspace is left untouched.
func (r *RepairExecutor) Repair(ctx context.Context, workspace, workspacePath string, strategy RepairStrategy) (RepairResult, error) {
	pre, err := r.Backups.Create(workspace, workspacePath, "pre-repair")
	if err != nil {
		return RepairResult{}, err
	}

	switch strategy {
	case StrategyForceUnlock:
		opLog, err := r.VCS.WorkspaceOpLog(ctx, workspacePath)
		if err != nil {
			return RepairResult{Success: false, Summary: "failed to read op log: " + err.Error()}, nil
		}
		if len(opLog) > 0 {
			if err := r.VCS.WorkspaceOpRestore(ctx, workspacePath, opLog[0].OpID); err != nil {
				return RepairResult{Success: false, Summary: "op-restore failed: " + err.Error()}, nil
			}
		}
	case StrategyReinitialize:
		// handled by the caller (lifecycle/doctor), which has the name and
		// revision needed to re-run workspace_create; nothing more to do
		// here beyond having taken the backup.
	case StrategyRestoreFromBackup:
		backups, err := r.Backups.List(workspace)
		if err != nil || len(backups) == 0 {
			return RepairResult{Success: false, Summary: "no backup available to restore from"}, nil
		}
		if err := r.Backups.Restore(backups[0].ID, workspace, workspacePath); err != nil {
			return RepairResult{Success: false, Summary: "restore failed: " + err.Error()}, nil
		}
	case StrategyNoRepairPossible:
		return RepairResult{Success: false, Summary: "no repair strategy available for this corruption"}, nil
	}

	result := r.Validator.Validate(ctx, workspacePath)
	if !result.IsValid {
		if err := r.Backups.Restore(pre.ID, workspace, workspacePath); err != nil {
			return RepairResult{Success: false, Summary: "workspace still fails validation after repair; rollback to pre-repair backup failed: " + err.Error()}, nil
		}
		return RepairResult{Success: false, Summary: "workspace still fails validation after repair; pre-repair backup restored"}, nil
	}
	return RepairResult{Success: true, Summary: "repair succeeded via " + string(strategy)}, nil
}

// BackupMetadata describes one snapshot (spec §4.G "Backup Manager").
type BackupMetadata struct {
	ID        string    `json:"id"`
	Workspace string    `json:"workspace"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

// BackupManager snapshots/restores workspace directories under
// <backups_root>/<workspace>/<backup_id>/ (spec §6 persisted state layout).
type BackupManager struct {
	Root string
	mu   sync.Mutex
}

// NewBackupManager roots backups at root (typically <repo_root>/.zjj/backups).
func NewBackupManager(root string) *BackupManager {
	return &BackupManager{Root: root}
}

// Create snapshots workspacePath (including its .jj metadata) into a new
// backup directory, computes a checksum over the archive, and records
// metadata.json beside it.
func (b *BackupManager) Create(workspace, workspacePath, reason string) (*BackupMetadata, error) {
	op := "integrity.backup_create"
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	dir := filepath.Join(b.Root, workspace, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to create backup directory", err)
	}

	archivePath := filepath.Join(dir, "snapshot.zip")
	checksum, err := archiveDirectory(workspacePath, archivePath)
	if err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to snapshot workspace", err)
	}

	meta := &BackupMetadata{ID: id, Workspace: workspace, Reason: reason, CreatedAt: time.Now().UTC(), Checksum: checksum}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to marshal backup metadata", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metaBytes, 0644); err != nil {
		return nil, zerr.Wrap(zerr.IO, op, "failed to write backup metadata", err)
	}
	return meta, nil
}

// List returns all backups for workspace, newest first.
func (b *BackupManager) List(workspace string) ([]*BackupMetadata, error) {
	op := "integrity.backup_list"
	dir := filepath.Join(b.Root, workspace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, zerr.Wrap(zerr.IO, op, "failed to list backups", err)
	}
	var out []*BackupMetadata
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta BackupMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		out = append(out, &meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Restore atomically restores backup id over workspacePath: it unpacks into
// a temp directory first, then swaps it into place.
func (b *BackupManager) Restore(id, workspace, workspacePath string) error {
	op := "integrity.backup_restore"
	archivePath := filepath.Join(b.Root, workspace, id, "snapshot.zip")
	if _, err := os.Stat(archivePath); err != nil {
		return zerr.New(zerr.NotFound, op, "backup not found").WithContext("id", id)
	}

	tempDir := workspacePath + ".restore-tmp"
	if err := os.RemoveAll(tempDir); err != nil {
		return zerr.Wrap(zerr.IO, op, "failed to clear temp restore directory", err)
	}
	if err := unarchive(archivePath, tempDir); err != nil {
		return zerr.Wrap(zerr.IO, op, "failed to unpack backup", err)
	}

	oldDir := workspacePath + ".pre-restore"
	_ = os.RemoveAll(oldDir)
	if _, err := os.Stat(workspacePath); err == nil {
		if err := os.Rename(workspacePath, oldDir); err != nil {
			return zerr.Wrap(zerr.IO, op, "failed to move aside existing workspace", err)
		}
	}
	if err := os.Rename(tempDir, workspacePath); err != nil {
		_ = os.Rename(oldDir, workspacePath)
		return zerr.Wrap(zerr.IO, op, "failed to swap in restored workspace", err)
	}
	_ = os.RemoveAll(oldDir)
	return nil
}

func archiveDirectory(srcDir, destZip string) (string, error) {
	f, err := os.Create(destZip)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	w := zip.NewWriter(io.MultiWriter(f, h))

	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() {
			_, err := w.Create(rel + "/")
			return err
		}
		zw, err := w.Create(rel)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(zw, src)
		return err
	})
	if err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func unarchive(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		path := filepath.Join(destDir, f.Name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		dst, err := os.Create(path)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(dst, rc)
		rc.Close()
		dst.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// RecoveryLogger is the append-only `.zjj/recovery.log` writer (spec §4.G).
// One "[ISO-8601] message" line per call; writes are suppressed when
// logRecovered is false.
type RecoveryLogger struct {
	path         string
	logRecovered bool
	mu           sync.Mutex
}

// NewRecoveryLogger returns a logger for the recovery log at path; the file
// is opened, and created if missing, on each Log call.
func NewRecoveryLogger(path string, logRecovered bool) *RecoveryLogger {
	return &RecoveryLogger{path: path, logRecovered: logRecovered}
}

// Log appends one line if logging is enabled. Concurrent-safe via
// append-only open semantics plus an in-process mutex (multiple
// zjj-within-one-process writers interleave whole lines, never partial
// ones).
func (r *RecoveryLogger) Log(message string) error {
	if !r.logRecovered {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerr.Wrap(zerr.IO, "integrity.recovery_log", "failed to open recovery log", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), message)
	if _, err := f.WriteString(line); err != nil {
		return zerr.Wrap(zerr.IO, "integrity.recovery_log", "failed to append recovery log", err)
	}
	return nil
}

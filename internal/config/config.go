// Package config loads zjj's configuration, merging built-in defaults with
// a global file, a project file, and ZJJ_* environment variables, in that
// precedence (spec §6). The TOML-plus-env-overlay shape is grounded on the
// teacher's internal/config/config.go (BurntSushi/toml, New()/Default()/
// LoadFile() naming); the project .zjj/.env overlay uses joho/godotenv the
// same way the teacher's cmd/agent/main.go loads a root .env file.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the merged configuration for a zjj-controlled repository.
type Config struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Hooks     HooksConfig     `toml:"hooks"`
	MergeTrain MergeTrainConfig `toml:"merge_train"`
	Lock      LockConfig      `toml:"lock"`
	Watcher   WatcherConfig   `toml:"watcher"`
	Recovery  RecoveryConfig  `toml:"recovery"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// WorkspaceConfig controls where JJ workspaces and zjj's metadata live.
type WorkspaceConfig struct {
	Dir        string `toml:"dir"`         // parent directory for new workspaces
	MainBranch string `toml:"main_branch"` // fallback "main"
}

// HooksConfig lists the shell commands run at each lifecycle point
// (spec §4.D "Hook contract").
type HooksConfig struct {
	PostCreate []string `toml:"post_create"`
	PreRemove  []string `toml:"pre_remove"`
	PostMerge  []string `toml:"post_merge"`
}

// MergeTrainConfig controls the default retry/timeout policy for the merge
// queue (spec §9 Open Question: retry classification should be explicit
// configuration, not implicit in exit codes).
type MergeTrainConfig struct {
	MaxAttempts          int   `toml:"max_attempts"`
	TestTimeoutSecs      int   `toml:"test_timeout_secs"`
	RetryableExitCodes   []int `toml:"retryable_exit_codes"`
	TerminalExitCodes    []int `toml:"terminal_exit_codes"`
}

// LockConfig controls the Operation Serializer's retry/backoff budget
// (spec §4.C).
type LockConfig struct {
	BaseBackoffMs int `toml:"base_backoff_ms"`
	MaxRetries    int `toml:"max_retries"`
	CapMs         int `toml:"cap_ms"`
}

// WatcherConfig controls the debounced filesystem watcher (spec §4.J).
type WatcherConfig struct {
	Enabled     bool `toml:"enabled"`
	DebounceMs  int  `toml:"debounce_ms"`
}

// RecoveryConfig controls the recovery logger (spec §4.G).
type RecoveryConfig struct {
	LogRecovered bool `toml:"log_recovered"`
}

// TelemetryConfig controls ambient tracing of lifecycle and merge train
// operations. "noop" disables span export entirely without touching call
// sites, the same protocol switch the teacher's own TelemetryConfig uses.
type TelemetryConfig struct {
	Enabled  bool   `toml:"enabled"`
	Protocol string `toml:"protocol"` // otlp, noop
	Endpoint string `toml:"endpoint"`
}

// Default returns the built-in defaults, the lowest-precedence layer.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Dir:        "workspaces",
			MainBranch: "main",
		},
		MergeTrain: MergeTrainConfig{
			MaxAttempts:        3,
			TestTimeoutSecs:    600,
			RetryableExitCodes: []int{124},
			TerminalExitCodes:  []int{1},
		},
		Lock: LockConfig{
			BaseBackoffMs: 50,
			MaxRetries:    5,
			CapMs:         5000,
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: 250,
		},
		Recovery: RecoveryConfig{
			LogRecovered: true,
		},
		Telemetry: TelemetryConfig{
			Protocol: "noop",
		},
	}
}

// Load merges defaults, the global config, the project config, and ZJJ_*
// environment variables, in that order (spec §6).
func Load(repoRoot string) (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		xdg := os.Getenv("XDG_CONFIG_HOME")
		if xdg == "" {
			xdg = filepath.Join(home, ".config")
		}
		mergeFile(cfg, filepath.Join(xdg, "zjj", "config.toml"))
	}

	projectEnv := filepath.Join(repoRoot, ".zjj", ".env")
	if _, err := os.Stat(projectEnv); err == nil {
		_ = godotenv.Load(projectEnv)
	}

	mergeFile(cfg, filepath.Join(repoRoot, ".zjj", "config.toml"))

	applyEnvOverlay(cfg)

	return cfg, nil
}

// mergeFile decodes path into cfg in place, leaving cfg unchanged if the
// file does not exist or fails to parse cleanly.
func mergeFile(cfg *Config, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	_, _ = toml.DecodeFile(path, cfg)
}

// applyEnvOverlay applies ZJJ_* environment variables, the highest
// precedence layer.
func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("ZJJ_WORKSPACE_DIR"); v != "" {
		cfg.Workspace.Dir = v
	}
	if v := os.Getenv("ZJJ_MAIN_BRANCH"); v != "" {
		cfg.Workspace.MainBranch = v
	}
	if v := os.Getenv("ZJJ_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MergeTrain.MaxAttempts = n
		}
	}
	if v := os.Getenv("ZJJ_TEST_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MergeTrain.TestTimeoutSecs = n
		}
	}
	if v := os.Getenv("ZJJ_WATCHER_ENABLED"); v != "" {
		cfg.Watcher.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ZJJ_WATCHER_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Watcher.DebounceMs = n
		}
	}
	if v := os.Getenv("ZJJ_LOG_RECOVERED"); v != "" {
		cfg.Recovery.LogRecovered = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ZJJ_TELEMETRY_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ZJJ_TELEMETRY_ENDPOINT"); v != "" {
		cfg.Telemetry.Endpoint = v
	}
}

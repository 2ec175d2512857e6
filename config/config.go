// Package config holds histedit's process-wide configuration: where the
// repository and its metadata live, how commits are attributed, and how
// the tool talks to an editor and to its own logs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	coretypes "github.com/projecteru2/core/types"
)

// Config holds global histedit configuration.
type Config struct {
	// RepoPath is the working copy root, passed to vcs.Repo implementations.
	RepoPath string `json:"repo_path" mapstructure:"repo_path"`
	// MetadataDir, when set, is created by EnsureDirs. The state file and
	// the lock files are placed by the Repo's own SJoin, which does not read
	// this field.
	MetadataDir string `json:"metadata_dir"`

	// Editor is the command run to edit plans and commit messages when
	// RulesText/message text isn't supplied non-interactively.
	Editor string `json:"editor"`
	// User is the author identity attached to commits histedit creates.
	// Empty means derive it from the OS user at EnsureDirs time.
	User string `json:"user"`

	// Keep mirrors the --keep flag's default; the CLI flag always wins.
	Keep bool `json:"keep"`
	// Obsolescence enables marker-based history rewriting instead of strip
	// (spec §4.7, §9).
	Obsolescence bool `json:"obsolescence"`

	// Log configures structured logging, using eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}
	return &Config{
		RepoPath: ".",
		Editor:   editor,
		Log: coretypes.ServerLogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// EnsureDirs resolves RepoPath to an absolute path, fills in User from the
// OS identity when unset, and creates MetadataDir if one was configured
// explicitly. Repo implementations that derive their own metadata
// directory (via SJoin) are expected to create it themselves.
func EnsureDirs(cfg *Config) (*Config, error) {
	abs, err := filepath.Abs(cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("resolve repo path: %w", err)
	}
	cfg.RepoPath = abs

	if cfg.User == "" {
		if u, err := user.Current(); err == nil {
			cfg.User = u.Username
		} else {
			cfg.User = "unknown"
		}
	}

	if cfg.MetadataDir != "" {
		if err := os.MkdirAll(cfg.MetadataDir, 0o750); err != nil {
			return nil, fmt.Errorf("create metadata dir: %w", err)
		}
	}

	return cfg, nil
}

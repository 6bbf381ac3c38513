package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pcovell/genflow/internal/manager"
)

// DefaultFileName is the config file looked up in the workspace root.
const DefaultFileName = "genflow.json"

// Config represents the genflow.json configuration file
type Config struct {
	Version       string `json:"version"`
	WorkspaceRoot string `json:"workspace_root"`
	Server        Server `json:"server"`
	Paths         Paths  `json:"paths"`
	Timing        Timing `json:"timing"`
}

// Server points at the worker service that runs generation executions
type Server struct {
	URL string `json:"url"`
}

// Paths locates the on-disk state files, relative to the workspace root
// unless absolute
type Paths struct {
	SessionStore string `json:"session_store"`
	EventLog     string `json:"event_log"`
	SkillCatalog string `json:"skill_catalog,omitempty"`
}

// Timing tunes the queue engine's delays. Zero values fall back to the
// engine defaults.
type Timing struct {
	FinalizeDelayMs int `json:"finalize_delay_ms,omitempty"`
	RemovalGraceMs  int `json:"removal_grace_ms,omitempty"`
	PollIntervalS   int `json:"poll_interval_s,omitempty"`
	RecoveryWindowS int `json:"recovery_window_s,omitempty"`
	LogCoalesceMs   int `json:"log_coalesce_ms,omitempty"`
}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version:       "1.0",
		WorkspaceRoot: ".",
		Server: Server{
			URL: "http://127.0.0.1:7777",
		},
		Paths: Paths{
			SessionStore: ".genflow/sessions.json",
			EventLog:     ".genflow/events.ndjson",
			SkillCatalog: ".genflow/skills.json",
		},
	}
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if c.Server.URL == "" {
		return fmt.Errorf("configuration error: missing required field 'server.url'\n\nHint: Point genflow at the worker service:\n  \"server\": {\n    \"url\": \"http://127.0.0.1:7777\"\n  }")
	}

	if c.Paths.SessionStore == "" {
		return fmt.Errorf("configuration error: missing required field 'paths.session_store'\n\nHint: Choose where queue state is persisted:\n  \"paths\": {\n    \"session_store\": \".genflow/sessions.json\"\n  }")
	}

	if c.Timing.FinalizeDelayMs < 0 || c.Timing.RemovalGraceMs < 0 ||
		c.Timing.PollIntervalS < 0 || c.Timing.RecoveryWindowS < 0 ||
		c.Timing.LogCoalesceMs < 0 {
		return fmt.Errorf("configuration error: 'timing' fields must not be negative")
	}

	return nil
}

// ManagerConfig translates the timing section into engine settings,
// applying the engine defaults for unset fields.
func (c *Config) ManagerConfig() manager.Config {
	cfg := manager.DefaultConfig()
	if c.Timing.FinalizeDelayMs > 0 {
		cfg.FinalizeDelay = time.Duration(c.Timing.FinalizeDelayMs) * time.Millisecond
	}
	if c.Timing.RemovalGraceMs > 0 {
		cfg.RemovalGrace = time.Duration(c.Timing.RemovalGraceMs) * time.Millisecond
	}
	if c.Timing.PollIntervalS > 0 {
		cfg.PollInterval = time.Duration(c.Timing.PollIntervalS) * time.Second
	}
	if c.Timing.RecoveryWindowS > 0 {
		cfg.RecoveryWindow = time.Duration(c.Timing.RecoveryWindowS) * time.Second
	}
	return cfg
}

// LogCoalesceInterval returns the transcript flush interval.
func (c *Config) LogCoalesceInterval() time.Duration {
	if c.Timing.LogCoalesceMs > 0 {
		return time.Duration(c.Timing.LogCoalesceMs) * time.Millisecond
	}
	return 50 * time.Millisecond
}

// ResolvePath makes a configured path absolute against the workspace root.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.WorkspaceRoot, p)
}

// LoadFromFile loads a configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration to a JSON file with 0600 permissions
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

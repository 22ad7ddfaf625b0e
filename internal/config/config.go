// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for repochat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.repochat/config.toml
//   - ~/.repochat/config.json
//   - Built-in defaults
//
// The backend origin and the bearer credential are read here once and
// injected into components at construction; nothing else in the client reads
// the environment.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/repochat-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete repochat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend configuration
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Ingestion polling configuration
	Ingest IngestConfig `toml:"ingest" json:"ingest"`

	// Chat configuration
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Local repository cache configuration
	Cache CacheConfig `toml:"cache" json:"cache"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// BackendConfig describes the chat service this client talks to.
type BackendConfig struct {
	// URL is the backend origin, e.g. "https://api.repochat.dev"
	URL string `toml:"url" json:"url"`
	// Token is the bearer credential supplied by the identity provider.
	// Usually set via REPOCHAT_TOKEN rather than persisted on disk.
	Token string `toml:"token" json:"token"`
	// UserID identifies the user to the backend.
	UserID string `toml:"user_id" json:"user_id"`
	// TimeoutSecs is the per-request timeout for non-streaming calls.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries is the retry budget for transient request failures.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// IngestConfig controls the ingestion status poller.
type IngestConfig struct {
	// PollIntervalMs is the delay between sequential status polls.
	// Earlier revisions of the product used 7000 and 2000; the interval is a
	// knob, not a protocol constant.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms"`
	// MaxPolls forces the failed state after this many polls (0 = unlimited).
	MaxPolls int `toml:"max_polls" json:"max_polls"`
}

// ChatConfig contains chat defaults.
type ChatConfig struct {
	// DefaultModel is the assistant model used when no per-conversation
	// preference is stored.
	DefaultModel string `toml:"default_model" json:"default_model"`
	// WordWrap is the rendering width for assistant markdown.
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
}

// CacheConfig contains local repository cache configuration.
type CacheConfig struct {
	// Path is the SQLite database file (empty = ~/.repochat/repocache.db).
	Path string `toml:"path" json:"path"`
}

// UIConfig contains presentation preferences.
type UIConfig struct {
	// ShowSidePanels toggles the file tree / code panels by default.
	ShowSidePanels bool `toml:"show_side_panels" json:"show_side_panels"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Backend: BackendConfig{
			URL:         "http://localhost:8000",
			TimeoutSecs: 30,
			MaxRetries:  3,
		},
		Ingest: IngestConfig{
			PollIntervalMs: 1000,
			MaxPolls:       0,
		},
		Chat: ChatConfig{
			DefaultModel: "claude-3-5-sonnet-20241022",
			WordWrap:     80,
		},
		Cache: CacheConfig{},
		UI: UIConfig{
			ShowSidePanels: true,
		},
	}
}

// Timeout returns the request timeout as a duration.
func (c *BackendConfig) Timeout() time.Duration {
	if c.TimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PollInterval returns the poll interval as a duration.
func (c *IngestConfig) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// ConfigDir returns the repochat configuration directory (~/.repochat).
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".repochat"), nil
}

// EnsureConfigDir creates the configuration directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// Load reads configuration from disk, applies environment overrides, and
// validates the result. A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFromDir(dir)
}

// LoadFromDir is Load with an explicit directory, for tests.
func LoadFromDir(dir string) (*Config, error) {
	cfg := DefaultConfig()

	tomlPath := filepath.Join(dir, "config.toml")
	jsonPath := filepath.Join(dir, "config.json")

	switch {
	case fileExists(tomlPath):
		if _, err := toml.DecodeFile(tomlPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", tomlPath, err)
		}
	case fileExists(jsonPath):
		data, err := os.ReadFile(jsonPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", jsonPath, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to ~/.repochat/config.toml atomically.
// The bearer token is never persisted.
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	persisted := *c
	persisted.Backend.Token = ""

	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(&persisted); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return util.AtomicWriteFile(filepath.Join(dir, "config.toml"), []byte(sb.String()), 0600)
}

// LogPath returns the client log file path.
func LogPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "repochat.log"), nil
}

// CachePath resolves the repository cache database path.
func (c *Config) CachePath() (string, error) {
	if c.Cache.Path != "" {
		return c.Cache.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "repocache.db"), nil
}

// =============================================================================
// ENV OVERRIDES
// =============================================================================

// applyEnvOverrides applies REPOCHAT_* environment variables on top of the
// file configuration. The token in particular is expected to arrive this way.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REPOCHAT_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("REPOCHAT_TOKEN"); v != "" {
		c.Backend.Token = v
	}
	if v := os.Getenv("REPOCHAT_USER_ID"); v != "" {
		c.Backend.UserID = v
	}
	if v := os.Getenv("REPOCHAT_MODEL"); v != "" {
		c.Chat.DefaultModel = v
	}
	if v := os.Getenv("REPOCHAT_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("REPOCHAT_POLL_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Ingest.PollIntervalMs = ms
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for values the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url %q", c.Backend.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend url must be http or https, got %q", u.Scheme)
	}

	if c.Backend.TimeoutSecs < 0 {
		return fmt.Errorf("backend timeout_secs must not be negative")
	}
	if c.Backend.MaxRetries < 0 {
		return fmt.Errorf("backend max_retries must not be negative")
	}
	if c.Ingest.PollIntervalMs < 0 {
		return fmt.Errorf("ingest poll_interval_ms must not be negative")
	}
	if c.Ingest.MaxPolls < 0 {
		return fmt.Errorf("ingest max_polls must not be negative")
	}
	if c.Chat.DefaultModel == "" {
		return fmt.Errorf("chat default_model must not be empty")
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/notewell/notewell-cli/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete notewell CLI configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Server configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Project configuration
	Project ProjectConfig `toml:"project" json:"project"`

	// Chat configuration
	Chat ChatConfig `toml:"chat" json:"chat"`
}

// ServerConfig contains backend connection configuration.
type ServerConfig struct {
	// URL is the base URL of the Notewell backend API
	URL string `toml:"url" json:"url"`
	// APIToken is the bearer token for authenticated requests
	APIToken string `toml:"api_token" json:"api_token"`
	// MaxRetries is the retry budget for session CRUD requests
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// ProjectConfig identifies the project the CLI works against.
type ProjectConfig struct {
	// ID is the active project id
	ID int64 `toml:"id" json:"id"`
	// DefaultSourceIDs restricts retrieval to these sources when set
	DefaultSourceIDs []int64 `toml:"default_source_ids" json:"default_source_ids"`
}

// ChatConfig contains REPL and local archive configuration.
type ChatConfig struct {
	// HistoryFile is where the input line history is stored
	HistoryFile string `toml:"history_file" json:"history_file"`
	// ArchiveEnabled turns the local SQLite turn archive on
	ArchiveEnabled bool `toml:"archive_enabled" json:"archive_enabled"`
	// ArchivePath is the path of the archive database
	ArchivePath string `toml:"archive_path" json:"archive_path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	dir, _ := ConfigDir()
	return &Config{
		Version: "1.0.0",
		Server: ServerConfig{
			URL:        "http://127.0.0.1:8000/api",
			MaxRetries: 3,
		},
		Project: ProjectConfig{},
		Chat: ChatConfig{
			HistoryFile:    filepath.Join(dir, "history"),
			ArchiveEnabled: true,
			ArchivePath:    filepath.Join(dir, "archive.db"),
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the notewell configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".notewell"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 because they carry the API token.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finish(cfg)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finish(cfg)
		}
	}

	return finish(cfg)
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// finish applies env overrides, defaults, and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems; warn only.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (the API token
// lives in here).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# notewell configuration file\n")
	buf.WriteString("# Generated by notewell - edit with care\n\n")
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Atomic write with fsync prevents a truncated config on crash.
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: "server URL is required",
		})
	} else if u, err := url.Parse(c.Server.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: fmt.Sprintf("invalid URL '%s'", c.Server.URL),
		})
	}

	if c.Server.MaxRetries < 1 || c.Server.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "server.max_retries",
			Message: fmt.Sprintf("must be 1-10, got %d", c.Server.MaxRetries),
		})
	}

	if c.Project.ID < 0 {
		errs = append(errs, ValidationError{
			Field:   "project.id",
			Message: "project id cannot be negative",
		})
	}

	if c.Chat.ArchiveEnabled && c.Chat.ArchivePath == "" {
		errs = append(errs, ValidationError{
			Field:   "chat.archive_path",
			Message: "archive path is required when the archive is enabled",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.MaxRetries == 0 {
		c.Server.MaxRetries = defaults.Server.MaxRetries
	}
	if c.Chat.HistoryFile == "" {
		c.Chat.HistoryFile = defaults.Chat.HistoryFile
	}
	if c.Chat.ArchivePath == "" {
		c.Chat.ArchivePath = defaults.Chat.ArchivePath
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - NOTEWELL_SERVER_URL: overrides server.url
//   - NOTEWELL_API_TOKEN: overrides server.api_token
//   - NOTEWELL_PROJECT_ID: overrides project.id
func (c *Config) ApplyEnvOverrides() {
	if serverURL := os.Getenv("NOTEWELL_SERVER_URL"); serverURL != "" {
		c.Server.URL = serverURL
	}
	if token := os.Getenv("NOTEWELL_API_TOKEN"); token != "" {
		c.Server.APIToken = token
	}
	if project := os.Getenv("NOTEWELL_PROJECT_ID"); project != "" {
		if id, err := strconv.ParseInt(project, 10, 64); err == nil {
			c.Project.ID = id
		}
	}
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts the API token so it never lands in logs.
func (c *Config) String() string {
	safe := *c
	if safe.Server.APIToken != "" {
		safe.Server.APIToken = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

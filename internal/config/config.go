// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/retry"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/stream"
	"github.com/jeranaias/gemchat/internal/util"
)

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete gemchat configuration.
type Config struct {
	// Version is the config file format version.
	Version string `toml:"version" json:"version"`

	Gemini  GeminiConfig  `toml:"gemini" json:"gemini"`
	Retry   RetryConfig   `toml:"retry" json:"retry"`
	Render  RenderConfig  `toml:"render" json:"render"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	UI      UIConfig      `toml:"ui" json:"ui"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Export  ExportConfig  `toml:"export" json:"export"`
}

// GeminiConfig holds the API connection settings.
type GeminiConfig struct {
	// APIKey authenticates requests. Usually supplied through GEMINI_API_KEY.
	APIKey string `toml:"api_key" json:"api_key"`

	// Model is a model ID or short name (see model.ResolveModel).
	Model string `toml:"model" json:"model"`

	// BaseURL overrides the API endpoint.
	BaseURL string `toml:"base_url" json:"base_url"`

	// Timeout bounds the wait for response headers. Streaming bodies are not
	// cut off by it.
	Timeout Duration `toml:"timeout" json:"timeout"`

	// RequestsPerMinute throttles outgoing calls. 0 disables throttling.
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`

	// SystemPrompt is sent as the system instruction when set.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
}

// RetryConfig controls the retry loop and the connectivity warning.
type RetryConfig struct {
	MaxRetries        int      `toml:"max_retries" json:"max_retries"`
	BaseDelay         Duration `toml:"base_delay" json:"base_delay"`
	MaxDelay          Duration `toml:"max_delay" json:"max_delay"`
	FirstChunkTimeout Duration `toml:"first_chunk_timeout" json:"first_chunk_timeout"`
	WarningTTL        Duration `toml:"warning_ttl" json:"warning_ttl"`
}

// RenderConfig controls the reveal animation.
type RenderConfig struct {
	FrameInterval Duration `toml:"frame_interval" json:"frame_interval"`
}

// StorageConfig selects where sessions are kept.
type StorageConfig struct {
	// Backend is "file" or "sqlite". "none" disables persistence.
	Backend string `toml:"backend" json:"backend"`

	// Dir is the sessions directory. Empty means ~/.gemchat/sessions.
	Dir string `toml:"dir" json:"dir"`

	// MaxSessions caps the number of saved sessions.
	MaxSessions int `toml:"max_sessions" json:"max_sessions"`

	// Watch reloads the session list when another process changes it.
	Watch bool `toml:"watch" json:"watch"`
}

// UIConfig holds terminal UI preferences.
type UIConfig struct {
	// Theme is "auto", "dark" or "light".
	Theme string `toml:"theme" json:"theme"`

	WordWrap bool `toml:"word_wrap" json:"word_wrap"`

	// Markdown renders committed model turns through glamour.
	Markdown bool `toml:"markdown" json:"markdown"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level"`

	// Format is "json" or "text".
	Format string `toml:"format" json:"format"`

	// Dir is the log directory. Empty means ~/.gemchat/logs.
	Dir string `toml:"dir" json:"dir"`

	// Retention is how many log files to keep.
	Retention int `toml:"retention" json:"retention"`
}

// ExportConfig holds defaults for session export.
type ExportConfig struct {
	Dir    string `toml:"dir" json:"dir"`
	Format string `toml:"format" json:"format"`
}

// Backend names accepted by storage.backend besides the storage package's.
const BackendNone = "none"

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Gemini: GeminiConfig{
			Model:   model.DefaultModel,
			BaseURL: gemini.DefaultBaseURL,
			Timeout: Duration{gemini.DefaultHeaderTimeout},
		},
		Retry: RetryConfig{
			MaxRetries:        retry.DefaultMaxRetries,
			BaseDelay:         Duration{retry.DefaultBaseDelay},
			MaxDelay:          Duration{retry.DefaultMaxDelay},
			FirstChunkTimeout: Duration{15 * time.Second},
			WarningTTL:        Duration{10 * time.Second},
		},
		Render: RenderConfig{
			FrameInterval: Duration{stream.DefaultFrameInterval},
		},
		Storage: StorageConfig{
			Backend:     storage.BackendFile,
			MaxSessions: storage.DefaultMaxSessions,
			Watch:       true,
		},
		UI: UIConfig{
			Theme:    "auto",
			WordWrap: true,
			Markdown: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			Retention: DefaultLogRetention,
		},
		Export: ExportConfig{
			Format: "md",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the gemchat configuration directory. GEMCHAT_HOME
// overrides the default ~/.gemchat.
func ConfigDir() (string, error) {
	if dir := os.Getenv("GEMCHAT_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".gemchat"), nil
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
	return os.MkdirAll(dir, 0700)
}

// SessionsDir returns the directory sessions are stored in.
func (c *Config) SessionsDir() (string, error) {
	if c.Storage.Dir != "" {
		return expandHome(c.Storage.Dir), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "sessions"), nil
}

// LogDir returns the directory log files are written to.
func (c *Config) LogDir() (string, error) {
	if c.Logging.Dir != "" {
		return expandHome(c.Logging.Dir), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// ExportDir returns the directory exports are written to. Empty means the
// current directory.
func (c *Config) ExportDir() string {
	return expandHome(c.Export.Dir)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ensureSecurePermissions checks and fixes permissions on config files.
// Config files hold the API key and must be 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads .env files from the working directory and the config
// directory. Variables already set in the environment win. Missing files
// are not an error.
func LoadDotEnv() error {
	candidates := []string{".env"}
	if dir, err := ConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}

	var errs []error
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
				cfg = Default()
			} else {
				return finish(cfg)
			}
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = errors.Join(loadErr, fmt.Errorf("failed to load JSON config: %w", err))
				cfg = Default()
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err = finish(cfg)
	if err != nil {
		return nil, err
	}
	// Defaults, with any load error for informational purposes.
	return cfg, loadErr
}

// finish applies env overrides, migration and defaults, then validates.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	if err := cfg.Migrate(); err != nil {
		return nil, fmt.Errorf("config migration failed: %w", err)
	}
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return fillDefaults(cfg)
}

// LoadJSON loads configuration from a JSON file.
// Checks and fixes file permissions on load.
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
	return fillDefaults(cfg)
}

// LoadFromPath loads configuration from a specific file path with full
// validation. Environment overrides still apply. Used for --config.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if isJSONPath(path) {
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

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Gemini
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = defaults.Gemini.Model
	}
	if cfg.Gemini.BaseURL == "" {
		cfg.Gemini.BaseURL = defaults.Gemini.BaseURL
	}
	if cfg.Gemini.Timeout.Duration == 0 {
		cfg.Gemini.Timeout = defaults.Gemini.Timeout
	}

	// Retry
	if cfg.Retry.BaseDelay.Duration == 0 {
		cfg.Retry.BaseDelay = defaults.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay.Duration == 0 {
		cfg.Retry.MaxDelay = defaults.Retry.MaxDelay
	}
	if cfg.Retry.FirstChunkTimeout.Duration == 0 {
		cfg.Retry.FirstChunkTimeout = defaults.Retry.FirstChunkTimeout
	}
	if cfg.Retry.WarningTTL.Duration == 0 {
		cfg.Retry.WarningTTL = defaults.Retry.WarningTTL
	}

	// Render
	if cfg.Render.FrameInterval.Duration == 0 {
		cfg.Render.FrameInterval = defaults.Render.FrameInterval
	}

	// Storage
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = defaults.Storage.Backend
	}
	if cfg.Storage.MaxSessions == 0 {
		cfg.Storage.MaxSessions = defaults.Storage.MaxSessions
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
	if cfg.Logging.Retention == 0 {
		cfg.Logging.Retention = defaults.Logging.Retention
	}

	// Export
	if cfg.Export.Format == "" {
		cfg.Export.Format = defaults.Export.Format
	}

	return nil
}

// Migrate upgrades older config files in place. Version 0 files (no version
// key) are treated as version 1.
func (c *Config) Migrate() error {
	switch c.Version {
	case "", "0":
		c.Version = CurrentVersion
	case CurrentVersion:
	default:
		return fmt.Errorf("unsupported config version %q", c.Version)
	}
	c.Gemini.Model = model.ResolveModel(c.Gemini.Model)
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveFile writes cfg to path, as JSON when path ends in ".json" and as TOML
// otherwise.
func SaveFile(cfg *Config, path string) error {
	if isJSONPath(path) {
		return SaveJSON(cfg, path)
	}
	return SaveTOML(cfg, path)
}

func isJSONPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	buf.WriteString("# gemchat configuration file\n")
	buf.WriteString("# Generated by gemchat - edit with care\n")
	buf.WriteString("#\n")
	buf.WriteString("# The API key is best kept in GEMINI_API_KEY or ~/.gemchat/.env\n")
	buf.WriteString("\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, []byte(buf.String()), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - GEMINI_API_KEY, GEMCHAT_API_KEY: gemini.api_key
//   - GEMCHAT_MODEL: gemini.model
//   - GEMCHAT_BASE_URL: gemini.base_url
//   - GEMCHAT_MAX_RETRIES: retry.max_retries
//   - GEMCHAT_STORE: storage.backend
//   - GEMCHAT_STORE_DIR: storage.dir
//   - GEMCHAT_LOG_LEVEL: logging.level
//   - GEMCHAT_LOG_FORMAT: logging.format
//   - GEMCHAT_THEME: ui.theme
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if key := os.Getenv("GEMCHAT_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}

	if m := os.Getenv("GEMCHAT_MODEL"); m != "" {
		c.Gemini.Model = m
	}
	if u := os.Getenv("GEMCHAT_BASE_URL"); u != "" {
		c.Gemini.BaseURL = u
	}

	if v := os.Getenv("GEMCHAT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxRetries = n
		} else {
			fmt.Fprintf(os.Stderr, "Warning: ignoring GEMCHAT_MAX_RETRIES=%q: %v\n", v, err)
		}
	}

	if v := os.Getenv("GEMCHAT_STORE"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("GEMCHAT_STORE_DIR"); v != "" {
		c.Storage.Dir = v
	}

	if v := os.Getenv("GEMCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GEMCHAT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv("GEMCHAT_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "retry.max_retries").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "retry.max_retries").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field, nil
		}

		if field.Kind() != reflect.Struct || field.Type() == durationType {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

var durationType = reflect.TypeOf(Duration{})

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		if field.Type() == durationType {
			var d Duration
			if err := d.UnmarshalText([]byte(strVal)); err != nil {
				return err
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			lower := strings.ToLower(strVal)
			field.SetBool(lower == "1" || lower == "true" || lower == "yes")
			return nil
		}
	}

	if d, ok := value.(time.Duration); ok && field.Type() == durationType {
		field.Set(reflect.ValueOf(Duration{d}))
		return nil
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"gemini.api_key",
		"gemini.model",
		"gemini.base_url",
		"gemini.timeout",
		"gemini.requests_per_minute",
		"gemini.system_prompt",
		"retry.max_retries",
		"retry.base_delay",
		"retry.max_delay",
		"retry.first_chunk_timeout",
		"retry.warning_ttl",
		"render.frame_interval",
		"storage.backend",
		"storage.dir",
		"storage.max_sessions",
		"storage.watch",
		"ui.theme",
		"ui.word_wrap",
		"ui.markdown",
		"logging.level",
		"logging.format",
		"logging.dir",
		"logging.retention",
		"export.dir",
		"export.format",
	}
}

// Clone returns a copy of the configuration. Config holds no reference
// types, so a value copy is deep.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON rendering for debugging with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Gemini.APIKey != "" {
		safe.Gemini.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

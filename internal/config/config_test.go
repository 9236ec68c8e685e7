// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and clears the
// environment variables Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("GEMCHAT_HOME", dir)
	for _, key := range []string{
		"GEMINI_API_KEY", "GEMCHAT_API_KEY", "GEMCHAT_MODEL", "GEMCHAT_BASE_URL",
		"GEMCHAT_MAX_RETRIES", "GEMCHAT_STORE", "GEMCHAT_STORE_DIR",
		"GEMCHAT_LOG_LEVEL", "GEMCHAT_LOG_FORMAT", "GEMCHAT_THEME",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 15*time.Second, cfg.Retry.FirstChunkTimeout.Duration)
	assert.Equal(t, 10*time.Second, cfg.Retry.WarningTTL.Duration)
	assert.Equal(t, 16*time.Millisecond, cfg.Render.FrameInterval.Duration)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "retry.max_retries"},
		{"too many retries", func(c *Config) { c.Retry.MaxRetries = 50 }, "retry.max_retries"},
		{"bad backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"bad url scheme", func(c *Config) { c.Gemini.BaseURL = "ftp://example.com" }, "gemini.base_url"},
		{"missing model", func(c *Config) { c.Gemini.Model = "" }, "gemini.model"},
		{"zero warning ttl", func(c *Config) { c.Retry.WarningTTL = Duration{} }, "retry.warning_ttl"},
		{"max below base", func(c *Config) { c.Retry.MaxDelay = Duration{100 * time.Millisecond} }, "retry.max_delay"},
		{"frame too slow", func(c *Config) { c.Render.FrameInterval = Duration{5 * time.Second} }, "render.frame_interval"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
		{"bad export format", func(c *Config) { c.Export.Format = "pdf" }, "export.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs), "want ValidateErrors, got %T", err)
			assert.True(t, verrs.Has(tt.field), "errors %v do not mention %s", verrs, tt.field)
		})
	}
}

func TestLoad_TOMLWithEnvOverrides(t *testing.T) {
	dir := isolate(t)

	content := `
[gemini]
model = "pro"
timeout = "30s"

[retry]
max_retries = 5
first_chunk_timeout = "20s"

[storage]
backend = "SQLite"
`
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Setenv("GEMINI_API_KEY", "secret-key")
	t.Setenv("GEMCHAT_MAX_RETRIES", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-pro", cfg.Gemini.Model, "short name resolved")
	assert.Equal(t, 30*time.Second, cfg.Gemini.Timeout.Duration)
	assert.Equal(t, 2, cfg.Retry.MaxRetries, "env wins over file")
	assert.Equal(t, 20*time.Second, cfg.Retry.FirstChunkTimeout.Duration)
	assert.Equal(t, 10*time.Second, cfg.Retry.WarningTTL.Duration, "missing keys take defaults")
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "secret-key", cfg.Gemini.APIKey)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "permissions tightened on load")
	}
}

func TestLoad_JSONFallback(t *testing.T) {
	dir := isolate(t)

	content := `{"retry": {"max_retries": 1, "warning_ttl": "3s"}, "ui": {"theme": "dark"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Retry.WarningTTL.Duration)
	assert.Equal(t, "dark", cfg.UI.Theme)
}

func TestLoad_BrokenFileFallsBackToDefaults(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[gemini\nmodel="), 0600))

	cfg, err := Load()
	require.Error(t, err, "decode error is reported")
	require.NotNil(t, cfg)
	assert.Equal(t, Default().Gemini.Model, cfg.Gemini.Model)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[storage]\nbackend = \"redis\"\n"), 0600))

	cfg, err := Load()
	assert.Nil(t, cfg)
	assert.ErrorContains(t, err, "storage.backend")
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	cfg.Gemini.APIKey = "k"
	cfg.Retry.FirstChunkTimeout = Duration{7 * time.Second}
	cfg.Storage.Backend = "sqlite"
	require.NoError(t, SaveFile(cfg, filepath.Join(dir, "config.toml")))

	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# gemchat configuration file"))
	assert.Contains(t, string(data), `first_chunk_timeout = "7s"`)

	back, err := LoadFromPath(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, back.Retry.FirstChunkTimeout.Duration)
	assert.Equal(t, "sqlite", back.Storage.Backend)
	assert.Equal(t, "k", back.Gemini.APIKey)
}

func TestSaveJSON_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Render.FrameInterval = Duration{20 * time.Millisecond}
	require.NoError(t, SaveFile(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{"), "a .json path is written as JSON")

	back, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, back.Render.FrameInterval.Duration)
}

func TestLoadFromPath_AppliesEnvAndValidates(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "alt.toml")
	require.NoError(t, SaveFile(Default(), path))

	t.Setenv("GEMCHAT_MAX_RETRIES", "5")
	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)

	require.NoError(t, os.WriteFile(path, []byte("[storage]\nbackend = \"floppy\"\n"), 0600))
	_, err = LoadFromPath(path)
	assert.ErrorContains(t, err, "storage.backend")
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GEMCHAT_MODEL=flash-lite\n"), 0600))
	t.Setenv("GEMCHAT_MODEL", "")
	os.Unsetenv("GEMCHAT_MODEL")

	require.NoError(t, LoadDotEnv())
	assert.Equal(t, "flash-lite", os.Getenv("GEMCHAT_MODEL"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.Gemini.Model)
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("retry.max_retries", "7"))
	v, err := cfg.Get("retry.max_retries")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	require.NoError(t, cfg.Set("retry.first-chunk-timeout", "2s"))
	assert.Equal(t, 2*time.Second, cfg.Retry.FirstChunkTimeout.Duration)

	require.NoError(t, cfg.Set("retry.warning_ttl", 4*time.Second))
	assert.Equal(t, 4*time.Second, cfg.Retry.WarningTTL.Duration)

	require.NoError(t, cfg.Set("ui.word_wrap", "false"))
	assert.False(t, cfg.UI.WordWrap)

	assert.Error(t, cfg.Set("gemini.nope", "x"))
	assert.Error(t, cfg.Set("retry.max_retries", "many"))
	_, err = cfg.Get("retry.warning_ttl.seconds")
	assert.Error(t, err)
}

func TestGetAllKeys_Resolve(t *testing.T) {
	cfg := Default()
	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestConfig_StringRedactsKey(t *testing.T) {
	cfg := Default()
	cfg.Gemini.APIKey = "AIza-super-secret"

	s := cfg.String()
	assert.NotContains(t, s, "AIza-super-secret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "AIza-super-secret", cfg.Gemini.APIKey, "original untouched")
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"15s", 15 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"1500", 1500 * time.Millisecond},
		{"", 0},
	}
	for _, tt := range tests {
		var d Duration
		require.NoError(t, d.UnmarshalText([]byte(tt.in)), tt.in)
		assert.Equal(t, tt.want, d.Duration, tt.in)
	}

	var d Duration
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestPaths_HonorOverrides(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	sessions, err := cfg.SessionsDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sessions"), sessions)

	cfg.Storage.Dir = "/tmp/elsewhere"
	sessions, err = cfg.SessionsDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/elsewhere", sessions)

	logs, err := cfg.LogDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "logs"), logs)
}

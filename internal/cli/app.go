// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Startup wiring shared by the chat front ends.

package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/engine"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/retry"
	"github.com/jeranaias/gemchat/internal/storage"
)

// App holds everything a chat front end needs. Close releases it.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Client *gemini.Client
	Engine *engine.Engine

	// Store is nil when storage.backend is "none".
	Store storage.Store

	closers []func() error
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// LoadConfig loads .env files and the config file, then applies the
// global flags. A broken default config file is reported on stderr and the
// defaults are used in its place; a file named with --config must load.
func LoadConfig(args Args, stderr io.Writer) (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil && !args.Quiet {
		fmt.Fprintln(stderr, WarningStyle.Render("Warning: "+err.Error()))
	}

	var cfg *config.Config
	var err error
	if args.ConfigFile != "" {
		if err := requireConfigFile(args.ConfigFile); err != nil {
			return nil, err
		}
		if cfg, err = config.LoadFromPath(args.ConfigFile); err != nil {
			return nil, err
		}
	} else {
		cfg, err = config.Load()
		if cfg == nil {
			return nil, err
		}
		if err != nil && !args.Quiet {
			fmt.Fprintln(stderr, WarningStyle.Render("Warning: "+err.Error()+" (using defaults)"))
		}
	}

	if err := applyFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configFilePath is the file the config command reads and writes.
func configFilePath(args Args) (string, error) {
	if args.ConfigFile != "" {
		return args.ConfigFile, nil
	}
	return config.ConfigPathTOML()
}

func requireConfigFile(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &ValidationError{Field: "--config", Value: path, Reason: "file not found", Example: "gemchat --config ~/gemchat.toml"}
	case err != nil:
		return err
	case info.IsDir():
		return &ValidationError{Field: "--config", Value: path, Reason: "is a directory"}
	}
	return nil
}

// applyFlags copies the global flags over cfg and re-validates it.
func applyFlags(cfg *config.Config, args Args) error {
	if args.Model != "" {
		cfg.Gemini.Model = args.Model
	}
	if args.Store != "" {
		cfg.Storage.Backend = strings.ToLower(args.Store)
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// =============================================================================
// STARTUP
// =============================================================================

// NewApp wires logging, the Gemini client, the session store and the
// engine from cfg. The API key is required unless allowNoKey is set.
func NewApp(cfg *config.Config, allowNoKey bool) (*App, error) {
	app := &App{Config: cfg}

	logger, closeLog, err := config.SetupLogging(cfg)
	if err != nil {
		// Logging is best effort; the UI owns the terminal.
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		app.closers = append(app.closers, closeLog)
	}
	app.Logger = logger

	app.Client = NewClient(cfg, logger)
	if !allowNoKey && !app.Client.IsConfigured() {
		app.Close()
		return nil, fmt.Errorf("%w: set GEMINI_API_KEY or add gemini.api_key to %s", gemini.ErrNotConfigured, configPathHint())
	}

	app.Store, err = OpenStore(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	if app.Store != nil {
		app.closers = append(app.closers, app.Store.Close)
	}

	app.Engine = engine.New(app.Client, app.Store, EngineOptions(cfg)).WithLogger(logger)
	app.closers = append(app.closers, func() error {
		app.Engine.Close()
		return nil
	})

	logger.Info("gemchat started",
		"version", Version,
		"model", app.Client.Model(),
		"key", app.Client.APIKeyMasked(),
		"store", cfg.Storage.Backend,
	)
	return app, nil
}

// Resume reopens the last active chat. A store that cannot be read is
// logged and the app starts with a new chat.
func (a *App) Resume() {
	if a.Store == nil {
		return
	}
	ok, err := a.Engine.Resume()
	switch {
	case err != nil:
		a.Logger.Warn("resume failed", "error", err)
	case ok:
		a.Logger.Info("resumed session", "id", a.Engine.ActiveSessionID())
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewClient builds the Gemini client from cfg.
func NewClient(cfg *config.Config, logger *slog.Logger) *gemini.Client {
	return gemini.NewClient(cfg.Gemini.APIKey).
		WithBaseURL(cfg.Gemini.BaseURL).
		WithModel(cfg.Gemini.Model).
		WithHeaderTimeout(cfg.Gemini.Timeout.Duration).
		WithRateLimit(cfg.Gemini.RequestsPerMinute).
		WithSystemInstruction(cfg.Gemini.SystemPrompt).
		WithLogger(logger)
}

// OpenStore opens the configured session store, or returns nil for "none".
func OpenStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.Backend == config.BackendNone {
		return nil, nil
	}
	dir, err := cfg.SessionsDir()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(cfg.Storage.Backend, dir)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	switch s := store.(type) {
	case *storage.FileStore:
		s.MaxSessions = cfg.Storage.MaxSessions
	case *storage.SQLiteStore:
		s.MaxSessions = cfg.Storage.MaxSessions
	}
	return store, nil
}

// EngineOptions maps cfg onto engine options.
func EngineOptions(cfg *config.Config) engine.Options {
	opts := engine.DefaultOptions()
	opts.MaxRetries = cfg.Retry.MaxRetries
	opts.FirstChunkTimeout = cfg.Retry.FirstChunkTimeout.Duration
	opts.WarningTTL = cfg.Retry.WarningTTL.Duration
	opts.FrameInterval = cfg.Render.FrameInterval.Duration
	opts.Model = model.ResolveModel(cfg.Gemini.Model)

	policy := retry.DefaultPolicy()
	if d := cfg.Retry.BaseDelay.Duration; d > 0 {
		policy.BaseDelay = d
	}
	if d := cfg.Retry.MaxDelay.Duration; d > 0 {
		policy.MaxDelay = d
	}
	opts.Policy = policy
	return opts
}

func configPathHint() string {
	if path, err := config.ConfigPathTOML(); err == nil {
		return path
	}
	return "~/.gemchat/config.toml"
}

// ExitOnError prints err and exits with its code. It returns when err is nil.
func ExitOnError(err error) {
	if err == nil {
		return
	}
	DisplayError(os.Stderr, err)
	os.Exit(GetExitCode(err))
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// LOGGING
// =============================================================================

// DefaultLogRetention is how many log files SetupLogging keeps.
const DefaultLogRetention = 10

const (
	logPrefix = "gemchat-"
	logSuffix = ".log"
)

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func NewLogger(w io.Writer, cfg LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// SetupLogging opens a new timestamped log file in the log directory,
// installs a logger writing to it as slog's default and prunes old files
// beyond the retention count. The returned func closes the file.
//
// The terminal belongs to the UI, so nothing is logged to stdout or stderr.
func SetupLogging(cfg *Config) (*slog.Logger, func() error, error) {
	dir, err := cfg.LogDir()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := logPrefix + time.Now().Format("20060102-150405.000") + logSuffix
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := NewLogger(f, cfg.Logging).With("pid", os.Getpid())
	slog.SetDefault(logger)

	if removed, err := PruneLogs(dir, cfg.Logging.Retention); err != nil {
		logger.Warn("prune logs failed", "dir", dir, "error", err)
	} else if removed > 0 {
		logger.Debug("pruned old logs", "removed", removed)
	}

	return logger, f.Close, nil
}

// PruneLogs removes the oldest gemchat log files in dir so that at most keep
// remain. It returns the number removed.
func PruneLogs(dir string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var logs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, logPrefix) || !strings.HasSuffix(name, logSuffix) {
			continue
		}
		logs = append(logs, name)
	}
	if len(logs) <= keep {
		return 0, nil
	}

	// Names embed the start time, so lexical order is chronological.
	sort.Strings(logs)
	removed := 0
	for _, name := range logs[:len(logs)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for gemchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides and validation.
//
// # Key Types
//
//   - Config: main configuration structure with all sections
//   - GeminiConfig: API key, model and endpoint
//   - RetryConfig: retry count, backoff and connectivity warning timing
//   - StorageConfig: session backend and directory
//   - Duration: a time.Duration written as "15s" in config files
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (GEMINI_API_KEY, GEMCHAT_*)
//   - .env in the working directory, then ~/.gemchat/.env
//   - ~/.gemchat/config.toml
//   - ~/.gemchat/config.json
//   - Built-in defaults
//
// GEMCHAT_HOME moves the whole ~/.gemchat directory.
//
// # Usage
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger, closeLog, err := config.SetupLogging(cfg)
package config

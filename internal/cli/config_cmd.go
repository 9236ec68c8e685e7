// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration command for gemchat.
//
// Command: config [subcommand]
//
// Subcommands:
//   show [--json]          Effective configuration (file, env and flags)
//   path                   File and directory locations
//   init [--force]         Write a default config.toml
//   get <key>              Print one effective value
//   set <key> <value>      Change one value in config.toml
//
// set edits only what the file holds; environment overrides are not
// written back. With --config every subcommand uses that file instead of
// config.toml, in JSON when its name ends in .json.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/gemchat/internal/config"
)

const configUsage = "gemchat config [show|path|init|get|set]"

const (
	// apiKeyField is masked wherever config values are printed.
	apiKeyField = "gemini.api_key"

	configKeyWidth = 28
)

type configCmd struct {
	args   Args
	out    io.Writer
	stderr io.Writer
}

// HandleConfig handles the "config" command.
func HandleConfig(args Args) error {
	c := &configCmd{args: args, out: os.Stdout, stderr: os.Stderr}
	return c.run(args.Raw)
}

func (c *configCmd) run(raw []string) error {
	p := NewArgParser(raw, "json", "force")

	switch strings.ToLower(p.Subcommand()) {
	case "", "show":
		return c.show(p)
	case "path", "paths":
		return c.path()
	case "init":
		return c.initFile(p)
	case "get":
		return c.get(p)
	case "set":
		return c.set(p)
	default:
		return ErrUnknownSubcommand("config", p.Subcommand(), configUsage)
	}
}

// =============================================================================
// SUBCOMMANDS
// =============================================================================

func (c *configCmd) show(p *ArgParser) error {
	cfg, err := LoadConfig(c.args, c.stderr)
	if err != nil {
		return err
	}
	if p.BoolFlag("json") {
		fmt.Fprintln(c.out, cfg.String())
		return nil
	}

	fmt.Fprintln(c.out, TitleStyle.Render("gemchat configuration"))
	section := ""
	for _, key := range config.GetAllKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			continue
		}
		if s, _, ok := strings.Cut(key, "."); ok && s != section {
			section = s
			fmt.Fprintln(c.out, DimStyle.Render("["+section+"]"))
		}
		fmt.Fprintf(c.out, "  %s %s\n",
			DimStyle.Render(fmt.Sprintf("%-*s", configKeyWidth, key)),
			ValueStyle.Render(formatConfigValue(key, value)))
	}
	return nil
}

func (c *configCmd) path() error {
	filePath, err := configFilePath(c.args)
	if err != nil {
		return err
	}
	state := "missing"
	if _, err := os.Stat(filePath); err == nil {
		state = "exists"
	}
	fmt.Fprintln(c.out, RenderKeyValue("Config file", filePath+" ("+state+")"))

	cfg, err := LoadConfig(c.args, c.stderr)
	if err != nil {
		return err
	}
	if dir, err := cfg.SessionsDir(); err == nil {
		fmt.Fprintln(c.out, RenderKeyValue("Sessions", dir+" ("+cfg.Storage.Backend+")"))
	}
	if dir, err := cfg.LogDir(); err == nil {
		fmt.Fprintln(c.out, RenderKeyValue("Logs", dir))
	}
	exportDir := cfg.ExportDir()
	if exportDir == "" {
		exportDir = "."
	}
	fmt.Fprintln(c.out, RenderKeyValue("Exports", exportDir))
	return nil
}

func (c *configCmd) initFile(p *ArgParser) error {
	path, err := configFilePath(c.args)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !p.BoolFlag("force") {
		return &ValidationError{
			Field:   "config file",
			Value:   path,
			Reason:  "already exists",
			Example: "gemchat config init --force",
		}
	}
	if err := config.SaveFile(config.Default(), path); err != nil {
		return err
	}
	fmt.Fprintln(c.out, SuccessStyle.Render("Wrote "+path))
	if dir, err := config.ConfigDir(); err == nil {
		fmt.Fprintln(c.out, DimStyle.Render("Set GEMINI_API_KEY in your environment or in "+
			filepath.Join(dir, ".env")))
	}
	return nil
}

func (c *configCmd) get(p *ArgParser) error {
	key := p.Positional(1)
	if key == "" {
		return ErrMissingArgument("key", "gemchat config get retry.max_retries")
	}
	cfg, err := LoadConfig(c.args, c.stderr)
	if err != nil {
		return err
	}
	value, err := cfg.Get(key)
	if err != nil {
		return &ValidationError{Field: "key", Value: key, Reason: err.Error()}
	}
	fmt.Fprintln(c.out, formatConfigValue(key, value))
	return nil
}

func (c *configCmd) set(p *ArgParser) error {
	key, value := p.Positional(1), JoinPositionalArgs(p, 2)
	if key == "" || p.PositionalCount() < 3 {
		return ErrMissingArgument("key and value", "gemchat config set retry.max_retries 5")
	}
	if strings.EqualFold(key, "version") {
		return &ValidationError{Field: "key", Value: key, Reason: "is managed by gemchat"}
	}

	path, err := configFilePath(c.args)
	if err != nil {
		return err
	}
	cfg, err := loadFileConfig(path)
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return &ValidationError{Field: "key", Value: key, Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.SaveFile(cfg, path); err != nil {
		return err
	}

	shown, _ := cfg.Get(key)
	fmt.Fprintln(c.out, SuccessStyle.Render(fmt.Sprintf("Set %s = %s", key, formatConfigValue(key, shown))))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// loadFileConfig reads only the config file at path, without environment
// overrides, so that saving it back does not capture them.
func loadFileConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		return cfg, loadByExt(cfg, path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	// A legacy config.json is carried over into a new config.toml.
	tomlPath, err := config.ConfigPathTOML()
	if err != nil || path != tomlPath {
		return cfg, nil
	}
	jsonPath, err := config.ConfigPathJSON()
	if err != nil {
		return cfg, nil
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return cfg, loadByExt(cfg, jsonPath)
	}
	return cfg, nil
}

func loadByExt(cfg *config.Config, path string) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return config.LoadJSON(cfg, path)
	}
	return config.LoadTOML(cfg, path)
}

// formatConfigValue renders a value for display, masking the API key.
func formatConfigValue(key string, value interface{}) string {
	s := fmt.Sprint(value)
	if strings.EqualFold(key, apiKeyField) {
		return maskAPIKey(s)
	}
	if s == "" {
		return `""`
	}
	return s
}

// maskAPIKey keeps the last four characters of key.
func maskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) <= 8:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command line parsing for gemchat.

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdAsk
	CmdChat
	CmdSessions
	CmdConfig
	CmdVersion
	CmdHelp
	CmdUnknown
)

// String returns the command's name as typed.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdAsk:
		return "ask"
	case CmdChat:
		return "chat"
	case CmdSessions:
		return "sessions"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	Model   string // overrides gemini.model
	Store   string // overrides storage.backend

	// ConfigFile replaces the default config file location.
	ConfigFile string

	// Name is the command word as typed, kept for error messages.
	Name string

	// Raw holds the arguments after the command word, global flags removed.
	Raw []string
}

const usageText = `gemchat - chat with Gemini from the terminal

Usage:
  gemchat                          Start the chat view (default)
  gemchat tui                      Start the chat view
  gemchat ask "question"           Ask a single question and print the reply
  gemchat chat                     Line-mode chat with history and completion
  gemchat sessions [subcommand]    Manage saved chats
  gemchat config [subcommand]      Show or change configuration
  gemchat version                  Show version information
  gemchat help                     Show this help

Ask:
  gemchat ask "Why is the sky blue?"
  echo "Summarize this" | gemchat ask
  gemchat ask -i photo.png "What is in this picture?"
    -i, --image FILE               Attach an image (repeatable)
    -r, --retries N                Retry attempts after the first failure
    --raw                          Print plain text, skip markdown rendering

Sessions:
  gemchat sessions list            List saved chats (newest first)
  gemchat sessions show <id>       Print a chat transcript
  gemchat sessions delete <id>     Delete a chat
  gemchat sessions export <id>     Export a chat
    -f, --format md|json|yaml      Export format (default: export.format)
    -o, --output FILE              Output file (default: generated name)

  <id> may be the full ID or any unique prefix.

Config:
  gemchat config show              Show the effective configuration
  gemchat config path              Show the config file location
  gemchat config init              Write a default config.toml
  gemchat config get <key>         Print one value (e.g. retry.max_retries)
  gemchat config set <key> <value> Change one value and save

Global flags:
  --model NAME                     Model ID or short name (flash, pro, ...)
  --store file|sqlite|none         Session storage backend
  --config FILE                    Use this config file (.toml or .json)
  -q, --quiet                      Less output
  -v, --verbose                    Debug logging

Environment:
  GEMINI_API_KEY                   API key (also GEMCHAT_API_KEY)
  GEMCHAT_HOME                     Config directory (default ~/.gemchat)
  GEMCHAT_MODEL, GEMCHAT_MAX_RETRIES, GEMCHAT_STORE, GEMCHAT_STORE_DIR,
  GEMCHAT_LOG_LEVEL, GEMCHAT_LOG_FORMAT, GEMCHAT_THEME
  NO_COLOR                         Disable colors
`

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "gemchat %s\n", Version)
	fmt.Fprintf(w, "  commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  built:  %s\n", BuildDate)
	fmt.Fprintf(w, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses argv (without the program name) into a command and its
// arguments. Global flags may appear anywhere.
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdTUI, args
	}

	args.Name = remaining[0]
	args.Raw = remaining[1:]

	switch strings.ToLower(remaining[0]) {
	case "tui":
		return CmdTUI, args
	case "ask", "a":
		return CmdAsk, args
	case "chat", "repl":
		return CmdChat, args
	case "sessions", "session", "s":
		return CmdSessions, args
	case "config", "cfg":
		return CmdConfig, args
	case "version", "--version", "-V":
		return CmdVersion, args
	case "help", "--help", "-h":
		return CmdHelp, args
	default:
		return CmdUnknown, args
	}
}

// parseGlobalFlags pulls the global flags out of args.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsed Args

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsed.Quiet = true
		case "-v", "--verbose":
			parsed.Verbose = true
		case "--model", "--store", "--config":
			if i+1 < len(args) {
				i++
				switch arg {
				case "--model":
					parsed.Model = args[i]
				case "--store":
					parsed.Store = args[i]
				default:
					parsed.ConfigFile = args[i]
				}
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--model="):
				parsed.Model = strings.TrimPrefix(arg, "--model=")
			case strings.HasPrefix(arg, "--store="):
				parsed.Store = strings.TrimPrefix(arg, "--store=")
			case strings.HasPrefix(arg, "--config="):
				parsed.ConfigFile = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsed
}

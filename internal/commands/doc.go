// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system shared by the TUI and
// the line REPL.
//
// # Key Types
//
//   - Registry: command registry with all available commands
//   - Context: the engine and staged attachments handlers act on
//   - Result: output text and front-end requests (quit, redraw)
//   - Parser / ParseResult: parsed command name and arguments
//   - Completer: tab completion for commands, session IDs and file paths
//
// # Built-in Commands
//
//   - /new, /stop, /attach, /export
//   - /sessions, /open, /delete
//   - /help, /models, /quit
//
// # Usage
//
//	reg := commands.NewRegistry()
//	res, ok, err := reg.Execute(ctx, input)
//	if !ok {
//	    // not a command: send input as a message
//	}
package commands

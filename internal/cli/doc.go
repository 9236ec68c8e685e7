// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the gemchat command line: argument parsing, the
// startup wiring shared by every front end, and the non-TUI commands.
//
// # Key Types
//
//   - Command: Enumeration of the top-level commands
//   - Args: Global flags plus the raw arguments after the command word
//   - ArgParser: Flag and positional parsing for subcommands
//   - App: Logger, Gemini client, session store and engine built from config
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdAsk:
//	    err = cli.HandleAsk(ctx, args)
//	case cli.CmdSessions:
//	    err = cli.HandleSessions(args)
//	// ...
//	}
//	cli.ExitOnError(err)
//
// # Commands Overview
//
//   - tui: Full screen chat (default)
//   - ask: One question, reply on stdout; reads piped stdin
//   - chat: Line-mode chat with history and tab completion
//   - sessions: list, show, delete and export saved chats
//   - config: show, path, init, get and set configuration values
//
// # Exit Codes
//
// Errors map to exit codes with GetExitCode: 2 for usage, 3 for
// configuration, 4 for authentication, 5 for network, 7 for not found,
// 8 for timeouts and 130 for an interrupted reply.
package cli

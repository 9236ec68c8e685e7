// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/engine"
	"github.com/jeranaias/gemchat/internal/export"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/storage"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Context carries what handlers act on. It is shared by the TUI and the
// line REPL.
type Context struct {
	// Engine owns the conversation and the saved sessions.
	Engine *engine.Engine

	// Pending holds images staged for the next message.
	Pending *attach.Pending

	// ExportDir is where /export writes when no file is given. Empty means
	// the working directory.
	ExportDir string

	// ExportFormat is used when /export is given no format.
	ExportFormat string
}

// Result is what a command produced.
type Result struct {
	// Output is text to show the user.
	Output string

	// Quit asks the front end to exit.
	Quit bool

	// Refresh asks the front end to redraw the conversation.
	Refresh bool
}

// ErrNoEngine is returned by handlers that need a conversation when the
// context has none.
var ErrNoEngine = errors.New("no chat engine")

// =============================================================================
// CONVERSATION
// =============================================================================

// HandleNew starts a new chat and drops staged images.
func HandleNew(ctx *Context, args []string) (Result, error) {
	if ctx.Engine == nil {
		return Result{}, ErrNoEngine
	}
	ctx.Engine.NewChat()
	if ctx.Pending != nil {
		ctx.Pending.Clear()
	}
	return Result{Output: "Started a new chat.", Refresh: true}, nil
}

// HandleStop cancels the active send.
func HandleStop(ctx *Context, args []string) (Result, error) {
	if ctx.Engine == nil {
		return Result{}, ErrNoEngine
	}
	if !ctx.Engine.Busy() {
		return Result{Output: "Nothing to stop."}, nil
	}
	ctx.Engine.Stop()
	return Result{Output: "Stopping..."}, nil
}

// HandleAttach stages an image, or clears staged images with "clear".
func HandleAttach(ctx *Context, args []string) (Result, error) {
	if ctx.Pending == nil {
		return Result{}, errors.New("attachments are not available here")
	}
	if strings.EqualFold(args[0], "clear") {
		n := ctx.Pending.Len()
		ctx.Pending.Clear()
		return Result{Output: fmt.Sprintf("Cleared %d attachment(s).", n)}, nil
	}

	path := strings.Join(args, " ")
	img, err := ctx.Pending.Add(path)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: fmt.Sprintf("Attached %s (%d/%d, sent with your next message).",
		img.Name, ctx.Pending.Len(), attach.MaxImages)}, nil
}

// HandleExport writes the open chat to a file.
func HandleExport(ctx *Context, args []string) (Result, error) {
	if ctx.Engine == nil {
		return Result{}, ErrNoEngine
	}

	format := ctx.ExportFormat
	if len(args) > 0 {
		format = args[0]
	}
	if format == "" {
		format = export.FormatMarkdown
	}

	opts := export.DefaultOptions()
	if ctx.ExportDir != "" {
		opts.OutputDir = ctx.ExportDir
	}
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return Result{}, err
	}

	sess := ctx.Engine.CurrentSession()
	if len(args) > 1 {
		path := strings.Join(args[1:], " ")
		if err := export.ExportTo(sess, exporter, path); err != nil {
			return Result{}, err
		}
		return Result{Output: "Exported to " + path}, nil
	}

	path, err := export.ExportToFile(sess, exporter, opts)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: "Exported to " + path}, nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// HandleSessions lists saved chats, optionally filtered.
func HandleSessions(ctx *Context, args []string) (Result, error) {
	if ctx.Engine == nil {
		return Result{}, ErrNoEngine
	}
	metas, err := ctx.Engine.Sessions()
	if err != nil {
		return Result{}, err
	}
	if len(args) > 0 {
		metas = storage.Search(metas, strings.Join(args, " "))
	}
	if len(metas) == 0 {
		return Result{Output: "No saved chats."}, nil
	}

	out := storage.FormatSessionList(metas, ctx.Engine.Snapshot().SessionID)
	out += "\nOpen one with /open <id>."
	return Result{Output: out}, nil
}

// HandleOpen opens a saved chat by ID or prefix.
func HandleOpen(ctx *Context, args []string) (Result, error) {
	if ctx.Engine == nil {
		return Result{}, ErrNoEngine
	}
	if err := ctx.Engine.OpenSession(args[0]); err != nil {
		return Result{}, err
	}
	if ctx.Pending != nil {
		ctx.Pending.Clear()
	}
	st := ctx.Engine.Snapshot()
	return Result{
		Output:  fmt.Sprintf("Opened %q (%d turns).", st.Title, len(st.Turns)),
		Refresh: true,
	}, nil
}

// HandleDelete deletes a saved chat by ID or prefix.
func HandleDelete(ctx *Context, args []string) (Result, error) {
	if ctx.Engine == nil {
		return Result{}, ErrNoEngine
	}
	if err := ctx.Engine.DeleteSession(args[0]); err != nil {
		return Result{}, err
	}
	return Result{Output: "Deleted.", Refresh: true}, nil
}

// =============================================================================
// GENERAL
// =============================================================================

// HandleQuit asks the front end to exit.
func HandleQuit(ctx *Context, args []string) (Result, error) {
	return Result{Quit: true}, nil
}

// HandleModels lists the model registry.
func HandleModels(ctx *Context, args []string) (Result, error) {
	current := ""
	if ctx.Engine != nil {
		current = ctx.Engine.Model()
	}

	var sb strings.Builder
	sb.WriteString("Known models\n")
	sb.WriteString("============\n\n")
	for _, name := range model.ModelShortNames() {
		info := model.Models[name]
		marker := " "
		if info.ID == current {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %-12s %-24s %s (%s)\n", marker, name, info.ID, info.Description, info.ContextString())
	}
	sb.WriteString("\nSet gemini.model in config.toml or GEMCHAT_MODEL to switch.")
	return Result{Output: sb.String()}, nil
}

// =============================================================================
// HELP TEXT GENERATION
// =============================================================================

// GenerateHelpText generates help for all commands, or for one command when
// topic names it.
func GenerateHelpText(r *Registry, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic != "" {
		if !strings.HasPrefix(topic, "/") {
			topic = "/" + topic
		}
		if cmd := r.Get(topic); cmd != nil {
			return commandHelp(cmd)
		}
		return fmt.Sprintf("No such command: %s\n\nTry /help to see all commands.", topic)
	}

	var sb strings.Builder
	sb.WriteString("Available Commands\n")
	sb.WriteString("==================\n\n")

	categories := r.ByCategory()
	for _, category := range categoryOrder {
		cmds := categories[category]
		if len(cmds) == 0 {
			continue
		}
		sb.WriteString(category + "\n")
		for _, cmd := range cmds {
			line := "  " + cmd.Usage
			if cmd.Usage == "" {
				line = "  " + cmd.Name
			}
			for len(line) < 34 {
				line += " "
			}
			sb.WriteString(line + cmd.Description + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Keyboard Shortcuts\n")
	sb.WriteString("  Enter                     Send\n")
	sb.WriteString("  Alt+Enter                 New line\n")
	sb.WriteString("  Esc                       Stop the reply / dismiss error\n")
	sb.WriteString("  Tab                       Complete command\n")
	sb.WriteString("  PgUp/PgDn                 Scroll\n")
	sb.WriteString("  Ctrl+C                    Quit\n")
	return sb.String()
}

func commandHelp(cmd *Command) string {
	var sb strings.Builder
	sb.WriteString(cmd.Name + " - " + cmd.Description + "\n")
	if cmd.Usage != "" {
		sb.WriteString("  Usage: " + cmd.Usage + "\n")
	}
	if len(cmd.Aliases) > 0 {
		sb.WriteString("  Aliases: " + strings.Join(cmd.Aliases, ", ") + "\n")
	}
	for _, arg := range cmd.Args {
		req := "optional"
		if arg.Required {
			req = "required"
		}
		fmt.Fprintf(&sb, "  %s (%s): %s\n", arg.Name, req, arg.Description)
	}
	return sb.String()
}

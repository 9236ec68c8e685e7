// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat for terminals where the full screen view is
// unwanted.
//
// Command: chat
//
// Slash commands are the same as in the chat view (/help lists them).
// Tab completes commands, session IDs and file paths. Up and Down walk the
// input history, which is kept in ~/.gemchat/chat_history.
//
//   Ctrl+C   stop the reply in progress, or exit at the prompt
//   Ctrl+D   exit

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/commands"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/engine"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/retry"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/util"
)

const (
	historyFileName = "chat_history"
	chatPrompt      = "> "

	// transcriptTail is how many turns of a resumed chat are reprinted.
	transcriptTail = 4
)

// =============================================================================
// LINE EDITOR
// =============================================================================

// lineEditor wraps liner with a persistent history file.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor(complete liner.Completer) *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if complete != nil {
		line.SetCompleter(complete)
	}

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	e := &lineEditor{line: line, historyFile: filepath.Join(dir, historyFileName)}
	e.loadHistory()
	return e
}

func (e *lineEditor) loadHistory() {
	if f, err := os.Open(e.historyFile); err == nil {
		e.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput prompts for a line and records non-empty input in the history.
func (e *lineEditor) ReadInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes the history file with owner-only permissions.
func (e *lineEditor) SaveHistory() error {
	if err := os.MkdirAll(filepath.Dir(e.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = e.line.WriteHistory(f)
	return err
}

// Close saves the history and restores the terminal.
func (e *lineEditor) Close() error {
	err := e.SaveHistory()
	return errors.Join(err, e.line.Close())
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the line-mode chat until /quit, Ctrl+D or Ctrl+C at
// the prompt.
func HandleChat(ctx context.Context, args Args) error {
	if err := RequiresTTY("start line chat"); err != nil {
		return err
	}

	cfg, err := LoadConfig(args, os.Stderr)
	if err != nil {
		return err
	}
	app, err := NewApp(cfg, false)
	if err != nil {
		return err
	}
	defer app.Close()
	app.Resume()

	registry := commands.NewRegistry()
	pending := &attach.Pending{}
	cmdCtx := &commands.Context{
		Engine:       app.Engine,
		Pending:      pending,
		ExportDir:    cfg.ExportDir(),
		ExportFormat: cfg.Export.Format,
	}
	completer := commands.NewCompleter(registry)
	completer.SessionsFn = func() []storage.Meta {
		metas, _ := app.Engine.Sessions()
		return metas
	}

	editor := newLineEditor(completer.CompleteLine)
	defer func() {
		if err := editor.Close(); err != nil {
			app.Logger.Warn("save chat history failed", "error", err)
		}
	}()

	printer := newStreamPrinter(os.Stdout, os.Stdout, true)
	unsubscribe := app.Engine.OnChange(printer.Update)
	defer unsubscribe()

	// Ctrl+C during a reply stops it. At the prompt liner reads it as input.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-sigCh:
				app.Engine.Stop()
			case <-done:
				return
			}
		}
	}()

	r := &repl{
		out:      os.Stdout,
		errOut:   os.Stderr,
		engine:   app.Engine,
		registry: registry,
		cmdCtx:   cmdCtx,
		pending:  pending,
		printer:  printer,
		quiet:    args.Quiet,
	}
	if !args.Quiet {
		r.printWelcome()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		input, err := editor.ReadInput(chatPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}
		if quit := r.handleLine(ctx, input); quit {
			return nil
		}
	}
}

// =============================================================================
// REPL
// =============================================================================

// repl processes input lines. It is separate from the terminal so the
// line handling can be driven directly.
type repl struct {
	out, errOut io.Writer

	engine   *engine.Engine
	registry *commands.Registry
	cmdCtx   *commands.Context
	pending  *attach.Pending
	printer  *streamPrinter
	quiet    bool
}

// handleLine runs a command or sends a message. It reports whether the
// user asked to quit.
func (r *repl) handleLine(ctx context.Context, input string) bool {
	text := strings.TrimSpace(input)
	if text == "" && r.pending.Len() == 0 {
		return false
	}

	if commands.IsCommand(text) {
		return r.runCommand(text)
	}
	if strings.EqualFold(text, "exit") || strings.EqualFold(text, "quit") {
		return true
	}

	r.send(ctx, text)
	return false
}

func (r *repl) runCommand(text string) bool {
	res, _, err := r.registry.Execute(r.cmdCtx, text)
	if err != nil {
		DisplayError(r.errOut, err)
		return false
	}
	if res.Output != "" {
		fmt.Fprintln(r.out, res.Output)
	}
	if res.Refresh {
		r.printTranscript(r.engine.Snapshot())
	}
	return res.Quit
}

func (r *repl) send(ctx context.Context, text string) {
	images := r.pending.Take()

	fmt.Fprintln(r.out, ModelLabelStyle.Render("Gemini:"))
	r.printer.Begin()
	reply, err := r.engine.Send(ctx, text, images, -1)
	if reply != "" {
		r.printer.Finish(reply)
	} else {
		r.printer.Abort()
	}

	switch {
	case err == nil:
	case retry.IsCancellation(err):
		fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
	default:
		if reply == "" {
			// Nothing was kept; the images go back for another try.
			r.pending.Restore(images)
			r.engine.DismissError()
		}
		DisplayError(r.errOut, explainSendError(err))
	}
}

func (r *repl) printWelcome() {
	st := r.engine.Snapshot()
	fmt.Fprintln(r.out, TitleStyle.Render("gemchat "+Version))
	fmt.Fprintln(r.out, RenderKeyValue("Model", r.engine.Model()))
	if len(st.Turns) > 0 {
		fmt.Fprintln(r.out, RenderKeyValue("Resumed", fmt.Sprintf("%s (%d turns)", st.Title, len(st.Turns))))
		r.printTranscript(st)
	}
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(r.out)
}

// printTranscript reprints the last few turns of the open chat.
func (r *repl) printTranscript(st engine.State) {
	turns := st.Turns
	if len(turns) == 0 {
		return
	}
	if len(turns) > transcriptTail {
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("... %d earlier turns", len(turns)-transcriptTail)))
		turns = turns[len(turns)-transcriptTail:]
	}
	writeTurns(r.out, turns, GetTerminalWidth())
}

// writeTurns prints turns with role labels.
func writeTurns(w io.Writer, turns []model.Turn, width int) {
	for _, t := range turns {
		label := UserLabelStyle.Render(t.Role.DisplayName() + ":")
		if t.Role == model.RoleModel {
			label = ModelLabelStyle.Render(t.Role.DisplayName() + ":")
		}
		fmt.Fprintln(w, label)
		for _, img := range t.Images() {
			fmt.Fprintln(w, DimStyle.Render("[image: "+util.TruncateWidth(img.Name, width-10)+"]"))
		}
		if text := t.Text(); text != "" {
			fmt.Fprintln(w, text)
		}
		fmt.Fprintln(w)
	}
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - Single question command for gemchat.
//
// Command: ask [question]
//
// Examples:
//   gemchat ask "What is the capital of France?"
//   git diff | gemchat ask "Review this change"
//   gemchat ask -i chart.png "What does this show?"
//
// Flags:
//   -i, --image FILE    Attach an image (repeatable)
//   -r, --retries N     Retry attempts after the first failure
//   --raw               Plain text output, no markdown rendering
//   --no-save           Do not store the exchange as a session
//
// Piped stdin is appended to the question, or is the question when none
// is given. Markdown is rendered only when stdout is a terminal.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// maxStdinBytes caps how much piped input ask reads.
const maxStdinBytes = 1 << 20

// askRequest is a parsed ask command line.
type askRequest struct {
	Question string
	Images   []string
	Retries  int // negative selects retry.max_retries
	Raw      bool
	NoSave   bool
}

func parseAskArgs(raw []string) (askRequest, error) {
	p := NewArgParser(raw, "raw", "no-save")
	req := askRequest{
		Question: JoinPositionalArgs(p, 0),
		Images:   p.FlagValues("image", "i"),
		Retries:  -1,
		Raw:      p.BoolFlag("raw"),
		NoSave:   p.BoolFlag("no-save"),
	}
	if v := p.Flag("retries", "r"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, &ValidationError{
				Field:   "retries",
				Value:   v,
				Reason:  "must be a non-negative integer",
				Example: `gemchat ask -r 2 "hello"`,
			}
		}
		req.Retries = n
	}
	return req, nil
}

// readQuestion combines the question from the command line with piped
// input.
func readQuestion(question string, stdin io.Reader, piped bool) (string, error) {
	question = strings.TrimSpace(question)
	if piped && stdin != nil {
		data, err := io.ReadAll(io.LimitReader(stdin, maxStdinBytes))
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			if question == "" {
				question = text
			} else {
				question += "\n\n" + text
			}
		}
	}
	if question == "" {
		return "", ErrMissingArgument("question", `gemchat ask "Why is the sky blue?"`)
	}
	return question, nil
}

// =============================================================================
// ASK HANDLER
// =============================================================================

// HandleAsk sends one question and prints the reply.
func HandleAsk(ctx context.Context, args Args) error {
	req, err := parseAskArgs(args.Raw)
	if err != nil {
		return err
	}
	question, err := readQuestion(req.Question, os.Stdin, IsStdinPiped())
	if err != nil {
		return err
	}
	images, err := attach.Load(req.Images)
	if err != nil {
		return err
	}

	cfg, err := LoadConfig(args, os.Stderr)
	if err != nil {
		return err
	}
	if req.NoSave {
		cfg.Storage.Backend = config.BackendNone
	}
	app, err := NewApp(cfg, false)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	tty := IsStdoutTTY()
	markdown := tty && !req.Raw && cfg.UI.Markdown
	var status io.Writer
	if !args.Quiet && isTerminal(os.Stderr) {
		status = os.Stderr
	}

	printer := newStreamPrinter(os.Stdout, status, tty && !markdown)
	unsubscribe := app.Engine.OnChange(printer.Update)
	defer unsubscribe()

	app.Logger.Info("ask", "chars", len(question), "images", len(images))
	printer.Begin()
	reply, err := app.Engine.Send(ctx, question, images, req.Retries)
	if err != nil && reply == "" {
		printer.Abort()
		return explainSendError(err)
	}

	if markdown {
		printer.Finish("")
		fmt.Print(renderMarkdown(reply, cfg.UI.Theme, GetTerminalWidth()))
	} else {
		printer.Finish(reply)
	}

	// A partial reply is printed, then the failure reported.
	return explainSendError(err)
}

// renderMarkdown renders reply for the terminal, falling back to the
// plain text when glamour fails.
func renderMarkdown(reply, theme string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(styles.NewTheme(theme).GlamourStyle()),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return reply + "\n"
	}
	out, err := r.Render(reply)
	if err != nil {
		return reply + "\n"
	}
	return out
}

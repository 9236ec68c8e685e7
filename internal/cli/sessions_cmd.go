// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// sessions_cmd.go - Saved chat management from the shell.
//
// Command: sessions [subcommand]
//
// Subcommands:
//   list [--search TEXT] [--json]        List saved chats (default)
//   show <id> [--json]                   Print a transcript
//   delete <id> [--yes]                  Delete a chat
//   export <id> [-f FORMAT] [-o FILE]    Export a chat ("-o -" for stdout)

package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/export"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/util"
)

const sessionsUsage = "gemchat sessions [list|show|delete|export] <id>"

// sessionsCmd runs one sessions subcommand against a store.
type sessionsCmd struct {
	store storage.Store
	cfg   *config.Config

	in  io.Reader
	out io.Writer

	// interactive allows asking before a delete.
	interactive bool
}

// HandleSessions handles the "sessions" command.
func HandleSessions(args Args) error {
	cfg, err := LoadConfig(args, os.Stderr)
	if err != nil {
		return err
	}
	store, err := OpenStore(cfg)
	if err != nil {
		return err
	}
	if store == nil {
		return ErrStorageDisabled
	}
	defer store.Close()

	cmd := &sessionsCmd{
		store:       store,
		cfg:         cfg,
		in:          os.Stdin,
		out:         os.Stdout,
		interactive: IsTTY(),
	}
	return cmd.run(args.Raw)
}

func (c *sessionsCmd) run(raw []string) error {
	p := NewArgParser(raw, "json", "yes", "y")

	var err error
	action := strings.ToLower(p.Subcommand())
	switch action {
	case "", "list", "ls":
		action = "list"
		err = c.list(p)
	case "show", "view":
		err = c.show(p)
	case "delete", "rm":
		err = c.delete(p)
	case "export":
		err = c.export(p)
	default:
		return ErrUnknownSubcommand("sessions", p.Subcommand(), sessionsUsage)
	}

	var validationErr *ValidationError
	var notFound *NotFoundError
	if err != nil && !errors.As(err, &validationErr) && !errors.As(err, &notFound) {
		return &CommandError{Command: "sessions", Action: action, Err: err}
	}
	return err
}

// =============================================================================
// SUBCOMMANDS
// =============================================================================

func (c *sessionsCmd) list(p *ArgParser) error {
	metas, err := c.store.List()
	if err != nil {
		return err
	}
	if q := p.Flag("search", "s"); q != "" {
		metas = storage.Search(metas, q)
	}

	if p.BoolFlag("json") {
		if metas == nil {
			metas = []storage.Meta{}
		}
		return writeJSON(c.out, metas)
	}

	active, err := c.store.Active()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, strings.TrimRight(storage.FormatSessionList(metas, active), "\n"))
	return nil
}

func (c *sessionsCmd) show(p *ArgParser) error {
	sess, err := c.resolve(p.Positional(1), "sessions show <id>")
	if err != nil {
		return err
	}
	if p.BoolFlag("json") {
		return writeJSON(c.out, sess)
	}

	fmt.Fprintln(c.out, TitleStyle.Render(sess.Title))
	fmt.Fprintln(c.out, RenderKeyValue("ID", sess.ID))
	if sess.Model != "" {
		fmt.Fprintln(c.out, RenderKeyValue("Model", sess.Model))
	}
	fmt.Fprintln(c.out, RenderKeyValue("Created", sess.CreatedAt.Format("2006-01-02 15:04")))
	fmt.Fprintln(c.out, RenderKeyValue("Updated", sess.UpdatedAt.Format("2006-01-02 15:04")))
	fmt.Fprintln(c.out, RenderKeyValue("Turns", fmt.Sprintf("%d", len(sess.Turns))))
	fmt.Fprintln(c.out, RenderSeparator())
	writeTurns(c.out, sess.Turns, GetTerminalWidth())
	return nil
}

func (c *sessionsCmd) delete(p *ArgParser) error {
	sess, err := c.resolve(p.Positional(1), "sessions delete <id> --yes")
	if err != nil {
		return err
	}
	label := fmt.Sprintf("%s %q", util.SafeSubstring(sess.ID, 0, storage.ShortIDLen), sess.Title)

	if !p.BoolFlag("yes", "y") {
		if !c.interactive {
			return &ValidationError{
				Field:   "confirmation",
				Reason:  "deleting without a terminal needs --yes",
				Example: "gemchat sessions delete " + util.SafeSubstring(sess.ID, 0, storage.ShortIDLen) + " --yes",
			}
		}
		if !c.confirm("Delete " + label + "?") {
			fmt.Fprintln(c.out, DimStyle.Render("Cancelled."))
			return nil
		}
	}

	if err := c.store.Delete(sess.ID); err != nil {
		return err
	}
	fmt.Fprintln(c.out, SuccessStyle.Render("Deleted "+label))
	return nil
}

func (c *sessionsCmd) export(p *ArgParser) error {
	sess, err := c.resolve(p.Positional(1), "sessions export <id> --format md")
	if err != nil {
		return err
	}

	format := p.Flag("format", "f")
	if format == "" {
		format = c.cfg.Export.Format
	}
	opts := export.DefaultOptions()
	if dir := c.cfg.ExportDir(); dir != "" {
		opts.OutputDir = dir
	}
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return &ValidationError{Field: "format", Value: format, Reason: err.Error()}
	}

	switch output := p.Flag("output", "o"); output {
	case "-":
		data, err := exporter.Export(sess)
		if err != nil {
			return err
		}
		_, err = c.out.Write(data)
		return err
	case "":
		path, err := export.ExportToFile(sess, exporter, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, SuccessStyle.Render("Exported to "+path))
	default:
		if err := export.ExportTo(sess, exporter, output); err != nil {
			return err
		}
		fmt.Fprintln(c.out, SuccessStyle.Render("Exported to "+output))
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// resolve loads the session named by a full ID or unique prefix.
func (c *sessionsCmd) resolve(prefix, usage string) (*storage.Session, error) {
	if prefix == "" {
		return nil, ErrMissingArgument("id", "gemchat "+usage)
	}
	metas, err := c.store.List()
	if err != nil {
		return nil, err
	}
	id, err := storage.ResolveID(metas, prefix)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil, &NotFoundError{Resource: "session", ID: prefix}
	}
	if err != nil {
		return nil, &ValidationError{Field: "id", Value: prefix, Reason: err.Error()}
	}
	return c.store.Get(id)
}

// confirm asks a yes/no question on c.out and reads the answer from c.in.
func (c *sessionsCmd) confirm(question string) bool {
	fmt.Fprint(c.out, WarningStyle.Render(question)+" [y/N] ")
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	ok, err := ParseBoolString(line)
	return err == nil && ok
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

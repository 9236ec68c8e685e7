// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jeranaias/gemchat/internal/attach"
	"github.com/jeranaias/gemchat/internal/commands"
	"github.com/jeranaias/gemchat/internal/ui/chat"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// HandleTUI runs the full screen chat view.
func HandleTUI(ctx context.Context, args Args) error {
	if err := RequiresTTY("start the chat view"); err != nil {
		return fmt.Errorf("%w (try 'gemchat ask' for piped input)", err)
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

	opts := chat.Options{
		Engine:       app.Engine,
		Theme:        styles.NewTheme(cfg.UI.Theme),
		Registry:     commands.NewRegistry(),
		Pending:      &attach.Pending{},
		ExportDir:    cfg.ExportDir(),
		ExportFormat: cfg.Export.Format,
		Markdown:     cfg.UI.Markdown,
		WordWrap:     cfg.UI.WordWrap,
		Context:      ctx,
		Logger:       app.Logger,
	}
	if cfg.Storage.Watch && app.Store != nil {
		if dir, err := cfg.SessionsDir(); err == nil {
			opts.WatchDir = dir
		}
	}

	return chat.Run(ctx, opts)
}

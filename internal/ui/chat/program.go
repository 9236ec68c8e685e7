// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/gemchat/internal/storage"
)

// ErrNoEngine is returned by Run without an engine.
var ErrNoEngine = errors.New("chat view needs an engine")

// Run shows the chat view until the user quits or ctx is done. A send in
// flight is cancelled on exit.
func Run(ctx context.Context, opts Options) error {
	if opts.Engine == nil {
		return ErrNoEngine
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Context == nil {
		opts.Context = ctx
	}

	b := newBridge(opts.Engine)
	defer b.close()

	m := New(opts).withBridge(b)

	if opts.WatchDir != "" {
		w, err := storage.NewWatcher(opts.WatchDir, 0, b.pushSessions)
		if err == nil {
			w = w.WithLogger(m.logger)
			err = w.Watch()
			if err == nil {
				defer w.Close()
			}
		}
		if err != nil {
			m.logger.Warn("session watch unavailable", "dir", opts.WatchDir, "error", err)
		}
	}

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	m.logger.Info("tui started", "session", m.state.SessionID)
	_, err := p.Run()
	opts.Engine.Stop()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	m.logger.Info("tui stopped")
	return err
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat view for gemchat.

The view is a Bubble Tea model over an *engine.Engine. It never mutates the
conversation itself: it sends messages and runs slash commands through the
engine and redraws from the engine's State snapshots.

# Key Components

## Model (model.go)

The Model holds the widgets (viewport, textarea, spinner, progress bar) and
the last engine State it was given. Update dispatches key presses, engine
state changes and session-list changes.

## Bridge (bridge.go)

Engine listeners run on engine goroutines and must not block. The bridge
keeps only the newest State in a one-slot channel and a tea.Cmd waits on it,
so bursts of reveal frames collapse into one redraw. A storage watcher feeds
a second channel so the session list stays current when another process
writes to the store.

## View Rendering (view.go, render.go)

Layout from top to bottom:

	header            brand, chat title, model
	warning banner    only while the connection looks slow
	conversation      scrollable viewport
	retry bar         attempt count, countdown and progress while backing off
	error bar         last failure until dismissed
	attachments       staged images
	completions       slash command suggestions
	input             multi-line textarea
	status bar        spinner or key help

Committed model turns are rendered as Markdown with glamour. The turn being
revealed is shown as plain text with a typing cursor.

# Usage

	err := chat.Run(ctx, chat.Options{
		Engine:   eng,
		Theme:    styles.NewTheme(cfg.UI.Theme),
		Pending:  &attach.Pending{},
		WatchDir: cfg.SessionsDir(),
	})
*/
package chat

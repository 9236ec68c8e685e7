// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine coordinates a chat: it sends messages through a
// Transport under a retry loop, reveals replies at a steady pace and
// persists sessions.
//
// # Key Types
//
//   - Engine: the coordinator; one send at a time
//   - Transport: streaming model call (implemented by gemini.Client)
//   - State: snapshot a UI renders (turns, partial reply, retry progress,
//     connectivity warning, last error)
//   - Options: retry count, timings and backoff policy
//
// # Usage
//
//	eng := engine.New(client, store, engine.DefaultOptions())
//	stop := eng.OnChange(func(st engine.State) { redraw(st) })
//	defer stop()
//
//	reply, err := eng.Send(ctx, "Hello", nil, -1)
//
// Stop cancels the active send from any goroutine. Text received before
// the cancel is kept as a complete turn.
package engine

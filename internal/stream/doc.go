// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decouples how fast response text arrives from how fast it
// is revealed on screen.
//
// The transport callback writes into a Buffer; a Renderer drains the Buffer
// on a fixed frame cadence, revealing a few characters per frame so that
// bursty network delivery still reads as steady typing. A Session ties one
// Buffer to the cancellation of one in-flight send.
//
// # Key Types
//
//   - Buffer: accumulated text plus the display cursor
//   - Renderer: single frame loop with idempotent Start and synchronous Stop
//   - Session: ephemeral per-send state (buffer, cancellation, retry count)
//   - Ticker: frame source, swappable in tests
//
// # Pacing
//
// Each frame reveals min(step, remaining) runes where step is 10 while more
// than 50 runes are pending and 5 otherwise. When the cursor catches up and
// the stream is still open the loop keeps polling; once the stream has ended
// it stops and reports typing as finished.
//
// # Usage
//
//	sess := stream.NewSession(ctx)
//	r := stream.NewRenderer(sess.Buffer, 16*time.Millisecond, func(text string, typing bool) {
//	    ui.SetPartial(text, typing)
//	})
//	r.Start()
//	client.Stream(sess.Context(), prompt, history, nil, sess.Buffer.OnChunk)
//	sess.Buffer.End()
//	r.Wait()
package stream

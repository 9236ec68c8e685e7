// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"sync"
	"unicode/utf8"
)

const (
	// burstThreshold is the pending rune count above which a frame reveals
	// the larger step.
	burstThreshold = 50

	// burstStep and steadyStep are the runes revealed per frame.
	burstStep  = 10
	steadyStep = 5
)

// =============================================================================
// BUFFER
// =============================================================================

// Buffer holds the text received so far and how much of it is visible.
//
// The transport goroutine writes and the render loop reads, so every method
// takes the mutex. The buffer length and the display cursor only grow until
// a retried attempt delivers its first data, and the cursor never passes the
// length.
type Buffer struct {
	mu        sync.Mutex
	runes     []rune
	displayed int
	ended     bool
	frozen    bool
	stale     bool
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// OnChunk records a new fragment. accumulated is the full text so far as
// reported by the transport; when it is longer than what the buffer holds it
// wins, otherwise chunk is appended. Nothing is painted here.
func (b *Buffer) OnChunk(chunk, accumulated string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stale {
		if chunk == "" && accumulated == "" {
			return
		}
		b.runes = b.runes[:0]
		b.displayed = 0
		b.stale = false
	}
	b.runes = append(b.runes, []rune(chunk)...)
	if accumulated != "" && utf8.RuneCountInString(accumulated) > len(b.runes) {
		b.runes = []rune(accumulated)
	}
}

// Step advances the cursor by one frame's worth of runes and returns the
// visible text. done is true once the stream has ended and everything is
// visible. A frozen buffer never advances.
func (b *Buffer) Step() (visible string, advanced, done bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frozen {
		return string(b.runes[:b.displayed]), false, true
	}

	remaining := len(b.runes) - b.displayed
	if remaining > 0 {
		n := steadyStep
		if remaining > burstThreshold {
			n = burstStep
		}
		if n > remaining {
			n = remaining
		}
		b.displayed += n
		advanced = true
	}

	done = b.ended && b.displayed == len(b.runes)
	return string(b.runes[:b.displayed]), advanced, done
}

// End marks the stream as finished; the render loop stops once it has
// revealed the rest.
func (b *Buffer) End() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = true
}

// Freeze stops all further reveals. Chunks can still be appended so that
// text received after a cancel request is not lost.
func (b *Buffer) Freeze() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frozen = true
}

// Restart prepares the buffer for a new attempt. The text of the earlier
// attempt stays readable until the new attempt delivers its first data, so a
// retry that fails before answering leaves it in place.
func (b *Buffer) Restart() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stale = len(b.runes) > 0
	b.ended = false
}

// Text returns the full accumulated text.
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.runes)
}

// Visible returns the text revealed so far.
func (b *Buffer) Visible() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.runes[:b.displayed])
}

// Len returns the accumulated length in runes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.runes)
}

// Displayed returns the display cursor in runes.
func (b *Buffer) Displayed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.displayed
}

// HasData reports whether any text has been received.
func (b *Buffer) HasData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.runes) > 0
}

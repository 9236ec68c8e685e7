// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is the ephemeral state of one in-flight send. It owns the Buffer
// and the cancellation of every suspension point of that send. Sessions are
// never persisted.
type Session struct {
	ID      string
	Buffer  *Buffer
	Started time.Time

	ctx        context.Context
	cancel     context.CancelFunc
	stopFreeze func() bool

	mu      sync.Mutex
	attempt int
	backoff time.Duration
}

// NewSession derives a cancellable context from parent. Cancelling either
// freezes the buffer so late chunks are kept but not revealed.
func NewSession(parent context.Context) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		ID:      uuid.NewString(),
		Buffer:  NewBuffer(),
		Started: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.stopFreeze = context.AfterFunc(ctx, s.Buffer.Freeze)
	return s
}

// Context is passed to every blocking call made for this send.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Cancel requests cancellation. It does not wait for the send to unwind.
func (s *Session) Cancel() {
	s.Buffer.Freeze()
	s.cancel()
}

// Cancelled reports whether cancellation was requested.
func (s *Session) Cancelled() bool {
	return s.ctx.Err() != nil
}

// BeginAttempt records the attempt number. For a retry the buffer is
// restarted: text from the failed attempt is replaced once the new attempt
// sends data.
func (s *Session) BeginAttempt(attempt int) {
	s.mu.Lock()
	s.attempt = attempt
	s.mu.Unlock()
	if attempt > 0 {
		s.Buffer.Restart()
	}
}

// SetBackoff records the current retry delay.
func (s *Session) SetBackoff(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backoff = d
}

// Attempt returns the current attempt number (0 for the first try).
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Backoff returns the most recent retry delay.
func (s *Session) Backoff() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoff
}

// Close releases the session's context. Call it once the send has finished.
func (s *Session) Close() {
	s.stopFreeze()
	s.cancel()
}

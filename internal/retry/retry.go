// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultBaseDelay is the wait before the first retry.
	DefaultBaseDelay = time.Second

	// DefaultMaxDelay caps the exponential growth.
	DefaultMaxDelay = 10 * time.Second

	// DefaultPollInterval is how often a pending wait re-checks cancellation
	// and republishes its countdown.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
)

// =============================================================================
// POLICY
// =============================================================================

// Policy is a backoff schedule.
type Policy struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

// DefaultPolicy returns the 1s doubling schedule capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		PollInterval: DefaultPollInterval,
	}
}

// Delay returns the wait before attempt under the default policy.
func Delay(attempt int) time.Duration {
	return DefaultPolicy().Delay(attempt)
}

// Delay returns the wait before attempt. Attempt 0 never waits.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// =============================================================================
// STATE
// =============================================================================

// State describes a pending retry. The zero State means no retry is pending.
type State struct {
	Attempt     int   `json:"attempt"`
	MaxAttempts int   `json:"maxAttempts"`
	DelayMs     int64 `json:"delayMs"`
	RemainingMs int64 `json:"remainingMs"`
}

// Active reports whether a retry wait is in progress.
func (s State) Active() bool {
	return s.Attempt > 0
}

// Progress returns the elapsed fraction of the wait in [0, 1].
func (s State) Progress() float64 {
	if s.DelayMs <= 0 {
		return 1
	}
	p := 1 - float64(s.RemainingMs)/float64(s.DelayMs)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// =============================================================================
// WAIT
// =============================================================================

// Wait blocks for delay, calling report with the remaining time right away
// and then once per poll interval. It returns ctx.Err() as soon as ctx is
// done, without waiting out the delay.
func (p Policy) Wait(ctx context.Context, delay time.Duration, report func(remaining time.Duration)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	poll := p.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	deadline := time.Now().Add(delay)
	if report != nil {
		report(delay)
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			remaining = time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			if report != nil {
				report(remaining)
			}
		}
	}
}

// =============================================================================
// RETRY LOOP
// =============================================================================

// ExhaustedError is returned when the last allowed attempt failed with a
// retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the error of the final attempt.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs fn up to maxRetries+1 times. Between attempts it waits according
// to the policy, publishing State through observe on every poll and a zero
// State once the wait ends. A non-retryable error, including cancellation,
// is returned unchanged.
func (p Policy) Do(ctx context.Context, maxRetries int, fn func(ctx context.Context, attempt int) error, observe func(State)) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if observe == nil {
		observe = func(State) {}
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			state := State{
				Attempt:     attempt,
				MaxAttempts: maxRetries + 1,
				DelayMs:     delay.Milliseconds(),
			}
			logger.Warn("retrying after failure",
				"attempt", attempt,
				"max_retries", maxRetries,
				"delay", delay,
				"kind", Classify(lastErr).String(),
				"error", lastErr)

			err := p.Wait(ctx, delay, func(remaining time.Duration) {
				state.RemainingMs = remaining.Milliseconds()
				observe(state)
			})
			observe(State{})
			if err != nil {
				return err
			}
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == maxRetries {
			if attempt == 0 {
				return err
			}
			return &ExhaustedError{Attempts: attempt + 1, Err: err}
		}
	}
	return lastErr
}

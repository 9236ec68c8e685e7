// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("HTTP %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func fastPolicy() Policy {
	return Policy{
		BaseDelay:    time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

// =============================================================================
// DELAY TESTS
// =============================================================================

func TestDelay_DefaultSchedule(t *testing.T) {
	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond,
	}
	for i, w := range want {
		attempt := i + 1
		if got := Delay(attempt); got != w {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, w)
		}
	}
	if got := Delay(0); got != 0 {
		t.Errorf("Delay(0) = %v, want 0", got)
	}
	if got := Delay(30); got != DefaultMaxDelay {
		t.Errorf("Delay(30) = %v, want cap %v", got, DefaultMaxDelay)
	}
}

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"cancelled", context.Canceled, KindCancellation, false},
		{"wrapped cancel", fmt.Errorf("stream: %w", context.Canceled), KindCancellation, false},
		{"deadline", context.DeadlineExceeded, KindTimeout, true},
		{"net timeout", timeoutErr{}, KindTimeout, true},
		{"conn refused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, KindTransport, true},
		{"unexpected eof", io.ErrUnexpectedEOF, KindTransport, true},
		{"dial permission denied", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: permission denied")}, KindTransport, true},
		{"deadline with permission text", fmt.Errorf("permission check: %w", context.DeadlineExceeded), KindTimeout, true},
		{"429", statusErr(429), KindRateLimit, true},
		{"500", statusErr(500), KindServer, true},
		{"503", statusErr(503), KindServer, true},
		{"401", statusErr(401), KindAuth, false},
		{"403", statusErr(403), KindAuth, false},
		{"bad key message", errors.New("API key not valid. Please pass a valid API key."), KindAuth, false},
		{"permission message", errors.New("caller does not have permission"), KindAuth, false},
		{"other", errors.New("something odd"), KindUnknown, true},
		{"404", statusErr(404), KindUnknown, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, Classify(tc.err))
			assert.Equal(t, tc.retryable, IsRetryable(tc.err))
		})
	}
}

// =============================================================================
// WAIT TESTS
// =============================================================================

func TestWait_CancelEndsImmediately(t *testing.T) {
	p := DefaultPolicy()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Wait(ctx, 10*time.Second, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWait_ReportsDecreasingRemaining(t *testing.T) {
	p := Policy{PollInterval: 5 * time.Millisecond}
	var reports []time.Duration

	err := p.Wait(context.Background(), 40*time.Millisecond, func(remaining time.Duration) {
		reports = append(reports, remaining)
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(reports), 2)
	assert.Equal(t, 40*time.Millisecond, reports[0])
	for i := 1; i < len(reports); i++ {
		assert.LessOrEqual(t, reports[i], reports[i-1])
	}
}

// =============================================================================
// DO TESTS
// =============================================================================

func TestDo_AuthErrorNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), 3, func(ctx context.Context, attempt int) error {
		calls++
		return statusErr(401)
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindAuth, Classify(err))
}

func TestDo_SucceedsOnLastAttempt(t *testing.T) {
	var mu sync.Mutex
	var seen []int

	calls := 0
	err := fastPolicy().Do(context.Background(), 3, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return io.ErrUnexpectedEOF
		}
		return nil
	}, func(s State) {
		mu.Lock()
		defer mu.Unlock()
		if s.Active() && (len(seen) == 0 || seen[len(seen)-1] != s.Attempt) {
			seen = append(seen, s.Attempt)
		}
		if s.Active() {
			assert.Equal(t, 4, s.MaxAttempts)
		}
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDo_ExhaustedWrapsLastError(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), 2, func(ctx context.Context, attempt int) error {
		calls++
		return statusErr(503)
	}, nil)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, KindServer, Classify(err))
}

func TestDo_CancelDuringWait(t *testing.T) {
	p := Policy{BaseDelay: 5 * time.Second, MaxDelay: 10 * time.Second, PollInterval: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Do(ctx, 3, func(ctx context.Context, attempt int) error {
		calls++
		return io.ErrUnexpectedEOF
	}, func(s State) {
		if s.Active() {
			cancel()
		}
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestState_Progress(t *testing.T) {
	s := State{Attempt: 1, DelayMs: 1000, RemainingMs: 250}
	assert.InDelta(t, 0.75, s.Progress(), 0.0001)
	assert.False(t, State{}.Active())
}

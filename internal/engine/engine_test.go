// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/retry"
	"github.com/jeranaias/gemchat/internal/storage"
)

// =============================================================================
// SCRIPTED TRANSPORT
// =============================================================================

type step func(ctx context.Context, onChunk gemini.ChunkFunc) (string, error)

type fakeTransport struct {
	mu        sync.Mutex
	steps     []step
	calls     int
	histories [][]model.Turn
}

func script(steps ...step) *fakeTransport {
	return &fakeTransport{steps: steps}
}

func (f *fakeTransport) Stream(ctx context.Context, prompt string, history []model.Turn, images []model.InlineImage, onChunk gemini.ChunkFunc) (string, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.histories = append(f.histories, history)
	s := f.steps[len(f.steps)-1]
	if i < len(f.steps) {
		s = f.steps[i]
	}
	f.mu.Unlock()
	return s(ctx, onChunk)
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func reply(chunks ...string) step {
	return func(ctx context.Context, onChunk gemini.ChunkFunc) (string, error) {
		acc := ""
		for _, c := range chunks {
			acc += c
			onChunk(c, acc)
		}
		return acc, nil
	}
}

func fail(err error) step {
	return func(context.Context, gemini.ChunkFunc) (string, error) {
		return "", err
	}
}

// hang optionally sends chunks, signals started, then blocks until ctx is
// cancelled.
func hang(started chan<- struct{}, chunks ...string) step {
	return func(ctx context.Context, onChunk gemini.ChunkFunc) (string, error) {
		acc := ""
		for _, c := range chunks {
			acc += c
			onChunk(c, acc)
		}
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}
}

func netErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func testEngine(t *testing.T, tr Transport, store storage.Store) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.FrameInterval = time.Millisecond
	opts.FirstChunkTimeout = time.Minute
	opts.Policy = retry.Policy{
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
	e := New(tr, store, opts).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(e.Close)
	return e
}

func fileStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func sendAsync(e *Engine, text string) <-chan struct {
	text string
	err  error
} {
	out := make(chan struct {
		text string
		err  error
	}, 1)
	go func() {
		text, err := e.Send(context.Background(), text, nil, 0)
		out <- struct {
			text string
			err  error
		}{text, err}
	}()
	return out
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_Success(t *testing.T) {
	store := fileStore(t)
	e := testEngine(t, script(reply("Hel", "lo ", "world")), store)

	text, err := e.Send(context.Background(), "hi", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)

	st := e.Snapshot()
	require.Len(t, st.Turns, 2)
	assert.Equal(t, model.RoleUser, st.Turns[0].Role)
	assert.Equal(t, "Hello world", st.Turns[1].Text())
	assert.False(t, st.Turns[1].Streaming)
	assert.False(t, st.Sending)
	assert.False(t, st.Typing)
	assert.Empty(t, st.Partial)
	assert.Nil(t, st.Err)

	saved, err := store.Get(st.SessionID)
	require.NoError(t, err)
	assert.Len(t, saved.Turns, 2)
	assert.Equal(t, "hi", saved.Title)
}

func TestSend_RevealsProgressively(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	e := testEngine(t, script(reply(string(long))), nil)

	var mu sync.Mutex
	var lengths []int
	e.OnChange(func(st State) {
		if st.Partial != "" {
			mu.Lock()
			lengths = append(lengths, len(st.Partial))
			mu.Unlock()
		}
	})

	_, err := e.Send(context.Background(), "go", nil, 0)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, lengths)
	assert.Equal(t, 10, lengths[0], "first frame reveals 10 runes when more than 50 remain")
	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1], "reveal went backwards")
	}
	assert.Equal(t, 200, lengths[len(lengths)-1])
}

func TestSend_HistoryExcludesNewUserTurn(t *testing.T) {
	tr := script(reply("one"), reply("two"))
	e := testEngine(t, tr, nil)

	_, err := e.Send(context.Background(), "first", nil, 0)
	require.NoError(t, err)
	_, err = e.Send(context.Background(), "second", nil, 0)
	require.NoError(t, err)

	require.Len(t, tr.histories, 2)
	assert.Empty(t, tr.histories[0])
	require.Len(t, tr.histories[1], 2)
	assert.Equal(t, "first", tr.histories[1][0].Text())
	assert.Equal(t, "one", tr.histories[1][1].Text())
}

func TestSend_EmptyMessage(t *testing.T) {
	e := testEngine(t, script(reply("x")), nil)
	_, err := e.Send(context.Background(), "   ", nil, 0)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

// =============================================================================
// RETRY
// =============================================================================

func TestSend_RetriesTransportErrors(t *testing.T) {
	tr := script(fail(netErr()), fail(netErr()), fail(netErr()), reply("finally"))
	e := testEngine(t, tr, nil)

	var mu sync.Mutex
	seen := map[int]int{}
	e.OnChange(func(st State) {
		if st.Retrying {
			mu.Lock()
			seen[st.Retry.Attempt] = st.Retry.MaxAttempts
			mu.Unlock()
		}
	})

	text, err := e.Send(context.Background(), "hi", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, "finally", text)
	assert.Equal(t, 4, tr.Calls())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[int]int{1: 4, 2: 4, 3: 4}, seen)

	st := e.Snapshot()
	assert.False(t, st.Retrying)
	assert.Len(t, st.Turns, 2)
}

func TestSend_NoRetryOnAuth(t *testing.T) {
	authErr := &gemini.APIError{Status: 401, Message: "API key not valid"}
	tr := script(fail(authErr))
	e := testEngine(t, tr, fileStore(t))

	text, err := e.Send(context.Background(), "hi", nil, 3)
	assert.Empty(t, text)
	assert.ErrorIs(t, err, gemini.ErrAuthFailed)
	assert.Equal(t, 1, tr.Calls())

	st := e.Snapshot()
	assert.Empty(t, st.Turns, "orphan user turn should be rolled back")
	require.Error(t, st.Err)
	assert.Contains(t, st.ErrorMessage(), "Authentication failed")

	e.DismissError()
	assert.Nil(t, e.Snapshot().Err)

	sessions, err := e.Sessions()
	require.NoError(t, err)
	assert.Empty(t, sessions, "failed send must not be saved")
}

func TestSend_ExhaustedRetries(t *testing.T) {
	tr := script(fail(netErr()))
	e := testEngine(t, tr, nil)

	_, err := e.Send(context.Background(), "hi", nil, 2)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, tr.Calls())
	assert.Empty(t, e.Snapshot().Turns)
}

func TestSend_FailureKeepsPartial(t *testing.T) {
	tr := script(func(ctx context.Context, onChunk gemini.ChunkFunc) (string, error) {
		onChunk("half an ", "half an ")
		onChunk("answer", "half an answer")
		return "half an answer", &gemini.StreamError{Partial: "half an answer", Err: io.ErrUnexpectedEOF}
	})
	e := testEngine(t, tr, nil)

	text, err := e.Send(context.Background(), "hi", nil, 0)
	require.Error(t, err)
	assert.Equal(t, "half an answer", text)

	st := e.Snapshot()
	require.Len(t, st.Turns, 2)
	assert.Equal(t, "half an answer", st.Turns[1].Text())
	assert.ErrorIs(t, st.Err, io.ErrUnexpectedEOF, "the failure is shown next to the partial")

	e.DismissError()
	assert.Nil(t, e.Snapshot().Err)
}

func TestSend_AuthFailureAfterPartialSurfacesError(t *testing.T) {
	tr := script(func(ctx context.Context, onChunk gemini.ChunkFunc) (string, error) {
		onChunk("part", "part")
		return "part", &gemini.StreamError{Partial: "part", Err: &gemini.APIError{Status: 403, Message: "forbidden"}}
	})
	e := testEngine(t, tr, nil)

	text, err := e.Send(context.Background(), "hi", nil, 3)
	require.Error(t, err)
	assert.Equal(t, "part", text)
	assert.Equal(t, 1, tr.Calls())

	st := e.Snapshot()
	require.Len(t, st.Turns, 2)
	require.Error(t, st.Err)
	assert.Contains(t, st.ErrorMessage(), "Authentication failed")
}

func TestSend_ExhaustedRetriesKeepEarlierPartial(t *testing.T) {
	tr := script(
		func(ctx context.Context, onChunk gemini.ChunkFunc) (string, error) {
			onChunk("Hello wor", "Hello wor")
			return "Hello wor", &gemini.StreamError{Partial: "Hello wor", Err: io.ErrUnexpectedEOF}
		},
		fail(netErr()),
	)
	e := testEngine(t, tr, fileStore(t))

	text, err := e.Send(context.Background(), "hi", nil, 1)
	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "Hello wor", text)
	assert.Equal(t, 2, tr.Calls())

	st := e.Snapshot()
	require.Len(t, st.Turns, 2)
	assert.Equal(t, "hi", st.Turns[0].Text())
	assert.Equal(t, "Hello wor", st.Turns[1].Text())
	assert.NotNil(t, st.Err)

	sessions, err := e.Sessions()
	require.NoError(t, err)
	assert.Len(t, sessions, 1, "the partial exchange is saved")
}

func TestSend_PartialOnlyInStreamError(t *testing.T) {
	tr := script(
		func(context.Context, gemini.ChunkFunc) (string, error) {
			return "", &gemini.StreamError{Partial: "unseen", Err: io.ErrUnexpectedEOF}
		},
		fail(netErr()),
	)
	e := testEngine(t, tr, nil)

	text, err := e.Send(context.Background(), "hi", nil, 1)
	require.Error(t, err)
	assert.Equal(t, "unseen", text)
	assert.Len(t, e.Snapshot().Turns, 2)
}

func TestSend_RetryReplacesEarlierPartial(t *testing.T) {
	tr := script(
		func(ctx context.Context, onChunk gemini.ChunkFunc) (string, error) {
			onChunk("draft", "draft")
			return "draft", &gemini.StreamError{Partial: "draft", Err: io.ErrUnexpectedEOF}
		},
		reply("final ", "answer"),
	)
	e := testEngine(t, tr, nil)

	text, err := e.Send(context.Background(), "hi", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "final answer", text)

	st := e.Snapshot()
	require.Len(t, st.Turns, 2)
	assert.Equal(t, "final answer", st.Turns[1].Text())
	assert.Nil(t, st.Err)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestStop_CommitsPartial(t *testing.T) {
	store := fileStore(t)
	started := make(chan struct{})
	e := testEngine(t, script(hang(started, "partial ", "reply")), store)

	result := sendAsync(e, "hi")
	<-started
	e.Stop()
	res := <-result

	require.NoError(t, res.err)
	assert.Equal(t, "partial reply", res.text)

	st := e.Snapshot()
	require.Len(t, st.Turns, 2)
	assert.Equal(t, "partial reply", st.Turns[1].Text())
	assert.False(t, st.Turns[1].Streaming)
	assert.False(t, st.Sending)

	saved, err := store.Get(st.SessionID)
	require.NoError(t, err)
	assert.Len(t, saved.Turns, 2)
}

func TestStop_EmptyBufferCommitsNothing(t *testing.T) {
	store := fileStore(t)
	started := make(chan struct{})
	tr := script(hang(started), reply("second try"))
	e := testEngine(t, tr, store)

	result := sendAsync(e, "hi")
	<-started
	e.Stop()
	res := <-result

	assert.Empty(t, res.text)
	assert.ErrorIs(t, res.err, context.Canceled)

	st := e.Snapshot()
	require.Len(t, st.Turns, 1, "user turn is kept, no model turn")
	assert.Nil(t, st.Err)

	// Resending the same text does not duplicate the user turn.
	_, err := e.Send(context.Background(), "hi", nil, 0)
	require.NoError(t, err)
	st = e.Snapshot()
	require.Len(t, st.Turns, 2)
	assert.Equal(t, "second try", st.Turns[1].Text())
}

func TestStop_DuringBackoff(t *testing.T) {
	tr := script(fail(netErr()))
	e := testEngine(t, tr, nil)
	e.opts.Policy.BaseDelay = time.Hour
	e.opts.Policy.MaxDelay = time.Hour

	retrying := make(chan struct{})
	var once sync.Once
	e.OnChange(func(st State) {
		if st.Retrying {
			once.Do(func() { close(retrying) })
		}
	})

	result := sendAsync(e, "hi")
	<-retrying
	e.Stop()

	select {
	case res := <-result:
		assert.ErrorIs(t, res.err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not interrupt the backoff wait")
	}
	assert.Equal(t, 1, tr.Calls())
	assert.False(t, e.Snapshot().Retrying)
}

func TestStop_Idle(t *testing.T) {
	e := testEngine(t, script(reply("x")), nil)
	e.Stop()
	assert.False(t, e.Busy())
}

func TestSend_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	e := testEngine(t, script(hang(started)), nil)

	result := sendAsync(e, "first")
	<-started

	_, err := e.Send(context.Background(), "second", nil, 0)
	assert.ErrorIs(t, err, ErrSendInFlight)

	e.Stop()
	<-result
	assert.False(t, e.Busy())
}

// =============================================================================
// CONNECTIVITY WARNING
// =============================================================================

func TestConnectivityWarning_NoFirstChunk(t *testing.T) {
	e := testEngine(t, script(func(ctx context.Context, onChunk gemini.ChunkFunc) (string, error) {
		time.Sleep(60 * time.Millisecond)
		onChunk("late", "late")
		return "late", nil
	}), nil)
	e.opts.FirstChunkTimeout = 10 * time.Millisecond
	e.opts.WarningTTL = 50 * time.Millisecond

	var raised atomic.Bool
	e.OnChange(func(st State) {
		if st.ConnectivityWarning {
			raised.Store(true)
		}
	})

	text, err := e.Send(context.Background(), "hi", nil, 0)
	require.NoError(t, err, "the warning must not abort the attempt")
	assert.Equal(t, "late", text)
	assert.True(t, raised.Load())

	assert.Eventually(t, func() bool { return !e.Snapshot().ConnectivityWarning },
		2*time.Second, 10*time.Millisecond)
}

func TestConnectivityWarning_TransportError(t *testing.T) {
	e := testEngine(t, script(fail(netErr()), reply("ok")), nil)
	e.opts.WarningTTL = time.Minute

	_, err := e.Send(context.Background(), "hi", nil, 1)
	require.NoError(t, err)
	assert.True(t, e.Snapshot().ConnectivityWarning)
}

func TestOnChange_DeliversInVersionOrder(t *testing.T) {
	e := testEngine(t, script(reply("a reply in ", "a few ", "chunks")), nil)
	e.opts.WarningTTL = time.Millisecond

	var mu sync.Mutex
	var seen []State
	e.OnChange(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				e.raiseWarning()
				e.DismissError()
			}
		}()
	}
	_, err := e.Send(context.Background(), "hi", nil, 0)
	require.NoError(t, err)
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		last := seen[len(seen)-1]
		return !last.Sending && !last.ConnectivityWarning
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		require.Greater(t, seen[i].Version, seen[i-1].Version, "delivery %d out of order", i)
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSessions_NewOpenDelete(t *testing.T) {
	store := fileStore(t)
	e := testEngine(t, script(reply("a1"), reply("b1")), store)

	_, err := e.Send(context.Background(), "chat A", nil, 0)
	require.NoError(t, err)
	first := e.Snapshot().SessionID

	e.NewChat()
	assert.Empty(t, e.Snapshot().Turns)
	assert.NotEqual(t, first, e.Snapshot().SessionID)

	_, err = e.Send(context.Background(), "chat B", nil, 0)
	require.NoError(t, err)
	second := e.Snapshot().SessionID

	metas, err := e.Sessions()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, second, metas[0].ID)
	assert.Equal(t, second, e.ActiveSessionID())

	require.NoError(t, e.OpenSession(first[:8]))
	st := e.Snapshot()
	assert.Equal(t, first, st.SessionID)
	require.Len(t, st.Turns, 2)
	assert.Equal(t, "a1", st.Turns[1].Text())
	assert.Equal(t, first, e.ActiveSessionID())

	require.NoError(t, e.DeleteSession(first))
	assert.NotEqual(t, first, e.Snapshot().SessionID, "deleting the open session starts a new chat")
	assert.Empty(t, e.ActiveSessionID())

	assert.ErrorIs(t, e.OpenSession("does-not-exist"), storage.ErrSessionNotFound)
}

func TestSessions_Resume(t *testing.T) {
	store := fileStore(t)
	e := testEngine(t, script(reply("answer")), store)
	_, err := e.Send(context.Background(), "remember me", nil, 0)
	require.NoError(t, err)
	id := e.Snapshot().SessionID

	e2 := testEngine(t, script(reply("x")), store)
	ok, err := e2.Resume()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, e2.Snapshot().SessionID)
	assert.Equal(t, "remember me", e2.Snapshot().Title)
}

func TestSessions_NoStore(t *testing.T) {
	e := testEngine(t, script(reply("x")), nil)
	_, err := e.Sessions()
	assert.ErrorIs(t, err, ErrNoStore)
	ok, err := e.Resume()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Contains(t, UserMessage(gemini.ErrNotConfigured), "GEMINI_API_KEY")
	assert.Contains(t, UserMessage(&gemini.APIError{Status: 429}), "Rate limited")
	assert.Contains(t, UserMessage(&gemini.APIError{Status: 503}), "server error")
	assert.Contains(t, UserMessage(netErr()), "Network error")
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
}

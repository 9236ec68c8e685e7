// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/retry"
	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/stream"
)

// Transport streams one model reply. *gemini.Client implements it.
type Transport interface {
	Stream(ctx context.Context, prompt string, history []model.Turn, images []model.InlineImage, onChunk gemini.ChunkFunc) (string, error)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine coordinates sending messages: it owns the conversation, runs the
// retry loop around the transport, paces the reveal of the reply and saves
// the session when a send ends.
//
// All methods are safe for concurrent use. At most one Send runs at a time.
type Engine struct {
	transport Transport
	store     storage.Store // nil disables persistence
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	conv     *model.Conversation
	inflight *stream.Session
	partial  string
	typing   bool
	retrying bool
	retryAt  retry.State
	warning  bool
	warnGen  uint64
	lastErr  error
	version  uint64

	// notifyMu orders deliveries: a later snapshot is never delivered
	// before an earlier one.
	notifyMu   sync.Mutex
	listenerMu sync.Mutex
	listeners  map[int]func(State)
	nextID     int

	sends sync.WaitGroup
}

// New creates an engine. store may be nil.
func New(transport Transport, store storage.Store, opts Options) *Engine {
	opts = opts.withDefaults()
	logger := opts.Policy.Logger
	if logger == nil {
		logger = slog.Default()
		opts.Policy.Logger = logger
	}
	return &Engine{
		transport: transport,
		store:     store,
		opts:      opts,
		logger:    logger,
		conv:      model.NewConversation(),
		listeners: make(map[int]func(State)),
	}
}

// WithLogger sets the logger used by the engine and its retry loop.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	if l != nil {
		e.logger = l
		e.opts.Policy.Logger = l
	}
	return e
}

// Model returns the model recorded on saved sessions.
func (e *Engine) Model() string {
	return e.opts.Model
}

// MaxRetries returns the configured retry count.
func (e *Engine) MaxRetries() int {
	return e.opts.MaxRetries
}

// =============================================================================
// OBSERVATION
// =============================================================================

// Snapshot returns the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() State {
	e.version++
	return State{
		Version:             e.version,
		SessionID:           e.conv.ID,
		Title:               e.conv.Title(),
		Model:               e.opts.Model,
		Turns:               e.conv.Snapshot(),
		Partial:             e.partial,
		Sending:             e.inflight != nil,
		Typing:              e.typing,
		Retrying:            e.retrying,
		Retry:               e.retryAt,
		ConnectivityWarning: e.warning,
		Err:                 e.lastErr,
	}
}

// OnChange registers fn to receive a snapshot after every state change. fn
// runs on the goroutine that made the change and must not block or call back
// into methods that change engine state. Snapshots arrive in Version order.
// The returned func unregisters it.
func (e *Engine) OnChange(fn func(State)) func() {
	e.listenerMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.listenerMu.Unlock()

	return func() {
		e.listenerMu.Lock()
		delete(e.listeners, id)
		e.listenerMu.Unlock()
	}
}

func (e *Engine) notify() {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.listenerMu.Lock()
	fns := make([]func(State), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenerMu.Unlock()
	if len(fns) == 0 {
		return
	}

	st := e.Snapshot()
	for _, fn := range fns {
		fn(st)
	}
}

// update runs fn under the state lock and then notifies listeners.
func (e *Engine) update(fn func()) {
	e.mu.Lock()
	fn()
	e.mu.Unlock()
	e.notify()
}

// =============================================================================
// SEND
// =============================================================================

// Send appends a user turn and streams the reply, retrying retryable
// failures up to maxRetries times (a negative count selects the configured
// default). It returns the committed reply text.
//
//   - Success: the reply is fully revealed, committed and saved.
//   - Cancelled (Stop or ctx): received text, if any, is committed as a
//     complete turn and returned with a nil error. With nothing received the
//     error wraps context.Canceled. The session is saved either way.
//   - Failed with partial text: the partial is committed and returned
//     together with the error. Text from an earlier attempt counts when
//     later retries failed before sending anything.
//   - Failed with nothing received: the user turn is rolled back.
//
// A failure's error is kept on State.Err until DismissError.
func (e *Engine) Send(ctx context.Context, text string, images []model.InlineImage, maxRetries int) (string, error) {
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return "", ErrEmptyMessage
	}
	if maxRetries < 0 {
		maxRetries = e.opts.MaxRetries
	}

	e.mu.Lock()
	if e.inflight != nil {
		e.mu.Unlock()
		return "", ErrSendInFlight
	}
	conv := e.conv
	conv.AddUser(text, images)
	history := conv.History()
	sess := stream.NewSession(ctx)
	e.inflight = sess
	e.partial = ""
	e.typing = true
	e.lastErr = nil
	e.sends.Add(1)
	e.mu.Unlock()
	e.notify()

	defer e.sends.Done()
	defer sess.Close()

	renderer := stream.NewRenderer(sess.Buffer, e.opts.FrameInterval, e.painter(sess, conv)).
		WithTicker(e.opts.Ticker)

	e.logger.Info("send started",
		"session", conv.ID,
		"stream", sess.ID,
		"history", len(history),
		"images", len(images),
		"max_retries", maxRetries)

	var final string
	err := e.opts.Policy.Do(sess.Context(), maxRetries, func(ctx context.Context, attempt int) error {
		reply, err := e.attempt(ctx, sess, renderer, attempt, text, history, images)
		if err == nil {
			final = reply
		}
		return err
	}, func(st retry.State) {
		sess.SetBackoff(time.Duration(st.DelayMs) * time.Millisecond)
		e.update(func() {
			if e.inflight != sess {
				return
			}
			e.retrying = st.Active()
			e.retryAt = st
		})
	})

	if err == nil {
		sess.Buffer.End()
		renderer.Wait()
		return e.finish(sess, conv, final, nil, true)
	}

	// Halt the reveal before touching the committed state.
	renderer.Stop()

	received := sess.Buffer.Text()
	var streamErr *gemini.StreamError
	if strings.TrimSpace(received) == "" && errors.As(err, &streamErr) {
		received = streamErr.Partial
	}

	if retry.IsCancellation(err) || sess.Cancelled() {
		e.logger.Info("send cancelled", "session", conv.ID, "received", len(received))
		if strings.TrimSpace(received) == "" {
			e.finish(sess, conv, "", nil, true)
			return "", err
		}
		return e.finish(sess, conv, received, nil, true)
	}

	e.logger.Error("send failed",
		"session", conv.ID,
		"kind", retry.Classify(err).String(),
		"received", len(received),
		"error", err)

	if strings.TrimSpace(received) != "" {
		return e.finish(sess, conv, received, err, true)
	}
	return e.finish(sess, conv, "", err, false)
}

// attempt runs one transport call.
func (e *Engine) attempt(ctx context.Context, sess *stream.Session, renderer *stream.Renderer,
	n int, text string, history []model.Turn, images []model.InlineImage) (string, error) {

	sess.BeginAttempt(n)
	renderer.Start()

	var gotData atomic.Bool
	timer := time.AfterFunc(e.opts.FirstChunkTimeout, func() {
		if !gotData.Load() && !sess.Cancelled() {
			e.logger.Warn("no data from model yet",
				"attempt", n,
				"waited", e.opts.FirstChunkTimeout)
			e.raiseWarning()
		}
	})
	defer timer.Stop()

	final, err := e.transport.Stream(ctx, text, history, images, func(chunk, accumulated string) {
		gotData.Store(true)
		sess.Buffer.OnChunk(chunk, accumulated)
	})
	if err != nil {
		var streamErr *gemini.StreamError
		if errors.As(err, &streamErr) && streamErr.Partial != "" {
			gotData.Store(true)
			sess.Buffer.OnChunk("", streamErr.Partial)
		}
		if !gotData.Load() {
			switch retry.Classify(err) {
			case retry.KindTransport, retry.KindTimeout:
				e.raiseWarning()
			}
		}
		return "", err
	}

	// The returned text is authoritative; make sure the buffer holds all of it.
	sess.Buffer.OnChunk("", final)
	return final, nil
}

// finish commits the outcome and releases the single-flight slot.
// keepUser=false rolls back the trailing user turn.
func (e *Engine) finish(sess *stream.Session, conv *model.Conversation, reply string, sendErr error, keepUser bool) (string, error) {
	e.mu.Lock()
	if reply != "" {
		conv.AddModel(reply)
	}
	if !keepUser {
		conv.RemoveLastUser()
	}
	if e.inflight == sess {
		e.inflight = nil
		e.partial = ""
		e.typing = false
		e.retrying = false
		e.retryAt = retry.State{}
		if sendErr != nil && e.conv == conv {
			e.lastErr = sendErr
		}
	}
	save := keepUser && !conv.IsEmpty()
	var snapshot *storage.Session
	if save {
		snapshot = storage.FromConversation(conv, e.opts.Model)
	}
	e.mu.Unlock()

	if snapshot != nil {
		e.persist(snapshot)
	}
	e.notify()
	return reply, sendErr
}

// painter returns the renderer callback for sess.
func (e *Engine) painter(sess *stream.Session, conv *model.Conversation) stream.PaintFunc {
	return func(visible string, typing bool) {
		e.update(func() {
			if e.inflight != sess || e.conv != conv {
				return
			}
			e.partial = visible
			e.typing = typing
		})
	}
}

// =============================================================================
// STOP AND WARNINGS
// =============================================================================

// Stop cancels the active send. It does not wait for it to unwind and is
// safe to call when idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	sess := e.inflight
	e.mu.Unlock()
	if sess != nil {
		sess.Cancel()
	}
}

// Busy reports whether a send is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inflight != nil
}

// Close cancels any active send and waits for it to finish.
func (e *Engine) Close() {
	e.Stop()
	e.sends.Wait()
}

// DismissError clears State.Err.
func (e *Engine) DismissError() {
	e.update(func() { e.lastErr = nil })
}

// raiseWarning shows the connectivity warning for WarningTTL. A later raise
// restarts the countdown.
func (e *Engine) raiseWarning() {
	var gen uint64
	e.update(func() {
		e.warning = true
		e.warnGen++
		gen = e.warnGen
	})
	time.AfterFunc(e.opts.WarningTTL, func() {
		e.mu.Lock()
		expired := e.warnGen == gen && e.warning
		if expired {
			e.warning = false
		}
		e.mu.Unlock()
		if expired {
			e.notify()
		}
	})
}

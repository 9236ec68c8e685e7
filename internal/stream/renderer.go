// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"sync"
	"time"
)

// DefaultFrameInterval is roughly one frame at 60fps.
const DefaultFrameInterval = 16 * time.Millisecond

// PaintFunc receives the visible text after each frame that changed it, and
// once more with typing=false when the loop finishes on its own.
type PaintFunc func(visible string, typing bool)

// =============================================================================
// RENDERER
// =============================================================================

// Renderer drains a Buffer onto the screen at a fixed cadence.
//
// At most one loop runs at a time. Start while running is a no-op. Stop
// returns only after the loop goroutine has exited, so no paint can land
// after it.
//
// PaintFunc runs on the loop goroutine and must not call Stop.
type Renderer struct {
	buf       *Buffer
	interval  time.Duration
	newTicker TickerFunc
	paint     PaintFunc

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRenderer creates a renderer for buf. A non-positive interval selects
// DefaultFrameInterval.
func NewRenderer(buf *Buffer, interval time.Duration, paint PaintFunc) *Renderer {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	if paint == nil {
		paint = func(string, bool) {}
	}
	return &Renderer{
		buf:       buf,
		interval:  interval,
		newTicker: NewTimeTicker,
		paint:     paint,
	}
}

// WithTicker replaces the frame source. Tests use it to drive frames by hand.
func (r *Renderer) WithTicker(fn TickerFunc) *Renderer {
	r.newTicker = fn
	return r
}

// Start launches the loop. It reports whether a new loop was started.
func (r *Renderer) Start() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return false
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	go r.loop(r.newTicker(r.interval), r.stop, r.done)
	return true
}

// Running reports whether the loop is active.
func (r *Renderer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stop halts the loop and waits for it to exit. Safe to call when idle.
func (r *Renderer) Stop() {
	r.mu.Lock()
	if !r.running {
		done := r.done
		r.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	<-done
}

// Wait blocks until the loop finishes on its own or is stopped.
func (r *Renderer) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Done returns a channel closed when the current loop exits. Nil if the
// renderer was never started.
func (r *Renderer) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Renderer) loop(t Ticker, stop, done chan struct{}) {
	defer close(done)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C():
		}

		// Stop may have raced the tick.
		select {
		case <-stop:
			return
		default:
		}

		visible, advanced, finished := r.buf.Step()
		if finished {
			r.mu.Lock()
			if r.stop == stop {
				r.running = false
			}
			r.mu.Unlock()
			r.paint(visible, false)
			return
		}
		if advanced {
			r.paint(visible, true)
		}
	}
}

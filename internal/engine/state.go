// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"errors"
	"time"

	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/retry"
	"github.com/jeranaias/gemchat/internal/stream"
)

// =============================================================================
// OBSERVABLE STATE
// =============================================================================

// State is what a UI renders. Snapshots are copies; mutating one has no
// effect on the engine.
type State struct {
	// Version increases with every snapshot. A consumer holding a newer
	// snapshot can drop an older one.
	Version uint64

	SessionID string
	Title     string
	Model     string

	// Turns are the committed turns. The in-flight reply is not among them.
	Turns []model.Turn

	// Partial is the revealed part of the in-flight reply.
	Partial string

	// Sending is true from the start of a send until it has fully unwound.
	Sending bool

	// Typing is true while the reveal animation is running.
	Typing bool

	// Retrying is true while waiting out a backoff delay.
	Retrying bool
	Retry    retry.State

	// ConnectivityWarning is a transient, non-fatal hint that the network
	// looks slow or down. It clears itself.
	ConnectivityWarning bool

	// Err is the last terminal error, kept until DismissError.
	Err error
}

// ErrorMessage returns a user-facing description of Err, or "".
func (s State) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return UserMessage(s.Err)
}

// =============================================================================
// OPTIONS
// =============================================================================

// Default timings.
const (
	DefaultFirstChunkTimeout = 15 * time.Second
	DefaultWarningTTL        = 10 * time.Second
)

// Options configures an Engine. Zero durations select the defaults; start
// from DefaultOptions to keep the default retry count.
type Options struct {
	// MaxRetries is used when Send is called with a negative count.
	MaxRetries int

	// FirstChunkTimeout raises the connectivity warning when an attempt
	// has received nothing for this long. The attempt keeps going.
	FirstChunkTimeout time.Duration

	// WarningTTL is how long the connectivity warning stays up.
	WarningTTL time.Duration

	// FrameInterval is the reveal cadence.
	FrameInterval time.Duration

	// Policy is the backoff schedule.
	Policy retry.Policy

	// Model is recorded on saved sessions.
	Model string

	// Ticker replaces the frame clock. Tests use it to step frames.
	Ticker stream.TickerFunc
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		MaxRetries:        retry.DefaultMaxRetries,
		FirstChunkTimeout: DefaultFirstChunkTimeout,
		WarningTTL:        DefaultWarningTTL,
		FrameInterval:     stream.DefaultFrameInterval,
		Policy:            retry.DefaultPolicy(),
		Model:             model.DefaultModel,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.FirstChunkTimeout <= 0 {
		o.FirstChunkTimeout = d.FirstChunkTimeout
	}
	if o.WarningTTL <= 0 {
		o.WarningTTL = d.WarningTTL
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = d.FrameInterval
	}
	if o.Policy.BaseDelay <= 0 {
		o.Policy.BaseDelay = d.Policy.BaseDelay
	}
	if o.Policy.MaxDelay <= 0 {
		o.Policy.MaxDelay = d.Policy.MaxDelay
	}
	if o.Policy.PollInterval <= 0 {
		o.Policy.PollInterval = d.Policy.PollInterval
	}
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.Ticker == nil {
		o.Ticker = stream.NewTimeTicker
	}
	return o
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSendInFlight is returned when Send is called while another send is
	// still running.
	ErrSendInFlight = errors.New("a message is already being sent")

	// ErrEmptyMessage is returned for a send with no text and no images.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoStore is returned by session operations when persistence is off.
	ErrNoStore = errors.New("session storage is disabled")
)

// UserMessage turns err into a short sentence for the status line.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, gemini.ErrNotConfigured) {
		return "Gemini API key not configured. Set GEMINI_API_KEY or run 'gemchat config init'."
	}
	if errors.Is(err, gemini.ErrBlocked) {
		return "The prompt was blocked by safety filters."
	}

	switch retry.Classify(err) {
	case retry.KindCancellation:
		return "Cancelled."
	case retry.KindAuth:
		return "Authentication failed. Check your Gemini API key."
	case retry.KindRateLimit:
		return "Rate limited by the API. Wait a moment and try again."
	case retry.KindServer:
		return "Gemini server error. Try again later."
	case retry.KindTransport:
		return "Network error. Check your connection and try again."
	case retry.KindTimeout:
		return "The request timed out. Try again."
	}
	return err.Error()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/gemchat/internal/engine"
)

// =============================================================================
// ENGINE BRIDGE
// =============================================================================

// bridge carries engine snapshots and store changes into the program.
// Producers never block: the state slot keeps only the newest snapshot and
// the sessions slot is a flag.
type bridge struct {
	mu       sync.Mutex
	closed   bool
	version  uint64
	states   chan engine.State
	sessions chan struct{}

	unsubscribe func()
}

func newBridge(eng *engine.Engine) *bridge {
	b := &bridge{
		states:   make(chan engine.State, 1),
		sessions: make(chan struct{}, 1),
	}
	if eng != nil {
		b.unsubscribe = eng.OnChange(b.pushState)
	}
	return b
}

// pushState replaces any undelivered snapshot with st. A snapshot older
// than one already pushed is dropped.
func (b *bridge) pushState(st engine.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || st.Version < b.version {
		return
	}
	b.version = st.Version
	select {
	case <-b.states:
	default:
	}
	// Only producers write and they hold mu, so the slot is free.
	b.states <- st
}

// pushSessions flags that the saved session list changed.
func (b *bridge) pushSessions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.sessions <- struct{}{}:
	default:
	}
}

// waitState returns a command that delivers the next snapshot.
func (b *bridge) waitState() tea.Cmd {
	return func() tea.Msg {
		st, ok := <-b.states
		if !ok {
			return nil
		}
		return StateMsg{State: st}
	}
}

// waitSessions returns a command that delivers the next store change.
func (b *bridge) waitSessions() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-b.sessions; !ok {
			return nil
		}
		return SessionsChangedMsg{}
	}
}

// close unsubscribes from the engine and releases waiting commands.
func (b *bridge) close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.states)
	close(b.sessions)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/gemchat/internal/commands"
	"github.com/jeranaias/gemchat/internal/engine"
	"github.com/jeranaias/gemchat/internal/retry"
)

// =============================================================================
// RESIZE
// =============================================================================

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)
	m.ready = true

	m.input.SetWidth(max(10, msg.Width-4))
	m.retryBar.Width = max(10, msg.Width/3)
	m.help.Width = msg.Width

	m.layout()
	m.refreshContent(true)
	return m, nil
}

// layout sizes the viewport to what the surrounding chrome leaves.
func (m *Model) layout() {
	if !m.ready {
		return
	}
	used := height(m.renderTop()) + height(m.renderBottom())
	m.viewport.Width = m.width
	m.viewport.Height = max(1, m.height-used)
}

// refreshContent re-renders the conversation. The view follows the bottom
// unless the user scrolled up.
func (m *Model) refreshContent(forceBottom bool) {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderConversation())
	if atBottom || forceBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// ENGINE STATE
// =============================================================================

func (m Model) handleState(st engine.State) (tea.Model, tea.Cmd) {
	wasSending := m.state.Sending
	switched := st.SessionID != m.state.SessionID
	m.state = st

	var cmds []tea.Cmd
	if m.bridge != nil {
		cmds = append(cmds, m.bridge.waitState())
	}
	if st.Sending && !wasSending {
		cmds = append(cmds, m.spinner.Tick)
	}
	if wasSending && !st.Sending {
		cmds = append(cmds, m.loadSessions())
	}

	m.layout()
	m.refreshContent(switched)
	return m, tea.Batch(cmds...)
}

func (m Model) handleSendDone(msg SendDoneMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Err == nil:
		return m, nil

	case errors.Is(msg.Err, engine.ErrSendInFlight):
		m.pending.Restore(msg.Images)
		m.restoreInput(msg.Text)
		m.setNotice("Still replying. Press Esc to stop it first.", true)

	case errors.Is(msg.Err, engine.ErrEmptyMessage):
		m.pending.Restore(msg.Images)

	case retry.IsCancellation(msg.Err):
		// The user turn stays in the conversation.

	case msg.Reply == "":
		// The engine rolled the user turn back; offer it again.
		m.pending.Restore(msg.Images)
		m.restoreInput(msg.Text)
	}

	m.layout()
	return m, nil
}

func (m *Model) restoreInput(text string) {
	if m.input.Value() == "" {
		m.input.SetValue(text)
	}
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if m.engine != nil {
			m.engine.Stop()
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Stop):
		return m.handleEscape()

	case key.Matches(msg, m.keys.Complete):
		return m.complete(false)

	case key.Matches(msg, m.keys.CompletePrev):
		return m.complete(true)

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		return m.runCommand("/new")

	case key.Matches(msg, m.keys.Send):
		return m.submit()
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.input.Value() != before {
		m.suggest()
	}
	return m, cmd
}

// handleEscape closes suggestions, stops a reply, dismisses the error or
// clears the notice, in that order.
func (m Model) handleEscape() (tea.Model, tea.Cmd) {
	switch {
	case m.completion.Active():
		m.completion.Clear()
	case m.state.Sending:
		m.engine.Stop()
		return m, nil
	case m.state.Err != nil:
		m.engine.DismissError()
		return m, nil
	case m.notice != "":
		m.notice = ""
		m.refreshContent(false)
	}
	m.layout()
	return m, nil
}

// =============================================================================
// SUBMIT
// =============================================================================

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" && m.pending.Len() == 0 {
		return m, nil
	}
	m.completion.Clear()

	if commands.IsCommand(text) {
		m.input.Reset()
		return m.runCommand(text)
	}

	if m.state.Sending {
		m.setNotice("Still replying. Press Esc to stop it first.", true)
		return m, nil
	}

	images := m.pending.Take()
	m.input.Reset()
	m.notice = ""
	m.layout()

	eng, ctx := m.engine, m.ctx
	return m, func() tea.Msg {
		reply, err := eng.Send(ctx, text, images, -1)
		return SendDoneMsg{Text: text, Reply: reply, Err: err, Images: images}
	}
}

// runCommand executes a slash command and shows its output.
func (m Model) runCommand(input string) (tea.Model, tea.Cmd) {
	res, _, err := m.registry.Execute(m.cmdCtx, input)
	if err != nil {
		m.logger.Debug("command failed", "input", input, "error", err)
		m.setNotice(err.Error(), true)
		return m, nil
	}
	if res.Quit {
		m.quitting = true
		return m, tea.Quit
	}

	m.setNotice(res.Output, false)
	if res.Refresh {
		m.state = m.engine.Snapshot()
		m.layout()
		m.refreshContent(true)
	}
	return m, m.loadSessions()
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeErr = isErr
	m.layout()
	m.refreshContent(true)
}

// =============================================================================
// COMPLETION
// =============================================================================

// suggest refreshes the suggestion list after an edit.
func (m *Model) suggest() {
	value := m.input.Value()
	m.completionApplied = false
	if !commands.IsCommand(value) || strings.Contains(value, "\n") {
		m.completion.Clear()
		m.layout()
		return
	}
	m.completion.Update(value, m.completer.Complete(value))
	m.layout()
}

// complete applies the selected suggestion, or moves to the next one when
// a suggestion was already applied.
func (m Model) complete(reverse bool) (tea.Model, tea.Cmd) {
	if !m.completion.Active() {
		m.suggest()
		if !m.completion.Active() {
			return m, nil
		}
	} else if m.completionApplied {
		if reverse {
			m.completion.Prev()
		} else {
			m.completion.Next()
		}
	}

	sel := m.completion.GetSelected()
	if sel == nil {
		return m, nil
	}
	value := applyCompletion(m.completion.OriginalInput, sel.Value)

	if len(m.completion.Completions) == 1 {
		if !strings.HasSuffix(value, "/") {
			value += " "
		}
		m.completion.Clear()
		m.input.SetValue(value)
		m.input.CursorEnd()
		m.suggest()
		return m, nil
	}

	m.input.SetValue(value)
	m.input.CursorEnd()
	m.completionApplied = true
	m.layout()
	return m, nil
}

// applyCompletion replaces the last token of input with value.
func applyCompletion(input, value string) string {
	if strings.HasSuffix(input, " ") {
		return input + value
	}
	if i := strings.LastIndex(input, " "); i >= 0 {
		return input[:i+1] + value
	}
	return value
}

// =============================================================================
// COMMANDS
// =============================================================================

func (m Model) loadSessions() tea.Cmd {
	eng := m.engine
	if eng == nil {
		return nil
	}
	return func() tea.Msg {
		metas, err := eng.Sessions()
		return SessionsLoadedMsg{Sessions: metas, Err: err}
	}
}

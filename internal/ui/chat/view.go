// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/ui/styles"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

// renderTop renders everything above the conversation.
func (m Model) renderTop() string {
	return stack(m.renderHeader(), m.renderWarning())
}

// renderBottom renders everything below the conversation.
func (m Model) renderBottom() string {
	return stack(
		m.renderRetry(),
		m.renderError(),
		m.renderAttachments(),
		m.renderCompletions(),
		m.renderInput(),
		m.renderStatusBar(),
	)
}

// stack joins the non-empty parts vertically.
func stack(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}

// height is lipgloss.Height, except that nothing takes no lines.
func height(s string) int {
	if s == "" {
		return 0
	}
	return lipgloss.Height(s)
}

func (m Model) contentWidth() int {
	return max(20, m.width-2)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.state.Title
	if title == "" {
		title = model.DefaultTitle
	}

	left := m.theme.HeaderBrand.Render("gemchat") + "  " +
		m.theme.HeaderTitle.Render(util.TruncateWidth(util.SingleLine(title), max(10, m.width/2)))
	right := m.theme.HeaderModel.Render(m.state.Model)

	gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return m.theme.Header.Width(m.width).Render(left)
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

// renderWarning renders the connectivity banner while it is raised.
func (m Model) renderWarning() string {
	if !m.state.ConnectivityWarning {
		return ""
	}
	return m.theme.WarningBar.Width(m.width).Render(
		styles.StatusIndicators.Warning + " Connection looks slow. Still waiting for a reply...")
}

// =============================================================================
// STATUS LINES
// =============================================================================

// renderRetry renders the backoff countdown and its progress.
func (m Model) renderRetry() string {
	st := m.state
	if !st.Retrying || !st.Retry.Active() {
		return ""
	}
	remaining := time.Duration(st.Retry.RemainingMs) * time.Millisecond
	text := fmt.Sprintf("%s Retry %d/%d in %s ",
		styles.StatusIndicators.Retry,
		st.Retry.Attempt,
		st.Retry.MaxAttempts-1,
		formatRemaining(remaining))
	return " " + m.theme.RetryText.Render(text) + m.retryBar.ViewAs(st.Retry.Progress())
}

func (m Model) renderError() string {
	if m.state.Err == nil || m.state.Sending {
		return ""
	}
	return m.theme.ErrorBar.Width(m.width).Render(
		styles.StatusIndicators.Error + " " + m.state.ErrorMessage() + "  (Esc to dismiss)")
}

func (m Model) renderAttachments() string {
	names := m.pending.Names()
	if len(names) == 0 {
		return ""
	}
	return " " + m.theme.Attachments.Render(
		util.TruncateWidth("Attached: "+strings.Join(names, ", "), max(10, m.width-2)))
}

// renderCompletions renders a window of suggestions around the selection.
func (m Model) renderCompletions() string {
	if !m.completion.Active() {
		return ""
	}
	comps := m.completion.Completions
	start := 0
	if m.completion.Selected >= maxCompletionRows {
		start = m.completion.Selected - maxCompletionRows + 1
	}
	end := min(len(comps), start+maxCompletionRows)

	rows := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		c := comps[i]
		line := c.Display
		if c.Description != "" {
			line += "  " + m.theme.SessionMeta.Render(util.TruncateWidth(util.SingleLine(c.Description), 40))
		}
		if m.completionApplied && i == m.completion.Selected {
			rows = append(rows, m.theme.SessionItemSelected.Render(line))
		} else {
			rows = append(rows, m.theme.SessionItem.Render(line))
		}
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderInput() string {
	return m.theme.InputContainer.Width(max(10, m.width-2)).Render(m.input.View())
}

// renderStatusBar shows activity on the left and key help on the right.
func (m Model) renderStatusBar() string {
	st := m.state

	left := ""
	switch {
	case st.Retrying:
		left = m.theme.RetryText.Render("Retrying")
	case st.Sending && st.Partial == "":
		left = m.spinner.View() + " Thinking"
	case st.Typing:
		left = m.spinner.View() + " Replying"
	default:
		if n := len(m.sessions.get()); n > 0 {
			left = m.theme.ShortcutDesc.Render(fmt.Sprintf("%d saved", n))
		}
	}

	bindings := m.keys.ShortHelp()
	if st.Sending {
		bindings = m.keys.StreamingHelp()
	}
	h := m.help
	h.Width = max(0, m.width-lipgloss.Width(left)-5)
	right := h.ShortHelpView(bindings)

	gap := m.width - 2 - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).MaxHeight(1).Render(left + strings.Repeat(" ", gap) + right)
}

// formatRemaining formats a countdown as "3s" or "1m05s".
func formatRemaining(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
}

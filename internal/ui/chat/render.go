// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/gemchat/internal/engine"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/ui/styles"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// markdown renders committed model turns with glamour. Committed turns
// never change, so output is cached by turn ID until the width changes.
type markdown struct {
	mu       sync.Mutex
	enabled  bool
	style    string
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]string
}

func newMarkdown(enabled bool, style string) *markdown {
	return &markdown{
		enabled: enabled,
		style:   style,
		cache:   make(map[string]string),
	}
}

// render returns the rendered text and true, or false when Markdown is off
// or glamour failed.
func (md *markdown) render(id, text string, width int) (string, bool) {
	if md == nil || width <= 0 {
		return "", false
	}
	md.mu.Lock()
	defer md.mu.Unlock()
	if !md.enabled {
		return "", false
	}

	if md.renderer == nil || md.width != width {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(md.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			md.enabled = false
			return "", false
		}
		md.renderer = r
		md.width = width
		md.cache = make(map[string]string)
	}

	if out, ok := md.cache[id]; ok {
		return out, true
	}
	out, err := md.renderer.Render(text)
	if err != nil {
		return "", false
	}
	out = strings.Trim(out, "\n")
	md.cache[id] = out
	return out, true
}

// =============================================================================
// CONVERSATION
// =============================================================================

// renderConversation renders the committed turns, the in-flight reply and
// the current notice.
func (m Model) renderConversation() string {
	width := m.contentWidth()
	st := m.state

	if len(st.Turns) == 0 && !st.Sending && m.notice == "" {
		return m.renderEmpty(width)
	}

	var blocks []string
	for _, turn := range st.Turns {
		blocks = append(blocks, m.renderTurn(turn, width))
	}

	if st.Sending {
		blocks = append(blocks, m.renderPartial(st, width))
	}

	if m.notice != "" {
		blocks = append(blocks, m.renderNotice(width))
	}

	return strings.Join(blocks, "\n\n")
}

func (m Model) renderEmpty(width int) string {
	lines := []string{
		m.theme.HeaderBrand.Render("gemchat"),
		"",
		m.theme.Notice.Render("Ask anything. Type /help for commands."),
		m.theme.Notice.Render("Attach images with /attach <path>."),
	}
	return lipgloss.NewStyle().Width(width).PaddingTop(1).Render(strings.Join(lines, "\n"))
}

// renderTurn renders one committed turn.
func (m Model) renderTurn(turn model.Turn, width int) string {
	var sb strings.Builder
	sb.WriteString(m.renderLabel(turn.Role, turn.Timestamp.Format("15:04")))

	for _, img := range turn.Images() {
		sb.WriteString("\n")
		sb.WriteString(m.theme.ImageLabel.Render(imageLabel(img)))
	}

	text := turn.Text()
	if text == "" {
		return sb.String()
	}
	sb.WriteString("\n")

	if turn.Role == model.RoleModel {
		if out, ok := m.md.render(turn.ID, text, width-2); ok {
			sb.WriteString(out)
			return sb.String()
		}
		sb.WriteString(m.wrap(m.theme.ModelText, text, width))
		return sb.String()
	}
	sb.WriteString(m.wrap(m.theme.UserText, text, width))
	return sb.String()
}

// renderPartial renders the reply being revealed.
func (m Model) renderPartial(st engine.State, width int) string {
	var sb strings.Builder
	sb.WriteString(m.renderLabel(model.RoleModel, ""))
	sb.WriteString("\n")

	text := st.Partial
	switch {
	case text == "" && st.Retrying:
		sb.WriteString(m.theme.Notice.Render("Waiting to retry..."))
	case text == "":
		sb.WriteString(m.theme.Notice.Render(m.spinner.View() + " Thinking..."))
	default:
		body := text
		if st.Typing {
			body += m.theme.Cursor.Render(styles.TypingCursor)
		}
		sb.WriteString(m.wrap(m.theme.ModelText, body, width))
	}
	return sb.String()
}

func (m Model) renderLabel(role model.Role, stamp string) string {
	label := m.theme.UserLabel.Render(role.DisplayName())
	if role == model.RoleModel {
		label = m.theme.ModelLabel.Render(role.DisplayName())
	}
	if stamp != "" {
		label += " " + m.theme.Timestamp.Render(stamp)
	}
	return label
}

func (m Model) renderNotice(width int) string {
	if m.noticeErr {
		return lipgloss.NewStyle().Width(width).Render(styles.RenderError(m.notice))
	}
	return m.wrap(m.theme.Notice, m.notice, width)
}

// wrap applies style, wrapping to width when word wrap is on.
func (m Model) wrap(style lipgloss.Style, text string, width int) string {
	if m.wordWrap && width > 0 {
		style = style.Width(width)
	}
	return style.Render(text)
}

func imageLabel(img model.InlineImage) string {
	name := img.Name
	if name == "" {
		name = img.MIMEType
	}
	return fmt.Sprintf("[image: %s]", name)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is used until the conversation has a user turn.
const DefaultTitle = "New chat"

// TitleWidth is the maximum display width of a derived title.
const TitleWidth = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered turn log of one chat.
//
// Conversation is not safe for concurrent use; the engine serializes access.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Turns     []Turn    `json:"turns"`
}

// NewConversation creates an empty conversation with a fresh ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Turns:     make([]Turn, 0),
	}
}

// =============================================================================
// TURN MANAGEMENT
// =============================================================================

// AddUser appends a user turn. If the conversation already ends with a
// user turn carrying the same text and images (a resend after a failure),
// nothing is appended. It reports whether a turn was added.
func (c *Conversation) AddUser(text string, images []InlineImage) bool {
	if last, ok := c.Last(); ok && last.Role == RoleUser &&
		last.Text() == text && sameImages(last.Images(), images) {
		return false
	}
	c.append(NewUserTurn(text, images))
	return true
}

// sameImages compares image content. Names are display only.
func sameImages(a, b []InlineImage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].MIMEType != b[i].MIMEType || a[i].Data != b[i].Data {
			return false
		}
	}
	return true
}

// AddModel commits a completed model turn.
func (c *Conversation) AddModel(text string) Turn {
	turn := NewModelTurn(text)
	c.append(turn)
	return turn
}

// RemoveLastUser drops the trailing turn if it is a user turn. Used to roll
// back a prompt that never got an answer.
func (c *Conversation) RemoveLastUser() bool {
	last, ok := c.Last()
	if !ok || last.Role != RoleUser {
		return false
	}
	c.Turns = c.Turns[:len(c.Turns)-1]
	c.UpdatedAt = time.Now()
	return true
}

// Last returns the final turn.
func (c *Conversation) Last() (Turn, bool) {
	if len(c.Turns) == 0 {
		return Turn{}, false
	}
	return c.Turns[len(c.Turns)-1], true
}

// History returns the turns that precede a trailing user turn. This is the
// prior context sent alongside a new prompt.
func (c *Conversation) History() []Turn {
	n := len(c.Turns)
	if last, ok := c.Last(); ok && last.Role == RoleUser {
		n--
	}
	out := make([]Turn, n)
	for i := 0; i < n; i++ {
		out[i] = c.Turns[i].Clone()
	}
	return out
}

// Snapshot returns a deep copy of all turns.
func (c *Conversation) Snapshot() []Turn {
	out := make([]Turn, len(c.Turns))
	for i, t := range c.Turns {
		out[i] = t.Clone()
	}
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.Turns)
}

// IsEmpty reports whether the conversation has no turns.
func (c *Conversation) IsEmpty() bool {
	return len(c.Turns) == 0
}

func (c *Conversation) append(t Turn) {
	c.Turns = append(c.Turns, t)
	c.UpdatedAt = time.Now()
}

// =============================================================================
// TITLE
// =============================================================================

// Title derives a title from the first user turn with text.
func (c *Conversation) Title() string {
	return TitleFor(c.Turns)
}

// TitleFor derives a title from the first user turn with text in turns.
func TitleFor(turns []Turn) string {
	for _, t := range turns {
		if t.Role != RoleUser {
			continue
		}
		if title := t.Preview(TitleWidth); strings.TrimSpace(title) != "" {
			return title
		}
	}
	return DefaultTitle
}

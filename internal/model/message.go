// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role identifies who produced a turn. The values match the Gemini wire
// format so turns can be sent back as history without translation.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleModel:
		return "Gemini"
	default:
		return string(r)
	}
}

// =============================================================================
// PARTS
// =============================================================================

// InlineImage is an image attached to a user turn, already base64 encoded.
type InlineImage struct {
	MIMEType string `json:"mimeType" yaml:"mime_type"`
	Data     string `json:"data" yaml:"data"`
	// Name is the original file name, kept for display only.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Part is one element of a turn: either text or an inline image.
type Part struct {
	Text  string       `json:"text,omitempty" yaml:"text,omitempty"`
	Image *InlineImage `json:"inlineImage,omitempty" yaml:"inline_image,omitempty"`
}

// TextPart returns a Part holding text.
func TextPart(text string) Part {
	return Part{Text: text}
}

// ImagePart returns a Part holding an image.
func ImagePart(img InlineImage) Part {
	return Part{Image: &img}
}

// =============================================================================
// TURN TYPE
// =============================================================================

// Turn is one message in a conversation.
//
// Streaming is true only for the trailing model turn while a send is in
// flight; committed turns always have it false.
type Turn struct {
	ID        string    `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Parts     []Part    `json:"parts" yaml:"parts"`
	Streaming bool      `json:"streaming,omitempty" yaml:"-"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// NewTurn creates a turn with a generated ID.
func NewTurn(role Role, parts ...Part) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     parts,
		Timestamp: time.Now(),
	}
}

// NewUserTurn builds a user turn. Image parts come first, matching the
// order the API expects for multimodal prompts.
func NewUserTurn(text string, images []InlineImage) Turn {
	parts := make([]Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, ImagePart(img))
	}
	parts = append(parts, TextPart(text))
	return NewTurn(RoleUser, parts...)
}

// NewModelTurn builds a committed model turn.
func NewModelTurn(text string) Turn {
	return NewTurn(RoleModel, TextPart(text))
}

// Text returns the concatenated text parts.
func (t Turn) Text() string {
	var sb strings.Builder
	for _, p := range t.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// Images returns the image parts in order.
func (t Turn) Images() []InlineImage {
	var out []InlineImage
	for _, p := range t.Parts {
		if p.Image != nil {
			out = append(out, *p.Image)
		}
	}
	return out
}

// Preview returns the turn text on one line, truncated to maxWidth cells.
func (t Turn) Preview(maxWidth int) string {
	return util.TruncateWidth(util.SingleLine(t.Text()), maxWidth)
}

// Clone returns a copy that shares no slices with t.
func (t Turn) Clone() Turn {
	c := t
	c.Parts = append([]Part(nil), t.Parts...)
	return c
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/gemchat/internal/engine"
	"github.com/jeranaias/gemchat/internal/model"
	"github.com/jeranaias/gemchat/internal/storage"
)

// =============================================================================
// ENGINE MESSAGES
// =============================================================================

// StateMsg delivers a new engine snapshot.
type StateMsg struct {
	State engine.State
}

// SendDoneMsg signals that a Send call returned.
type SendDoneMsg struct {
	Text  string
	Reply string
	Err   error

	// Images are the attachments that went with the message, restored to
	// the pending set when the engine refused the send.
	Images []model.InlineImage
}

// =============================================================================
// SESSION MESSAGES
// =============================================================================

// SessionsChangedMsg signals that the store changed outside this view.
type SessionsChangedMsg struct{}

// SessionsLoadedMsg delivers the saved session list.
type SessionsLoadedMsg struct {
	Sessions []storage.Meta
	Err      error
}

// =============================================================================
// NOTICE MESSAGES
// =============================================================================

// NoticeMsg shows text below the conversation until the next send.
type NoticeMsg struct {
	Text string
}

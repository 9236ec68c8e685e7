// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and turns.
//
// # Key Types
//
//   - Conversation: ordered turn log of one chat, with orphan rollback
//   - Turn: one user or model message made of Parts
//   - Part: text or an InlineImage
//   - ModelInfo: registry entry for a selectable Gemini model
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.AddUser("Hello!", nil)
//	history := conv.History() // excludes the trailing user turn
//	conv.AddModel("Hi there.")
//	title := conv.Title()
package model

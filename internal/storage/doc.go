// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides session persistence for gemchat.
//
// Sessions are kept in most-recently-created order with a pointer to the
// active session. Saving an existing session updates it in place; saving a
// new one puts it at the front of the list and makes it active.
//
// # Key Types
//
//   - Store: Persistence interface shared by both backends
//   - FileStore: One JSON file per session plus index.json
//   - SQLiteStore: Pure Go SQLite database (modernc.org/sqlite)
//   - Session: Serializable conversation with metadata
//   - Meta: Lightweight metadata for listing
//   - Watcher: fsnotify watcher that reports external changes
//
// # Usage
//
// Open a store and save a session:
//
//	store, err := storage.Open(storage.BackendFile, dir)
//	sess := storage.FromConversation(conv, modelID)
//	err = store.Save(sess)
//
// List and load sessions:
//
//	metas, err := store.List()
//	sess, err := store.Get(metas[0].ID)
//
// # Storage Location
//
// Sessions are stored in ~/.gemchat/sessions/ by default.
package storage

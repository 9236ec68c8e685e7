// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across gemchat.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes, TruncateWidth: UTF-8 safe truncation with ellipsis
//   - SingleLine: NFC normalization plus whitespace folding for titles
//   - StringWidth, RuneLen, SafeSubstring
//
// File Operations:
//   - AtomicWriteFile: crash-safe writes with fsync and rename
//
// # Usage
//
//	title := util.TruncateWidth(util.SingleLine(text), 50)
//	err := util.AtomicWriteFile(path, data, 0600)
package util

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes saved sessions to Markdown, JSON or YAML files.
//
// # Key Types
//
//   - Exporter: Format interface
//   - Options: Output directory and header/timestamp toggles
//
// # Supported Formats
//
//   - Markdown: Human-readable, YAML frontmatter
//   - JSON: The full session, image data included
//   - YAML: Readable dump, images listed by name
//
// # Usage
//
//	exporter, err := export.ForFormat("md", nil)
//	path, err := export.ExportToFile(sess, exporter, nil)
package export

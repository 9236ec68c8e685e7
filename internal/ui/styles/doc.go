// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the gemchat TUI.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. NewTheme can force either background from the ui.theme setting.

# Color System (colors.go)

  - Blue - brand, user turns
  - Purple - model turns, the typing cursor
  - Amber - retry countdown and the connectivity banner
  - Rose - errors

Every status color is paired with an ASCII indicator ([OK], [X], [!], [~])
so that state stays readable on monochrome terminals.

# Theme (theme.go)

Theme groups the lipgloss styles for the header, turns, input box, status
bar and session list, plus the glamour style name for markdown rendering.

# Animations (animations.go)

Spinner frame sets, the typing cursor and an ASCII progress bar for the line
REPL's retry countdown.
*/
package styles

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/gemchat/internal/storage"
	"github.com/jeranaias/gemchat/internal/util"
)

// =============================================================================
// COMPLETION TYPE
// =============================================================================

// Completion represents a completion suggestion.
type Completion struct {
	// Value to insert
	Value string

	// Display text
	Display string

	// Description shown alongside
	Description string

	// Score for ranking (higher = better match)
	Score int
}

// =============================================================================
// COMPLETER
// =============================================================================

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// SessionsFn returns saved sessions for session ID arguments.
	SessionsFn func() []storage.Meta
}

// NewCompleter creates a new completer with the given registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns completions for input, which is the text before the
// cursor.
func (c *Completer) Complete(input string) []Completion {
	pending, ok := PendingWord(input)
	if !ok {
		return nil
	}
	if pending.ArgIndex < 0 {
		return c.completeCommands(pending.Partial)
	}

	cmd := c.registry.Get(strings.ToLower(pending.Name))
	if cmd == nil {
		return nil
	}
	return c.completeArg(cmd, pending.ArgIndex, pending.Partial)
}

// CompleteLine returns whole replacement lines for input, for line editors
// that complete the full buffer.
func (c *Completer) CompleteLine(input string) []string {
	completions := c.Complete(input)
	if len(completions) == 0 {
		return nil
	}

	prefix := ""
	if !strings.HasSuffix(input, " ") {
		if i := strings.LastIndex(input, " "); i >= 0 {
			prefix = input[:i+1]
		}
	} else {
		prefix = input
	}

	lines := make([]string, len(completions))
	for i, comp := range completions {
		lines[i] = prefix + comp.Value
	}
	return lines
}

// =============================================================================
// COMMAND COMPLETION
// =============================================================================

func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Display:     cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			// Bare aliases like "/?" only show up once typed.
			if partial != "/" && partial != "" && strings.HasPrefix(alias, partial) {
				completions = append(completions, Completion{
					Value:       alias,
					Display:     alias + " -> " + cmd.Name,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}

	sortCompletions(completions)
	return completions
}

// =============================================================================
// ARGUMENT COMPLETION
// =============================================================================

func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}

	arg := cmd.Args[argIndex]
	switch arg.Type {
	case ArgTypeSession:
		return c.completeSessions(partial)
	case ArgTypeFile:
		return completeFiles(partial)
	case ArgTypeEnum:
		return completeFromList(arg.Values, partial)
	default:
		return nil
	}
}

func (c *Completer) completeSessions(partial string) []Completion {
	if c.SessionsFn == nil {
		return nil
	}

	var completions []Completion
	lower := strings.ToLower(partial)
	for _, meta := range c.SessionsFn() {
		idMatch := strings.HasPrefix(strings.ToLower(meta.ID), lower)
		titleMatch := lower != "" && strings.Contains(strings.ToLower(meta.Title), lower)
		if !idMatch && !titleMatch {
			continue
		}

		score := calculateScore(meta.ID, lower)
		if titleMatch && !idMatch {
			score -= 5
		}
		completions = append(completions, Completion{
			Value:       meta.ID,
			Display:     util.SafeSubstring(meta.ID, 0, storage.ShortIDLen) + " - " + util.TruncateWidth(meta.Title, 30),
			Description: meta.Preview,
			Score:       score,
		})
	}

	sortCompletions(completions)
	return completions
}

// completeFiles lists directory entries matching partial. Directories end
// in a separator so completion can continue into them.
func completeFiles(partial string) []Completion {
	dir := filepath.Dir(partial)
	prefix := filepath.Base(partial)
	if partial == "" || strings.HasSuffix(partial, string(os.PathSeparator)) {
		dir = partial
		prefix = ""
	}

	readDir := dir
	if readDir == "" {
		readDir = "."
	}
	entries, err := os.ReadDir(readDir)
	if err != nil {
		return nil
	}

	var completions []Completion
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(name), strings.ToLower(prefix)) {
			continue
		}

		value := name
		if dir != "" && dir != "." {
			value = filepath.Join(dir, name)
		} else if strings.HasPrefix(partial, "."+string(os.PathSeparator)) {
			value = "." + string(os.PathSeparator) + name
		}
		if e.IsDir() {
			value += string(os.PathSeparator)
		}
		completions = append(completions, Completion{
			Value:   value,
			Display: value,
			Score:   calculateScore(name, prefix),
		})
	}

	sortCompletions(completions)
	return completions
}

func completeFromList(values []string, partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, value := range values {
		if strings.HasPrefix(strings.ToLower(value), partial) {
			completions = append(completions, Completion{
				Value:   value,
				Display: value,
				Score:   calculateScore(value, partial),
			})
		}
	}

	sortCompletions(completions)
	return completions
}

// calculateScore calculates a match score for completion ranking.
// Higher score = better match.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100
	if value == partial {
		return score + 100
	}
	if strings.HasPrefix(value, partial) {
		score += 50
		score += 20 - len(value)
	}
	score -= len(value) / 2
	return score
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.Slice(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}

// =============================================================================
// COMPLETION NAVIGATION
// =============================================================================

// CompletionState holds the state for cycling through completions with Tab.
type CompletionState struct {
	// OriginalInput is the input the completions were computed for.
	OriginalInput string

	Completions []Completion

	// Selected index (-1 for none)
	Selected int
}

// NewCompletionState creates a new completion state.
func NewCompletionState() *CompletionState {
	return &CompletionState{Selected: -1}
}

// Update replaces the completions and selects the first.
func (cs *CompletionState) Update(input string, completions []Completion) {
	cs.OriginalInput = input
	cs.Completions = completions
	cs.Selected = 0
	if len(completions) == 0 {
		cs.Selected = -1
	}
}

// Active reports whether there are completions to cycle through.
func (cs *CompletionState) Active() bool {
	return len(cs.Completions) > 0
}

// Next moves to the next completion.
func (cs *CompletionState) Next() {
	if len(cs.Completions) == 0 {
		return
	}
	cs.Selected = (cs.Selected + 1) % len(cs.Completions)
}

// Prev moves to the previous completion.
func (cs *CompletionState) Prev() {
	if len(cs.Completions) == 0 {
		return
	}
	cs.Selected--
	if cs.Selected < 0 {
		cs.Selected = len(cs.Completions) - 1
	}
}

// Accept returns the selected completion value, or empty if none.
func (cs *CompletionState) Accept() string {
	if sel := cs.GetSelected(); sel != nil {
		return sel.Value
	}
	return ""
}

// Clear clears the completion state.
func (cs *CompletionState) Clear() {
	cs.OriginalInput = ""
	cs.Completions = nil
	cs.Selected = -1
}

// GetSelected returns the currently selected completion, or nil.
func (cs *CompletionState) GetSelected() *Completion {
	if cs.Selected < 0 || cs.Selected >= len(cs.Completions) {
		return nil
	}
	return &cs.Completions[cs.Selected]
}

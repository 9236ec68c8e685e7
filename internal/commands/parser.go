// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// =============================================================================
// COMMAND LINES
// =============================================================================

// Line is one line of chat input split into a slash command and its
// arguments.
type Line struct {
	// IsCommand is true when the input starts with "/".
	IsCommand bool

	// Name is the command word, lowercased ("/open").
	Name string

	Args []string

	// Command is nil when Name is not registered.
	Command *Command
}

// ParseLine splits input and resolves its command word, aliases included.
func (r *Registry) ParseLine(input string) Line {
	input = strings.TrimSpace(input)
	if !IsCommand(input) {
		return Line{}
	}

	words, _ := tokenize(input)
	line := Line{IsCommand: true}
	if len(words) == 0 {
		return line
	}
	line.Name = strings.ToLower(words[0])
	line.Args = words[1:]
	line.Command = r.Get(line.Name)
	return line
}

// IsCommand reports whether input is a slash command.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// =============================================================================
// COMPLETION CURSOR
// =============================================================================

// Pending is the word being typed at the end of a command line.
type Pending struct {
	// Name is the command word as typed.
	Name string

	// ArgIndex is the argument position of Partial, or -1 while the
	// command word itself is being typed.
	ArgIndex int

	// Partial is the unfinished word, without quotes. Empty right after a
	// space.
	Partial string
}

// PendingWord inspects input, the text before the cursor. ok is false when
// input is not a command.
//
//	/op            -> {Name: "/op", ArgIndex: -1, Partial: "/op"}
//	/open          -> {Name: "/open", ArgIndex: 0} (with a trailing space)
//	/open 3f       -> {Name: "/open", ArgIndex: 0, Partial: "3f"}
//	/attach "my p  -> {Name: "/attach", ArgIndex: 0, Partial: "my p"}
func PendingWord(input string) (p Pending, ok bool) {
	input = strings.TrimLeftFunc(input, unicode.IsSpace)
	if !strings.HasPrefix(input, "/") {
		return Pending{}, false
	}

	words, open := tokenize(input)
	last, _ := lastRune(input)
	atBoundary := unicode.IsSpace(last) && !open

	p.Name = words[0]
	switch {
	case len(words) == 1 && !atBoundary:
		p.ArgIndex = -1
		p.Partial = words[0]
	case atBoundary:
		p.ArgIndex = len(words) - 1
	default:
		p.ArgIndex = len(words) - 2
		p.Partial = words[len(words)-1]
	}
	return p, true
}

// =============================================================================
// TOKENIZER
// =============================================================================

// tokenize splits input on unquoted whitespace. Single and double quotes
// group words and are dropped; inside quotes a backslash escapes a quote or
// another backslash. open reports an unterminated quote, which keeps the
// final word going.
func tokenize(input string) (words []string, open bool) {
	var (
		word    strings.Builder
		quote   rune
		started bool
	)
	flush := func() {
		if started {
			words = append(words, word.String())
			word.Reset()
			started = false
		}
	}

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
			started = true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0 && r == '\\' && i+1 < len(runes) && strings.ContainsRune(`"'\`, runes[i+1]):
			i++
			word.WriteRune(runes[i])
		case quote == 0 && unicode.IsSpace(r):
			flush()
		default:
			word.WriteRune(r)
			started = true
		}
	}
	flush()
	return words, quote != 0
}

func lastRune(s string) (rune, bool) {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0, false
	}
	return runes[len(runes)-1], true
}

// =============================================================================
// ARGUMENT CHECKS
// =============================================================================

// ValidateArgs checks args against cmd's required arguments and enum values.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}

	for i, def := range cmd.Args {
		if i >= len(args) {
			if def.Required {
				return &ArgError{Command: cmd.Name, Arg: def.Name, Message: "required argument missing", Expected: def.Description}
			}
			continue
		}
		if def.Type != ArgTypeEnum || len(def.Values) == 0 {
			continue
		}
		if !containsFold(def.Values, args[i]) {
			return &ArgError{
				Command:  cmd.Name,
				Arg:      def.Name,
				Message:  "invalid value",
				Got:      args[i],
				Expected: strings.Join(def.Values, ", "),
			}
		}
	}
	return nil
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// ArgError is a bad or missing command argument.
type ArgError struct {
	Command  string
	Arg      string
	Message  string
	Got      string
	Expected string
}

func (e *ArgError) Error() string {
	msg := e.Command + ": " + e.Message
	if e.Arg != "" {
		msg += " for argument '" + e.Arg + "'"
	}
	if e.Got != "" {
		msg += " (got: " + e.Got + ")"
	}
	if e.Expected != "" {
		msg += " - expected: " + e.Expected
	}
	return msg
}

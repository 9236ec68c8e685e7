// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jeranaias/gemchat/internal/export"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax (e.g., "/open <id>")
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	// Handler executes the command.
	Handler func(ctx *Context, args []string) (Result, error)

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	Name        string
	Required    bool
	Type        ArgType
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeSession                // Session ID from saved sessions
	ArgTypeFile                   // File path
	ArgTypeEnum                   // One of predefined values
)

// Categories in help order.
const (
	CategoryConversation = "Conversation"
	CategorySessions     = "Sessions"
	CategoryGeneral      = "General"
)

var categoryOrder = []string{CategoryConversation, CategorySessions, CategoryGeneral}

// ErrUnknownCommand is returned by Execute for an unregistered name.
var ErrUnknownCommand = errors.New("unknown command")

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns visible commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = CategoryGeneral
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Execute parses input and runs the matching command. Input that is not a
// command returns ok=false.
func (r *Registry) Execute(ctx *Context, input string) (res Result, ok bool, err error) {
	line := r.ParseLine(input)
	if !line.IsCommand {
		return Result{}, false, nil
	}
	if line.Command == nil {
		return Result{}, true, fmt.Errorf("%w: %s (try /help)", ErrUnknownCommand, line.Name)
	}
	if err := ValidateArgs(line.Command, line.Args); err != nil {
		return Result{}, true, err
	}
	res, err = line.Command.Handler(ctx, line.Args)
	return res, true, err
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	// Conversation
	r.Register(&Command{
		Name:        "/new",
		Aliases:     []string{"/clear", "/n"},
		Description: "Start a new chat",
		Usage:       "/new",
		Handler:     HandleNew,
		Category:    CategoryConversation,
	})
	r.Register(&Command{
		Name:        "/stop",
		Aliases:     []string{"/cancel"},
		Description: "Stop the reply being streamed",
		Usage:       "/stop",
		Handler:     HandleStop,
		Category:    CategoryConversation,
	})
	r.Register(&Command{
		Name:        "/attach",
		Aliases:     []string{"/a", "/image"},
		Description: "Attach an image to the next message",
		Usage:       "/attach <path>|clear",
		Args: []ArgDef{
			{Name: "path", Required: true, Type: ArgTypeFile, Description: "image file, or 'clear'"},
		},
		Handler:  HandleAttach,
		Category: CategoryConversation,
	})
	r.Register(&Command{
		Name:        "/export",
		Aliases:     []string{"/e"},
		Description: "Export the open chat",
		Usage:       "/export <md|json|yaml> [file]",
		Args: []ArgDef{
			{Name: "format", Required: false, Type: ArgTypeEnum, Description: "output format", Values: export.Formats()},
			{Name: "file", Required: false, Type: ArgTypeFile, Description: "output path"},
		},
		Handler:  HandleExport,
		Category: CategoryConversation,
	})

	// Sessions
	r.Register(&Command{
		Name:        "/sessions",
		Aliases:     []string{"/ls", "/history"},
		Description: "List saved chats",
		Usage:       "/sessions [search]",
		Args: []ArgDef{
			{Name: "search", Required: false, Type: ArgTypeString, Description: "filter by title or ID"},
		},
		Handler:  HandleSessions,
		Category: CategorySessions,
	})
	r.Register(&Command{
		Name:        "/open",
		Aliases:     []string{"/load", "/o"},
		Description: "Open a saved chat",
		Usage:       "/open <id>",
		Args: []ArgDef{
			{Name: "id", Required: true, Type: ArgTypeSession, Description: "session ID or unique prefix"},
		},
		Handler:  HandleOpen,
		Category: CategorySessions,
	})
	r.Register(&Command{
		Name:        "/delete",
		Aliases:     []string{"/rm"},
		Description: "Delete a saved chat",
		Usage:       "/delete <id>",
		Args: []ArgDef{
			{Name: "id", Required: true, Type: ArgTypeSession, Description: "session ID or unique prefix"},
		},
		Handler:  HandleDelete,
		Category: CategorySessions,
	})

	// General
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show commands",
		Usage:       "/help [command]",
		Handler:     r.handleHelp,
		Category:    CategoryGeneral,
	})
	r.Register(&Command{
		Name:        "/models",
		Description: "List known models",
		Usage:       "/models",
		Handler:     HandleModels,
		Category:    CategoryGeneral,
	})
	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/q", "/exit"},
		Description: "Exit gemchat",
		Usage:       "/quit",
		Handler:     HandleQuit,
		Category:    CategoryGeneral,
	})
}

func (r *Registry) handleHelp(ctx *Context, args []string) (Result, error) {
	topic := ""
	if len(args) > 0 {
		topic = args[0]
	}
	return Result{Output: GenerateHelpText(r, topic)}, nil
}

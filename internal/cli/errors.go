// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit codes for gemchat subcommands.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/gemchat/internal/config"
	"github.com/jeranaias/gemchat/internal/engine"
	"github.com/jeranaias/gemchat/internal/gemini"
	"github.com/jeranaias/gemchat/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError    = 2
	ExitConfigError   = 3
	ExitAuthError     = 4
	ExitNetworkError  = 5
	// ExitNotFoundError indicates a session or file was not found
	ExitNotFoundError = 7
	ExitTimeoutError  = 8
	// ExitInterrupted matches the shell convention for SIGINT.
	ExitInterrupted   = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // e.g. "sessions"
	Action  string // e.g. "delete"
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrStorageDisabled is returned by session commands when storage.backend
// is "none".
var ErrStorageDisabled = errors.New("session storage is disabled (storage.backend = none)")

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "required argument missing", Example: usage}
}

// ErrUnknownCommand creates an error for a command word gemchat does not know.
func ErrUnknownCommand(name string) error {
	return &ValidationError{Field: "command", Value: name, Reason: "unknown command", Example: "gemchat help"}
}

// ErrUnknownSubcommand creates an error for a subcommand a command does not have.
func ErrUnknownSubcommand(command, sub, usage string) error {
	return &ValidationError{Field: command + " subcommand", Value: sub, Reason: "unknown subcommand", Example: usage}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode picks the exit code for err.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var ttyErr *TTYRequiredError
	var configErrs config.ValidateErrors
	var notFound *NotFoundError

	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &validationErr), errors.As(err, &ttyErr):
		return ExitUsageError
	case errors.As(err, &configErrs), errors.Is(err, gemini.ErrNotConfigured):
		return ExitConfigError
	case errors.Is(err, gemini.ErrAuthFailed):
		return ExitAuthError
	case errors.As(err, &notFound), errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, os.ErrNotExist):
		return ExitNotFoundError
	case errors.Is(err, gemini.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, gemini.ErrTransport):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// DisplayError writes err to w in the shared error style.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error:")+" "+err.Error())
}

// sendError carries the short explanation shown to the user while keeping
// the underlying error for exit codes and logs.
type sendError struct {
	msg string
	err error
}

func (e *sendError) Error() string { return e.msg }

func (e *sendError) Unwrap() error { return e.err }

// explainSendError wraps an engine send failure with engine.UserMessage.
func explainSendError(err error) error {
	if err == nil {
		return nil
	}
	msg := engine.UserMessage(err)
	if msg == "" {
		return err
	}
	return &sendError{msg: msg, err: err}
}

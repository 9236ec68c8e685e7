// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Error variables for common API failures.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("Gemini API key not configured")

	// ErrAuthFailed indicates the key was rejected or lacks permission.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates the quota or request rate was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the requested model does not exist.
	ErrModelNotFound = errors.New("model not found")

	// ErrBadRequest indicates the request was rejected as malformed.
	ErrBadRequest = errors.New("bad request")

	// ErrServer indicates a 5xx response.
	ErrServer = errors.New("server error")

	// ErrBlocked indicates the prompt was blocked by safety filters.
	ErrBlocked = errors.New("prompt blocked")

	// ErrEmptyResponse indicates the stream finished without any text.
	ErrEmptyResponse = errors.New("empty response")

	// ErrTransport indicates the connection failed or dropped.
	ErrTransport = errors.New("transport error")

	// ErrTimeout indicates a network deadline was exceeded.
	ErrTimeout = errors.New("request timed out")
)

// wrapNetError tags a low-level failure with ErrTransport or ErrTimeout,
// keeping the original error reachable through errors.As.
func wrapNetError(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

// =============================================================================
// API ERROR
// =============================================================================

// APIError is a non-200 response from the API.
type APIError struct {
	Status  int
	Code    string // google.rpc status, e.g. "RESOURCE_EXHAUSTED"
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Gemini error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("Gemini error (HTTP %d): %s", e.Status, e.Message)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.Status
}

// Is maps the status code onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrModelNotFound:
		return e.Status == http.StatusNotFound
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	case ErrServer:
		return e.Status >= 500
	}
	return false
}

// apiErrorResponse is the JSON error envelope.
type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// handleErrorResponse converts an HTTP error response into an *APIError.
func handleErrorResponse(statusCode int, body []byte) error {
	var envelope apiErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return &APIError{
			Status:  statusCode,
			Code:    envelope.Error.Status,
			Message: envelope.Error.Message,
		}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return &APIError{Status: statusCode, Message: msg}
}

// =============================================================================
// STREAM ERROR
// =============================================================================

// StreamError is a failure after the stream started, preserving the text
// received before it.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

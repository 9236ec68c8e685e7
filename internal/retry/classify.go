// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// Kind classifies a failed attempt.
type Kind int

const (
	KindUnknown Kind = iota
	KindCancellation
	KindTransport
	KindTimeout
	KindRateLimit
	KindServer
	KindAuth
)

// String returns the kind name used in logs and the status line.
func (k Kind) String() string {
	switch k {
	case KindCancellation:
		return "cancelled"
	case KindTransport:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimit:
		return "rate_limit"
	case KindServer:
		return "server"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Retryable reports whether an error of this kind should be retried.
func (k Kind) Retryable() bool {
	switch k {
	case KindCancellation, KindAuth:
		return false
	default:
		return true
	}
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// credentialHints are lowercase substrings that mark an error as a
// credential or permission problem regardless of status code. The API
// reports a bad key as 400 with "API key not valid".
var credentialHints = []string{
	"api key",
	"api_key",
	"credential",
	"permission",
	"unauthenticated",
	"unauthorized",
	"forbidden",
}

// Classify maps err to a Kind. A nil error is KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, context.Canceled) {
		return KindCancellation
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		switch status := sc.HTTPStatus(); {
		case status == http.StatusTooManyRequests:
			return KindRateLimit
		case status == http.StatusUnauthorized, status == http.StatusForbidden:
			return KindAuth
		case status >= 500:
			return KindServer
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return KindTransport
	}

	// Checked after the transport kinds: "connect: permission denied" is a
	// network failure.
	if hasCredentialHint(err) {
		return KindAuth
	}

	return KindUnknown
}

// IsRetryable reports whether err should trigger another attempt.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}

// IsCancellation reports whether err is a user-initiated cancellation.
func IsCancellation(err error) bool {
	return Classify(err) == KindCancellation
}

func hasCredentialHint(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range credentialHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

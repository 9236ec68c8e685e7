// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini is the streaming transport to the Gemini generateContent API.
//
// The client sends the prior turns plus a new prompt (with optional inline
// images) to streamGenerateContent with alt=sse, and reports every text
// fragment to a callback together with the running total.
//
// # Key Types
//
//   - Client: configured API client, built with With* options
//   - APIError: non-200 responses, carrying the HTTP status
//   - StreamError: a mid-stream failure, carrying the text received so far
//
// # Errors
//
// HTTP failures are returned as *APIError, which matches the sentinels
// ErrAuthFailed (401/403), ErrRateLimited (429), ErrModelNotFound (404),
// ErrBadRequest (400) and ErrServer (5xx) through errors.Is. Cancellation
// surfaces as context.Canceled.
//
// # Usage
//
//	client := gemini.NewClient(apiKey).WithModel("gemini-2.5-flash").WithRateLimit(60)
//	text, err := client.Stream(ctx, "Hello", history, nil, func(chunk, total string) {
//	    fmt.Print(chunk)
//	})
package gemini

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/gemchat/internal/model"
)

func chunkJSON(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": text}},
			},
		}},
	})
	return string(b)
}

func sseServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient("test-key-1234").WithBaseURL(server.URL).WithModel("flash")
	return server, client
}

// =============================================================================
// STREAM TESTS
// =============================================================================

func TestStream_AccumulatesChunks(t *testing.T) {
	var gotBody generateRequest
	var gotPath, gotKey string

	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo, ", "world"} {
			fmt.Fprintf(w, "data: %s\r\n\r\n", chunkJSON(part))
		}
	})

	history := []model.Turn{
		model.NewUserTurn("hi", nil),
		model.NewModelTurn("hello"),
	}
	img := model.InlineImage{MIMEType: "image/png", Data: "iVBORw0KGgo="}

	var chunks, totals []string
	text, err := client.Stream(context.Background(), "describe", history, []model.InlineImage{img}, func(chunk, total string) {
		chunks = append(chunks, chunk)
		totals = append(totals, total)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)
	assert.Equal(t, []string{"Hel", "lo, ", "world"}, chunks)
	assert.Equal(t, []string{"Hel", "Hello, ", "Hello, world"}, totals)

	assert.Equal(t, "/v1beta/models/gemini-2.5-flash:streamGenerateContent?alt=sse", gotPath)
	assert.Equal(t, "test-key-1234", gotKey)

	require.Len(t, gotBody.Contents, 3)
	assert.Equal(t, "user", gotBody.Contents[0].Role)
	assert.Equal(t, "model", gotBody.Contents[1].Role)
	last := gotBody.Contents[2]
	require.Len(t, last.Parts, 2)
	require.NotNil(t, last.Parts[0].InlineData, "image part goes first")
	assert.Equal(t, "image/png", last.Parts[0].InlineData.MIMEType)
	assert.Equal(t, "describe", last.Parts[1].Text)
}

func TestStream_SkipsMalformedChunks(t *testing.T) {
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "data: %s\n\n", chunkJSON("a"))
		fmt.Fprint(w, "data: {not json\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprintf(w, "data: %s\n\n", chunkJSON("b"))
	})

	text, err := client.Stream(context.Background(), "x", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}

func TestStream_EmptyResponse(t *testing.T) {
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"candidates":[{"finishReason":"STOP"}]}`+"\n\n")
	})

	_, err := client.Stream(context.Background(), "x", nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestStream_Blocked(t *testing.T) {
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"promptFeedback":{"blockReason":"SAFETY"}}`+"\n\n")
	})

	_, err := client.Stream(context.Background(), "x", nil, nil, nil)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestStream_CancelMidStreamKeepsPartial(t *testing.T) {
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "data: %s\n\n", chunkJSON("partial"))
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	text, err := client.Stream(ctx, "x", nil, nil, func(chunk, total string) {
		cancel()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "partial", streamErr.Partial)
	assert.Equal(t, "partial", text)
}

func TestStream_NotConfigured(t *testing.T) {
	client := NewClient("  ")
	_, err := client.Stream(context.Background(), "x", nil, nil, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStream_RateLimiterRespectsDeadline(t *testing.T) {
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "data: %s\n\n", chunkJSON("ok"))
	})
	client.WithRateLimit(1)

	_, err := client.Stream(context.Background(), "x", nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Stream(ctx, "x", nil, nil, nil)
	require.Error(t, err)
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestStream_ErrorResponses(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
		code     string
	}{
		{"rate limited", 429, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, ErrRateLimited, "RESOURCE_EXHAUSTED"},
		{"forbidden", 403, `{"error":{"code":403,"message":"Permission denied","status":"PERMISSION_DENIED"}}`, ErrAuthFailed, "PERMISSION_DENIED"},
		{"bad key", 400, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, ErrBadRequest, "INVALID_ARGUMENT"},
		{"not found", 404, `{"error":{"code":404,"message":"models/nope is not found","status":"NOT_FOUND"}}`, ErrModelNotFound, "NOT_FOUND"},
		{"server", 503, `upstream unavailable`, ErrServer, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			})

			_, err := client.Stream(context.Background(), "x", nil, nil, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.HTTPStatus())
			assert.Equal(t, tc.code, apiErr.Code)
		})
	}
}

// =============================================================================
// SSE READER TESTS
// =============================================================================

func TestSSEReader_MultiLineAndTrailingEvent(t *testing.T) {
	input := "event: message\ndata: line1\ndata: line2\n\nid: 7\ndata: last"
	reader := NewSSEReader(strings.NewReader(input))

	data, err := reader.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", string(data))

	data, err = reader.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "last", string(data))

	_, err = reader.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

func TestClient_Options(t *testing.T) {
	client := NewClient("abcdefgh1234").WithModel("pro")
	assert.Equal(t, "gemini-2.5-pro", client.Model())
	assert.True(t, client.IsConfigured())
	assert.Equal(t, "********1234", client.APIKeyMasked())
}

func TestStream_ConnectionRefusedIsTransport(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient("test-key-1234").WithBaseURL(url)
	_, err := client.Stream(context.Background(), "hi", nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/gemchat/internal/model"
)

// STREAMING: Robust SSE parsing with error handling

// MaxEventSize is the largest SSE line accepted (1MB). Image-free text
// chunks are far smaller; anything bigger means a broken stream.
const MaxEventSize = 1 << 20

// ChunkFunc receives each text fragment and the full text received so far.
type ChunkFunc func(chunk, accumulated string)

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent returns the data of the next event. Multi-line data fields are
// joined with newlines. It returns io.EOF when the stream ends cleanly.
func (s *SSEReader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) > MaxEventSize {
			return nil, fmt.Errorf("SSE line exceeds %d bytes", MaxEventSize)
		}
		if err != nil {
			if err == io.EOF {
				if trimmed := bytes.TrimRight(line, "\r\n"); bytes.HasPrefix(trimmed, []byte("data:")) {
					dataLines = append(dataLines, bytes.TrimSpace(trimmed[5:]))
				}
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Blank line terminates an event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
		// event:, id:, retry: and comments are not used by this API.
	}
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream sends prompt with history and images and reads the reply as it is
// generated. onChunk runs on the calling goroutine for every non-empty
// fragment. It returns the full reply text.
//
// A failure after some text arrived is returned as *StreamError. When ctx
// is cancelled the returned error wraps context.Canceled.
func (c *Client) Stream(ctx context.Context, prompt string, history []model.Turn, images []model.InlineImage, onChunk ChunkFunc) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}
	if onChunk == nil {
		onChunk = func(string, string) {}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	reqBody := generateRequest{
		Contents:         buildContents(prompt, history, images),
		GenerationConfig: c.generation,
	}
	if c.systemPrompt != "" {
		reqBody.SystemInstruction = &content{Parts: []part{{Text: c.systemPrompt}}}
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL(), bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	c.logger.Debug("stream request",
		"model", c.model,
		"history", len(history),
		"images", len(images))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", wrapNetError("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := handleErrorResponse(resp.StatusCode, readErrorBody(resp.Body))
		c.logger.Warn("stream rejected", "status", resp.StatusCode, "error", apiErr)
		return "", apiErr
	}

	text, err := c.processStream(ctx, resp.Body, onChunk)
	c.logger.Debug("stream finished",
		"model", c.model,
		"chars", len(text),
		"duration", time.Since(start),
		"error", err)
	return text, err
}

// processStream reads SSE events until the body ends.
func (c *Client) processStream(ctx context.Context, body io.Reader, onChunk ChunkFunc) (string, error) {
	reader := NewSSEReader(body)
	var accumulated strings.Builder

	fail := func(err error) (string, error) {
		if accumulated.Len() > 0 {
			return accumulated.String(), &StreamError{Partial: accumulated.String(), Err: err}
		}
		return "", err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		data, err := reader.ReadEvent()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// The body read fails with a transport error once the request
			// context is cancelled; report the cancellation instead.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(ctxErr)
			}
			return fail(wrapNetError("read stream", err))
		}

		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		var chunk generateResponse
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed chunks
			continue
		}

		if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
			return fail(fmt.Errorf("%w: %s", ErrBlocked, chunk.PromptFeedback.BlockReason))
		}

		if text := chunk.text(); text != "" {
			accumulated.WriteString(text)
			onChunk(text, accumulated.String())
		}
	}

	if accumulated.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return accumulated.String(), nil
}

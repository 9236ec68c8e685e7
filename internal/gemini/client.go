// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/gemchat/internal/model"
)

// Configuration constants for the Gemini API.
const (
	// DefaultBaseURL is the public Generative Language endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// APIVersion is the path prefix for model methods.
	APIVersion = "v1beta"

	// DefaultHeaderTimeout bounds the wait for response headers. The body
	// of a stream is bounded only by the request context.
	DefaultHeaderTimeout = 60 * time.Second

	// MaxErrorBodySize caps how much of an error response is read.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxErrorBodySize = 1 << 20
)

// newStreamingTransport returns a pooled transport with TLS 1.2+ and a
// header timeout but no overall deadline.
func newStreamingTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the Gemini API. Configure it with the With* methods before
// first use; it is safe for concurrent streams afterwards.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	httpClient   *http.Client
	limiter      *rate.Limiter
	systemPrompt string
	generation   *GenerationConfig
	logger       *slog.Logger
}

// NewClient creates a client for apiKey using the default model. An empty
// key yields a client whose streams fail with ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultBaseURL,
		model:      model.DefaultModel,
		httpClient: &http.Client{Transport: newStreamingTransport(DefaultHeaderTimeout)},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     slog.Default(),
	}
}

// WithBaseURL sets a custom base URL (tests, proxies).
func (c *Client) WithBaseURL(url string) *Client {
	c.baseURL = strings.TrimRight(url, "/")
	return c
}

// WithModel selects the model by short name or full ID.
func (c *Client) WithModel(name string) *Client {
	if name != "" {
		c.model = model.ResolveModel(name)
	}
	return c
}

// WithHeaderTimeout sets how long to wait for the response headers.
func (c *Client) WithHeaderTimeout(d time.Duration) *Client {
	if d > 0 {
		c.httpClient = &http.Client{Transport: newStreamingTransport(d)}
	}
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithRateLimit caps outgoing requests per minute. Zero disables the cap.
func (c *Client) WithRateLimit(perMinute int) *Client {
	if perMinute <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
		return c
	}
	c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	return c
}

// WithSystemInstruction sets a system prompt sent with every request.
func (c *Client) WithSystemInstruction(prompt string) *Client {
	c.systemPrompt = strings.TrimSpace(prompt)
	return c
}

// WithGenerationConfig sets sampling parameters.
func (c *Client) WithGenerationConfig(cfg GenerationConfig) *Client {
	c.generation = &cfg
	return c
}

// WithLogger sets the logger for request diagnostics.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	if l != nil {
		c.logger = l
	}
	return c
}

// Model returns the resolved model ID.
func (c *Client) Model() string {
	return c.model
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// APIKeyMasked returns the key with all but the last four characters hidden.
func (c *Client) APIKeyMasked() string {
	if len(c.apiKey) <= 4 {
		return strings.Repeat("*", len(c.apiKey))
	}
	return strings.Repeat("*", 8) + c.apiKey[len(c.apiKey)-4:]
}

func (c *Client) streamURL() string {
	return fmt.Sprintf("%s/%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, APIVersion, c.model)
}

// setHeaders sets the headers for an API request. The key travels in a
// header rather than the query string so it never appears in logged URLs.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "gemchat/1.0")
}

// readErrorBody reads at most MaxErrorBodySize bytes of an error response.
func readErrorBody(r io.Reader) []byte {
	body, _ := io.ReadAll(io.LimitReader(r, MaxErrorBodySize))
	return body
}

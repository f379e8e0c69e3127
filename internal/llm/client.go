// Package llm is a chat-completions client for OpenAI-compatible gateways.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
)

// Client implements ports.LLM.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	http       *http.Client
	maxElapsed time.Duration
	logger     *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithMaxRetryTime caps the total time spent retrying one completion.
// The caller's context deadline still applies.
func WithMaxRetryTime(d time.Duration) Option {
	return func(c *Client) {
		c.maxElapsed = d
	}
}

// WithLogger configures the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a client for baseURL, e.g. "https://api.openai.com/v1".
func New(baseURL, apiKey, model string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		http:       &http.Client{},
		maxElapsed: 5 * time.Second,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []ports.Message `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// Complete sends one chat completion, retrying throttling and server errors.
func (c *Client) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	body := chatRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, ports.Message{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, req.Messages...)
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	op := func() (string, error) {
		return c.send(ctx, data)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.maxElapsed

	attempt := 0
	out, err := backoff.RetryNotifyWithData(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		attempt++
		c.logger.Debug("llm retry", "attempt", attempt, "wait_ms", wait.Milliseconds(), "err", err)
	})
	if err != nil {
		return "", fmt.Errorf("llm complete: %w", err)
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, data []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("llm server error %d: %s", resp.StatusCode, truncate(raw))
	case resp.StatusCode != http.StatusOK:
		return "", backoff.Permanent(fmt.Errorf("llm error %d: %s", resp.StatusCode, truncate(raw)))
	}

	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		return "", backoff.Permanent(fmt.Errorf("unexpected llm response: %s", truncate(raw)))
	}
	return strings.TrimSpace(content.String()), nil
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// Package webhook calls the external integrations referenced by flow nodes.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/registry"
	"github.com/cenkalti/backoff/v4"
)

// Client implements ports.WebhookCaller on top of an integration registry.
type Client struct {
	registry   *registry.Registry
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

// WithMaxRetryTime caps the time spent retrying a single call.
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

// New creates a webhook client.
func New(reg *registry.Registry, opts ...Option) *Client {
	c := &Client{
		registry:   reg,
		http:       &http.Client{},
		maxElapsed: 2 * time.Second,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call posts payload to the integration registered under name and returns
// the raw response body.
func (c *Client) Call(ctx context.Context, name string, payload map[string]any) ([]byte, error) {
	in, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", name, err)
	}
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	op := func() ([]byte, error) {
		return c.send(ctx, in, data)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = c.maxElapsed

	start := time.Now()
	body, err := backoff.RetryWithData(op, backoff.WithContext(b, ctx))
	c.logger.Debug("webhook call",
		"integration", name,
		"elapsed_ms", time.Since(start).Milliseconds(),
		"ok", err == nil)
	if err != nil {
		return nil, fmt.Errorf("webhook %s: %w", name, err)
	}
	return body, nil
}

// maxResponse bounds an integration's reply; the extractor only needs a
// handful of fields from it.
const maxResponse = 1 << 20

func (c *Client) send(ctx context.Context, in registry.Integration, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, in.Method, in.URL, bytes.NewReader(data))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxResponse {
		return nil, backoff.Permanent(fmt.Errorf("response larger than %d bytes", maxResponse))
	}
	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
	}
	return body, nil
}

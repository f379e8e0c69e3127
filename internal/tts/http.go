package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/callflow/pkg/ports"
	"github.com/tidwall/gjson"
)

const (
	speechPath = "/v1/audio/speech"
	healthPath = "/health"

	// HeaderLatency carries the backend's own processing time in milliseconds.
	HeaderLatency = "X-Latency-Ms"
	// HeaderSampleRate carries the sample rate of raw PCM responses.
	HeaderSampleRate = "X-Sample-Rate"

	maxErrorBody = 512
)

// HTTPBackend speaks the OpenAI-style speech protocol shared by every
// configured TTS endpoint.
type HTTPBackend struct {
	client *http.Client
	apiKey string
}

// NewHTTPBackend creates a backend client. A nil client uses http.DefaultClient.
func NewHTTPBackend(client *http.Client, apiKey string) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{client: client, apiKey: apiKey}
}

// Synthesize posts the request and returns the raw audio.
func (h *HTTPBackend) Synthesize(ctx context.Context, endpoint string, req ports.SpeechRequest) (*ports.Speech, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(endpoint, "/")+speechPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(msg)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	speech := &ports.Speech{
		Audio:  audio,
		Format: req.ResponseFormat,
	}
	if v := resp.Header.Get(HeaderLatency); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil {
			speech.ServerLatency = time.Duration(ms * float64(time.Millisecond))
		}
	}
	if v := resp.Header.Get(HeaderSampleRate); v != "" {
		if rate, err := strconv.Atoi(v); err == nil {
			speech.SampleRate = rate
		}
	}
	return speech, nil
}

// Health queries GET /health and expects {"status":"healthy"}.
func (h *HTTPBackend) Health(ctx context.Context, endpoint string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(endpoint, "/")+healthPath, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false, fmt.Errorf("read health: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return gjson.GetBytes(body, "status").String() == "healthy", nil
}

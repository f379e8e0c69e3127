package tts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

// Dispatcher performs one bounded synthesis call against one backend.
// It never retries on another backend; failover order belongs to the caller.
type Dispatcher struct {
	backend ports.SpeechBackend
	timeout time.Duration
	format  string
	speed   float64
	logger  *slog.Logger
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds every synthesis call.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		x.timeout = d
	}
}

// WithFormat sets the response_format requested from backends.
func WithFormat(format string) Option {
	return func(x *Dispatcher) {
		x.format = format
	}
}

// WithSpeed sets the speaking rate.
func WithSpeed(speed float64) Option {
	return func(x *Dispatcher) {
		x.speed = speed
	}
}

// WithLogger configures the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Dispatcher) {
		x.logger = logger
	}
}

// NewDispatcher creates a dispatcher over a speech backend client.
func NewDispatcher(backend ports.SpeechBackend, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend: backend,
		timeout: 3 * time.Second,
		format:  "pcm",
		speed:   1.0,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Synthesize renders text with voice on the given backend.
// Failures are returned as *SynthesisError.
func (d *Dispatcher) Synthesize(ctx context.Context, b *domain.BackendDescriptor, voice, text string) (*ports.Speech, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	speech, err := d.backend.Synthesize(callCtx, b.Endpoint, ports.SpeechRequest{
		Input:          text,
		Voice:          voice,
		ResponseFormat: d.format,
		Speed:          d.speed,
	})
	elapsed := time.Since(start)
	if err != nil {
		serr := classify(callCtx, b.Endpoint, err, elapsed)
		d.logger.Warn("tts synthesis failed",
			"endpoint", b.Endpoint,
			"kind", serr.Kind,
			"status", serr.StatusCode,
			"elapsed_ms", elapsed.Milliseconds(),
			"err", err,
		)
		return nil, serr
	}

	speech.Endpoint = b.Endpoint
	d.logger.Debug("tts synthesis done",
		"endpoint", b.Endpoint,
		"bytes", len(speech.Audio),
		"elapsed_ms", elapsed.Milliseconds(),
		"server_latency_ms", speech.ServerLatency.Milliseconds(),
	)
	return speech, nil
}

func classify(ctx context.Context, endpoint string, err error, elapsed time.Duration) *SynthesisError {
	serr := &SynthesisError{Endpoint: endpoint, Elapsed: elapsed, Err: err}

	var status *StatusError
	switch {
	case errors.As(err, &status):
		serr.Kind = KindStatus
		serr.StatusCode = status.Code
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		serr.Kind = KindTimeout
	case strings.Contains(err.Error(), "Client.Timeout"):
		serr.Kind = KindTimeout
	default:
		serr.Kind = KindTransport
	}
	return serr
}

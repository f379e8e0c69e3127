package ports

import (
	"context"
	"time"
)

// SpeechRequest is the body of a synthesis call.
type SpeechRequest struct {
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed"`
}

// Speech is synthesized audio returned by a backend.
type Speech struct {
	Endpoint   string
	Audio      []byte
	Format     string
	SampleRate int
	// ServerLatency is the latency reported by the backend, zero if absent.
	ServerLatency time.Duration
}

// SpeechBackend talks to TTS endpoints sharing one wire protocol.
type SpeechBackend interface {
	Synthesize(ctx context.Context, endpoint string, req SpeechRequest) (*Speech, error)
	// Health probes an endpoint and reports whether it can take traffic.
	Health(ctx context.Context, endpoint string) (bool, error)
}

// AudioSink receives audio destined for the telephony leg of a call.
type AudioSink interface {
	Play(ctx context.Context, callID string, audio []byte) error
}

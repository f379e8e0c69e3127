package testutils

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/callflow/pkg/ports"
)

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StubLLM is a deterministic ports.LLM.
type StubLLM struct {
	// Respond produces the answer. Nil answers "ok".
	Respond func(req ports.CompletionRequest) (string, error)
	Delay   time.Duration

	mu    sync.Mutex
	calls []ports.CompletionRequest
}

func (s *StubLLM) Complete(ctx context.Context, req ports.CompletionRequest) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if err := wait(ctx, s.Delay); err != nil {
		return "", err
	}
	if s.Respond == nil {
		return "ok", nil
	}
	return s.Respond(req)
}

// Calls returns the requests received so far.
func (s *StubLLM) Calls() []ports.CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ports.CompletionRequest, len(s.calls))
	copy(out, s.calls)
	return out
}

// PhraseClassifier satisfies a condition when the utterance contains one of
// its phrases. Conditions are checked in order, so the lowest index wins.
type PhraseClassifier struct {
	Phrases map[string][]string
	Err     error
	Delay   time.Duration

	mu       sync.Mutex
	requests []ports.ClassifyRequest
}

func (c *PhraseClassifier) Classify(ctx context.Context, req ports.ClassifyRequest) (int, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if err := wait(ctx, c.Delay); err != nil {
		return ports.NoMatch, err
	}
	if c.Err != nil {
		return ports.NoMatch, c.Err
	}

	utterance := strings.ToLower(req.Utterance)
	for i, cond := range req.Conditions {
		for _, p := range c.Phrases[cond] {
			if strings.Contains(utterance, strings.ToLower(p)) {
				return i, nil
			}
		}
	}
	return ports.NoMatch, nil
}

// Requests returns the classification requests received so far.
func (c *PhraseClassifier) Requests() []ports.ClassifyRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ports.ClassifyRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// StubSpeech is a deterministic ports.SpeechBackend.
type StubSpeech struct {
	// Fail maps an endpoint to the error it returns.
	Fail map[string]error
	// Unhealthy endpoints fail their health probe.
	Unhealthy map[string]bool
	Delay     time.Duration
	// SampleRate reported with every response; zero means 16000.
	SampleRate int

	mu    sync.Mutex
	calls []string
	texts []string
}

func (s *StubSpeech) Synthesize(ctx context.Context, endpoint string, req ports.SpeechRequest) (*ports.Speech, error) {
	s.mu.Lock()
	s.calls = append(s.calls, endpoint)
	s.texts = append(s.texts, req.Input)
	s.mu.Unlock()

	if err := wait(ctx, s.Delay); err != nil {
		return nil, err
	}
	if err := s.Fail[endpoint]; err != nil {
		return nil, err
	}

	rate := s.SampleRate
	if rate == 0 {
		rate = 16000
	}
	// four silent s16le samples per word
	words := len(strings.Fields(req.Input))
	return &ports.Speech{
		Audio:      make([]byte, words*8),
		Format:     req.ResponseFormat,
		SampleRate: rate,
	}, nil
}

func (s *StubSpeech) Health(ctx context.Context, endpoint string) (bool, error) {
	return !s.Unhealthy[endpoint], nil
}

// Calls returns the endpoints hit, in order.
func (s *StubSpeech) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// Texts returns every synthesized input, in order.
func (s *StubSpeech) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// StubWebhook answers integrations with canned bodies.
type StubWebhook struct {
	Bodies map[string]string
	Errs   map[string]error

	mu       sync.Mutex
	payloads []map[string]any
}

func (w *StubWebhook) Call(ctx context.Context, name string, payload map[string]any) ([]byte, error) {
	w.mu.Lock()
	w.payloads = append(w.payloads, payload)
	w.mu.Unlock()
	if err := w.Errs[name]; err != nil {
		return nil, err
	}
	return []byte(w.Bodies[name]), nil
}

// Payloads returns the request payloads received.
func (w *StubWebhook) Payloads() []map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]map[string]any(nil), w.payloads...)
}

// RecordingSink collects audio played on a call.
type RecordingSink struct {
	mu    sync.Mutex
	plays [][]byte
}

func (r *RecordingSink) Play(ctx context.Context, callID string, audio []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays = append(r.plays, audio)
	return nil
}

// Plays returns how many payloads were played.
func (r *RecordingSink) Plays() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plays)
}

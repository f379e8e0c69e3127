// Package interrupt watches interim transcripts and cuts in when the caller
// rambles past a word threshold.
package interrupt

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/internal/prompt"
	"github.com/aretw0/callflow/pkg/ports"
)

// Partial is one speech recognition update for the current utterance.
// Text is the full transcript so far, not a delta.
type Partial struct {
	Text  string
	Final bool
}

// Target receives what the monitor decides.
type Target interface {
	// Goal returns the current node goal the interjection steers back to.
	Goal() string
	// Speak hands the interjection to synthesis. It runs off the watch loop.
	Speak(ctx context.Context, text string, words int) error
}

// Monitor is the barge-in policy. One Monitor can watch many calls.
type Monitor struct {
	llm       ports.LLM
	threshold int
	timeout   time.Duration
	persona   prompt.Persona
	fallback  string
	logger    *slog.Logger
}

// Option configures the Monitor.
type Option func(*Monitor)

// WithThreshold sets the word count that must be exceeded to cut in.
func WithThreshold(words int) Option {
	return func(m *Monitor) {
		m.threshold = words
	}
}

// WithTimeout bounds the interjection model call.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		m.timeout = d
	}
}

// WithFallback sets the line used when the model is slow or fails.
func WithFallback(text string) Option {
	return func(m *Monitor) {
		m.fallback = text
	}
}

// WithPersona sets the agent persona.
func WithPersona(p prompt.Persona) Option {
	return func(m *Monitor) {
		m.persona = p
	}
}

// WithLogger configures the monitor logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// New creates a monitor. llm may be nil to always use the fallback line.
func New(llm ports.LLM, opts ...Option) *Monitor {
	m := &Monitor{
		llm:       llm,
		threshold: 40,
		timeout:   700 * time.Millisecond,
		fallback:  "Sorry to jump in here, let me make sure I get this right.",
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Watch consumes partials until the channel closes or ctx is done.
// It fires at most once per utterance, only while the caller is still
// talking, and never waits for the interjection to be spoken before reading
// the next partial. Watch returns after in-flight interjections finish.
func (m *Monitor) Watch(ctx context.Context, partials <-chan Partial, target Target) {
	var wg sync.WaitGroup
	defer wg.Wait()

	fired := false
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-partials:
			if !ok {
				return
			}
			if p.Final {
				fired = false
				continue
			}
			words := WordCount(p.Text)
			if fired || words <= m.threshold {
				continue
			}
			fired = true
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.fire(ctx, target, words)
			}()
		}
	}
}

func (m *Monitor) fire(ctx context.Context, target Target, words int) {
	text := m.compose(ctx, target.Goal())
	if ctx.Err() != nil {
		return
	}
	if err := target.Speak(ctx, text, words); err != nil {
		m.logger.Warn("interjection not spoken", "words", words, "err", err)
		return
	}
	m.logger.Debug("interjection spoken", "words", words)
}

func (m *Monitor) compose(ctx context.Context, goal string) string {
	if m.llm == nil {
		return m.fallback
	}
	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	text, err := m.llm.Complete(cctx, ports.CompletionRequest{
		System:      prompt.Interjection(m.persona, goal),
		MaxTokens:   30,
		Temperature: 0.3,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			m.logger.Debug("interjection model failed, using fallback", "err", err)
		}
		return m.fallback
	}
	return text
}

// WordCount counts whitespace separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// Package specialist runs short independent sub-analyses of an utterance
// concurrently and synthesizes their notes into one reply.
package specialist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/internal/prompt"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// ErrSkipped is returned by a specialist that has nothing to add.
var ErrSkipped = errors.New("specialist skipped")

// Input is what every specialist sees.
type Input struct {
	Node      *domain.Node
	Utterance string
	// Recent holds the history before the utterance.
	Recent []domain.HistoryEntry
	Vars   domain.Variables
}

// Specialist is one sub-analysis.
type Specialist interface {
	Kind() domain.SpecialistKind
	Analyze(ctx context.Context, in Input) (string, error)
}

// Team fans out to its specialists and synthesizes the reply.
type Team struct {
	specialists  []Specialist
	llm          ports.LLM
	persona      prompt.Persona
	timeout      time.Duration
	synthTimeout time.Duration
	logger       *slog.Logger
}

// Option configures the Team.
type Option func(*Team)

// WithSpecialistTimeout bounds each specialist independently.
func WithSpecialistTimeout(d time.Duration) Option {
	return func(t *Team) {
		t.timeout = d
	}
}

// WithSynthesisTimeout bounds the synthesis and fallback calls.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(t *Team) {
		t.synthTimeout = d
	}
}

// WithPersona sets the agent persona used in synthesis.
func WithPersona(p prompt.Persona) Option {
	return func(t *Team) {
		t.persona = p
	}
}

// WithLogger configures the team logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Team) {
		t.logger = l
	}
}

// NewTeam creates a team that synthesizes with llm.
func NewTeam(llm ports.LLM, specialists []Specialist, opts ...Option) *Team {
	t := &Team{
		specialists:  specialists,
		llm:          llm,
		timeout:      800 * time.Millisecond,
		synthTimeout: 2 * time.Second,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run executes every specialist concurrently and returns the results of
// those that finished in time, in team order. Timed-out, failed and
// skipped specialists are omitted.
func (t *Team) Run(ctx context.Context, in Input) []domain.SpecialistResult {
	slots := make([]*domain.SpecialistResult, len(t.specialists))

	var g errgroup.Group
	for i, s := range t.specialists {
		g.Go(func() error {
			slots[i] = t.runOne(ctx, s, in)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		// a cancelled turn never hands partial analysis to synthesis
		return nil
	}

	out := make([]domain.SpecialistResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

type outcome struct {
	value string
	err   error
}

func (t *Team) runOne(ctx context.Context, s Specialist, in Input) *domain.SpecialistResult {
	sctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan outcome, 1)
	go func() {
		v, err := s.Analyze(sctx, in)
		done <- outcome{v, err}
	}()

	select {
	case <-sctx.Done():
		t.logger.Debug("specialist omitted", "kind", s.Kind(), "reason", sctx.Err())
		return nil
	case o := <-done:
		elapsed := time.Since(start)
		if o.err != nil {
			if !errors.Is(o.err, ErrSkipped) {
				t.logger.Warn("specialist failed", "kind", s.Kind(), "err", o.err)
			}
			return nil
		}
		return &domain.SpecialistResult{Kind: s.Kind(), Value: o.value, Latency: elapsed}
	}
}

// Reply is the synthesized answer of a team turn.
type Reply struct {
	Text    string
	Results []domain.SpecialistResult
	// Fallback is set when the reply came from direct generation.
	Fallback bool
}

// Respond runs the team and synthesizes a reply toward goal. If no
// specialist answered or synthesis fails, it generates directly from goal.
func (t *Team) Respond(ctx context.Context, in Input, goal string) (Reply, error) {
	results := t.Run(ctx, in)
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	if len(results) > 0 {
		text, err := t.complete(ctx, prompt.Synthesis(t.persona, goal, results), in)
		if err == nil {
			return Reply{Text: text, Results: results}, nil
		}
		if ctx.Err() != nil {
			return Reply{}, ctx.Err()
		}
		t.logger.Warn("synthesis failed, generating directly", "node_id", in.Node.ID, "err", err)
	}

	text, err := t.complete(ctx, prompt.Goal(t.persona, goal, false), in)
	if err != nil {
		return Reply{Results: results}, fmt.Errorf("direct generation: %w", err)
	}
	return Reply{Text: text, Results: results, Fallback: true}, nil
}

func (t *Team) complete(ctx context.Context, system string, in Input) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.synthTimeout)
	defer cancel()
	return t.llm.Complete(ctx, ports.CompletionRequest{
		System:      system,
		Messages:    prompt.Messages(in.Recent, in.Utterance),
		MaxTokens:   120,
		Temperature: 0.4,
	})
}

// Package runtime is the session orchestrator. An Engine holds the
// process-wide services and a Call drives the state machine of one live call.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/callflow/internal/evaluator"
	"github.com/aretw0/callflow/internal/extractor"
	"github.com/aretw0/callflow/internal/interrupt"
	"github.com/aretw0/callflow/internal/latency"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/internal/prompt"
	"github.com/aretw0/callflow/internal/specialist"
	"github.com/aretw0/callflow/internal/tts"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
)

// Services is the registry of collaborators shared by every call.
// It is built once at startup and passed in; nothing here is global.
type Services struct {
	Graph     *domain.FlowGraph
	Evaluator *evaluator.Evaluator
	Extractor *extractor.Extractor
	// LLM generates goal driven replies. Nil speaks node content verbatim.
	LLM ports.LLM
	// Team handles nodes flagged for the specialist pipeline. Nil uses LLM.
	Team *specialist.Team
	// Monitor enables barge-in handling. Nil disables it.
	Monitor *interrupt.Monitor

	// Dispatcher and Pools turn replies into audio. Without them calls are text only.
	Dispatcher *tts.Dispatcher
	Pools      map[string]*tts.Pool
	Voice      string
	Sink       ports.AudioSink

	Sessions *session.Manager
	Latency  *latency.Recorder
}

// Lines are the canned utterances used when generation is not possible.
type Lines struct {
	// Fallback replaces a reply that failed to generate.
	Fallback string
	// Stall is spoken when the turn budget runs out.
	Stall string
	// Closing ends a call that cannot continue.
	Closing string
}

// DefaultLines returns neutral English lines.
func DefaultLines() Lines {
	return Lines{
		Fallback: "Sorry, could you say that again?",
		Stall:    "Just a moment, please.",
		Closing:  "I'm sorry, we're having technical trouble. We'll call you back shortly. Goodbye.",
	}
}

// Engine creates and tracks calls over one flow graph.
type Engine struct {
	svc   Services
	lines Lines

	persona       prompt.Persona
	turnTimeout   time.Duration
	speechReserve time.Duration
	saveTimeout   time.Duration
	contextTurns  int
	maxFailures   int
	hooks         domain.LifecycleHooks
	logger        *slog.Logger
	now           func() time.Time

	mu    sync.Mutex
	calls map[string]*Call
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(h domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithPersona sets the framing of generated replies.
func WithPersona(p prompt.Persona) EngineOption {
	return func(e *Engine) {
		e.persona = p
	}
}

// WithTurnTimeout bounds the time between the end of user speech and the reply.
func WithTurnTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.turnTimeout = d
	}
}

// WithSpeechReserve sets how much of the turn timeout is kept for speaking
// the reply, failover included. It is capped at half the turn timeout.
func WithSpeechReserve(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.speechReserve = d
	}
}

// WithContextTurns sets how many history entries generation sees.
func WithContextTurns(n int) EngineOption {
	return func(e *Engine) {
		e.contextTurns = n
	}
}

// WithMaxConsecutiveFailures sets how many degraded turns in a row end the call.
func WithMaxConsecutiveFailures(n int) EngineOption {
	return func(e *Engine) {
		e.maxFailures = n
	}
}

// WithLines overrides the non-empty canned lines.
func WithLines(l Lines) EngineOption {
	return func(e *Engine) {
		if l.Fallback != "" {
			e.lines.Fallback = l.Fallback
		}
		if l.Stall != "" {
			e.lines.Stall = l.Stall
		}
		if l.Closing != "" {
			e.lines.Closing = l.Closing
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine validates the services and creates an Engine.
func NewEngine(svc Services, opts ...EngineOption) (*Engine, error) {
	if svc.Graph == nil {
		return nil, fmt.Errorf("runtime: flow graph is required")
	}
	if svc.Evaluator == nil {
		return nil, fmt.Errorf("runtime: evaluator is required")
	}
	if svc.Dispatcher != nil && svc.Pools[svc.Voice] == nil {
		return nil, fmt.Errorf("runtime: no tts pool for voice %q", svc.Voice)
	}

	e := &Engine{
		svc:           svc,
		lines:         DefaultLines(),
		turnTimeout:   4 * time.Second,
		speechReserve: time.Second,
		saveTimeout:   2 * time.Second,
		contextTurns:  2,
		maxFailures:   3,
		logger:        logging.NewNop(),
		now:           time.Now,
		calls:         make(map[string]*Call),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.svc.Extractor == nil {
		e.svc.Extractor = extractor.New(nil)
	}
	if e.svc.Sessions == nil {
		e.svc.Sessions = session.NewManager(memory.NewStore())
	}
	if e.svc.Latency == nil {
		e.svc.Latency = latency.NewRecorder(latency.WithLogger(e.logger))
	}
	return e, nil
}

// decideBudget is the part of the turn timeout left for deciding the reply.
func (e *Engine) decideBudget() time.Duration {
	reserve := e.speechReserve
	if reserve > e.turnTimeout/2 {
		reserve = e.turnTimeout / 2
	}
	return e.turnTimeout - reserve
}

// Graph returns the flow graph the engine runs.
func (e *Engine) Graph() *domain.FlowGraph {
	return e.svc.Graph
}

// StartCall creates the Call for callID, resuming an active snapshot when
// the store holds one. vars seeds a new call with known data such as the
// lead's name; a resumed call keeps its own variables. The call lives until
// End or an ending node, not until ctx is done.
func (e *Engine) StartCall(ctx context.Context, callID string, vars domain.Variables) (*Call, error) {
	if callID == "" {
		return nil, fmt.Errorf("runtime: call id is required")
	}

	e.mu.Lock()
	if c, ok := e.calls[callID]; ok {
		e.mu.Unlock()
		return c, nil
	}
	e.mu.Unlock()

	sess, resumed, err := e.svc.Sessions.LoadOrStart(ctx, callID, e.svc.Graph.Start(), e.now())
	if err != nil {
		return nil, fmt.Errorf("start call %s: %w", callID, err)
	}
	if !resumed {
		for k, v := range vars.Clone() {
			sess.Variables.Set(k, v)
		}
	}

	c := newCall(e, sess)

	e.mu.Lock()
	if existing, ok := e.calls[callID]; ok {
		e.mu.Unlock()
		c.cancel()
		return existing, nil
	}
	e.calls[callID] = c
	e.mu.Unlock()

	c.logger.Info("call started", "node_id", sess.CurrentNodeID, "resumed", resumed)
	if e.hooks.OnCallStart != nil {
		e.hooks.OnCallStart(ctx, &domain.CallEvent{
			EventBase: e.event(domain.EventCallStart, callID),
			NodeID:    sess.CurrentNodeID,
		})
	}
	return c, nil
}

// Call returns the live call with the given id.
func (e *Engine) Call(callID string) (*Call, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.calls[callID]
	return c, ok
}

// Calls lists the ids of live calls in sorted order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.calls))
	for id := range e.calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown ends every live call.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	calls := make([]*Call, 0, len(e.calls))
	for _, c := range e.calls {
		calls = append(calls, c)
	}
	e.mu.Unlock()

	var firstErr error
	for _, c := range calls {
		if err := c.End(ctx, "shutdown"); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) forget(callID string) {
	e.mu.Lock()
	delete(e.calls, callID)
	e.mu.Unlock()
}

func (e *Engine) event(t domain.EventType, callID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, CallID: callID}
}

package callflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aretw0/callflow/internal/runtime"
	"github.com/aretw0/callflow/internal/tts"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/session"
)

// Engine is the high-level entry point: it owns the runtime and the
// services behind it and exposes call control by call id.
type Engine struct {
	runtime     *runtime.Engine
	svc         *Services
	hooks       []domain.LifecycleHooks
	runtimeOpts []runtime.EngineOption
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks. Several calls add up;
// the built-in logging and metrics hooks always run first.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks)
	}
}

// WithLogger sets the structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRuntimeOptions passes options straight to the turn runtime.
func WithRuntimeOptions(opts ...runtime.EngineOption) Option {
	return func(e *Engine) {
		e.runtimeOpts = append(e.runtimeOpts, opts...)
	}
}

// New creates an Engine over svc.
func New(svc *Services, opts ...Option) (*Engine, error) {
	if svc == nil {
		return nil, fmt.Errorf("callflow: services are required")
	}
	e := &Engine{svc: svc, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(e)
	}
	if svc.Sessions == nil {
		svc.Sessions = session.NewManager(memory.NewStore())
	}

	hooks := observability.Merge(append([]domain.LifecycleHooks{observability.Hooks(e.logger, svc.Metrics)}, e.hooks...)...)
	rtOpts := append([]runtime.EngineOption{
		runtime.WithLogger(e.logger),
		runtime.WithLifecycleHooks(hooks),
	}, e.runtimeOpts...)

	rt, err := runtime.NewEngine(svc.Services, rtOpts...)
	if err != nil {
		return nil, err
	}
	e.runtime = rt
	return e, nil
}

// Graph returns the flow the engine runs.
func (e *Engine) Graph() *domain.FlowGraph {
	return e.runtime.Graph()
}

// Services returns the collaborators the engine was built with.
func (e *Engine) Services() *Services {
	return e.svc
}

// Start begins callID and returns the greeting. A call that is already
// active (here or in the shared store) is resumed and the result is nil.
func (e *Engine) Start(ctx context.Context, callID string, vars domain.Variables) (*domain.TurnResult, error) {
	c, err := e.runtime.StartCall(ctx, callID, vars)
	if err != nil {
		return nil, err
	}
	return c.Open(ctx)
}

// Call returns the live call for callID, starting it when it is new.
func (e *Engine) Call(ctx context.Context, callID string, vars domain.Variables) (*runtime.Call, error) {
	return e.runtime.StartCall(ctx, callID, vars)
}

// lookup returns the live call, resuming an active snapshot another
// replica left behind. Unknown calls report ErrSessionNotFound.
func (e *Engine) lookup(ctx context.Context, callID string) (*runtime.Call, error) {
	if c, ok := e.runtime.Call(callID); ok {
		return c, nil
	}
	snap, err := e.svc.Sessions.Load(ctx, callID)
	if err != nil {
		return nil, err
	}
	if snap.Ended() {
		return nil, domain.ErrCallEnded
	}
	return e.runtime.StartCall(ctx, callID, nil)
}

// Turn runs one caller utterance through callID's turn pipeline.
func (e *Engine) Turn(ctx context.Context, callID, utterance string) (*domain.TurnResult, error) {
	c, err := e.lookup(ctx, callID)
	if err != nil {
		return nil, err
	}
	return c.HandleTurn(ctx, utterance)
}

// Deliver queues an asynchronously received integration response.
func (e *Engine) Deliver(ctx context.Context, callID string, body []byte) error {
	c, err := e.lookup(ctx, callID)
	if err != nil {
		return err
	}
	return c.DeliverWebhook(body)
}

// Hangup ends callID, discarding any turn in flight.
func (e *Engine) Hangup(ctx context.Context, callID, reason string) error {
	c, err := e.lookup(ctx, callID)
	if err != nil {
		return err
	}
	return c.End(ctx, reason)
}

// Session returns the snapshot of callID, live or stored.
func (e *Engine) Session(ctx context.Context, callID string) (*domain.CallSession, error) {
	if c, ok := e.runtime.Call(callID); ok {
		return c.Session(), nil
	}
	return e.svc.Sessions.Load(ctx, callID)
}

// Active lists the ids of calls live in this process.
func (e *Engine) Active() []string {
	return e.runtime.Calls()
}

// Ready reports whether every voice has a healthy backend and external
// state is reachable.
func (e *Engine) Ready(ctx context.Context) error {
	var errs []error
	voices := make([]string, 0, len(e.svc.Pools))
	for v := range e.svc.Pools {
		voices = append(voices, v)
	}
	sort.Strings(voices)
	for _, v := range voices {
		if len(e.svc.Pools[v].Healthy()) == 0 {
			errs = append(errs, fmt.Errorf("voice %s: %w", v, tts.ErrNoHealthyBackend))
		}
	}
	if e.svc.Ping != nil {
		if err := e.svc.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown ends every live call.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.runtime.Shutdown(ctx)
}

package callflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"

	"github.com/aretw0/callflow/internal/compiler"
	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/internal/evaluator"
	"github.com/aretw0/callflow/internal/extractor"
	"github.com/aretw0/callflow/internal/interrupt"
	"github.com/aretw0/callflow/internal/knowledge"
	"github.com/aretw0/callflow/internal/latency"
	"github.com/aretw0/callflow/internal/llm"
	"github.com/aretw0/callflow/internal/prompt"
	"github.com/aretw0/callflow/internal/runtime"
	"github.com/aretw0/callflow/internal/specialist"
	"github.com/aretw0/callflow/internal/tts"
	"github.com/aretw0/callflow/internal/webhook"
	loamAdapter "github.com/aretw0/callflow/pkg/adapters/loam"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/callflow/pkg/adapters/redis"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/persistence/middleware"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/registry"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
)

// Services is the registry of collaborators a running engine uses. It is
// built once at startup and handed to New; nothing in it is global.
type Services struct {
	runtime.Services

	// Loader is the raw node source the graph was compiled from.
	Loader ports.GraphLoader
	// Health probes the TTS pools on a cron schedule when started.
	Health *tts.HealthChecker
	// Registry gathers every collector registered by the services.
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	// Ping checks external state (redis) for readiness.
	Ping func(context.Context) error

	closers []func() error
}

// Close releases connections and indexes held by the services.
func (s *Services) Close() error {
	if s.Health != nil {
		s.Health.Stop()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// OpenFlow opens the node source at path without compiling it. A directory
// is opened as a loam repository with one document per node; a file holds
// the whole node list in JSON or YAML. The declared start node is returned
// ("start" for a directory).
func OpenFlow(path string) (ports.GraphLoader, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("flow: %w", err)
	}

	if info.IsDir() {
		loader, err := loamAdapter.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("flow: %w", err)
		}
		return loader, "start", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("flow: %w", err)
	}
	declared, nodes, err := compiler.NewParser().ParseFlow(data)
	if err != nil {
		return nil, "", fmt.Errorf("flow %s: %w", filepath.Base(path), err)
	}
	loader, err := memory.NewFromNodes(nodes...)
	if err != nil {
		return nil, "", err
	}
	return loader, declared, nil
}

// LoadFlow opens the flow at path and compiles it into a graph. A non-empty
// start overrides the declared one.
func LoadFlow(path, start string) (*domain.FlowGraph, ports.GraphLoader, error) {
	loader, declared, err := OpenFlow(path)
	if err != nil {
		return nil, nil, err
	}
	if start == "" {
		start = declared
	}
	g, err := compiler.Build(loader, start)
	if err != nil {
		return nil, nil, fmt.Errorf("flow %s: %w", filepath.Base(path), err)
	}
	return g, loader, nil
}

// BuildServices wires every collaborator described by cfg.
func BuildServices(cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	svc := &Services{Registry: prometheus.NewRegistry()}
	ok := false
	defer func() {
		if !ok {
			_ = svc.Close()
		}
	}()

	svc.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc.Metrics = observability.NewMetrics(svc.Registry)

	g, loader, err := LoadFlow(cfg.Flow.Path, cfg.Flow.Start)
	if err != nil {
		return nil, err
	}
	svc.Graph, svc.Loader = g, loader

	persona := Persona(cfg)

	if cfg.LLM.APIKey == "" {
		logger.Warn("llm api key is empty; requests may be rejected", "base_url", cfg.LLM.BaseURL)
	}
	model := llm.New(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model,
		llm.WithMaxRetryTime(cfg.LLM.MaxRetryTime),
		llm.WithLogger(logger.With("component", "llm")),
	)
	svc.LLM = model

	svc.Evaluator = evaluator.New(evaluator.NewLLMClassifier(model),
		evaluator.WithContextTurns(cfg.Turn.ContextTurns),
		evaluator.WithTimeout(cfg.Turn.ClassifierTimeout),
		evaluator.WithLogger(logger.With("component", "evaluator")),
	)

	integrations := registry.NewRegistry()
	for _, in := range cfg.Webhooks {
		if err := integrations.Register(in); err != nil {
			return nil, fmt.Errorf("webhooks: %w", err)
		}
	}
	svc.Extractor = extractor.New(model,
		extractor.WithWebhookCaller(webhook.New(integrations, webhook.WithLogger(logger.With("component", "webhook")))),
		extractor.WithTimeout(cfg.Turn.ExtractionTimeout),
		extractor.WithLogger(logger.With("component", "extractor")),
	)

	var kb ports.KnowledgeBase
	if cfg.Knowledge.Dir != "" {
		idx, err := knowledge.New()
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, idx.Close)
		n, err := idx.LoadDir(cfg.Knowledge.Dir)
		if err != nil {
			return nil, fmt.Errorf("knowledge: %w", err)
		}
		logger.Info("knowledge indexed", "dir", cfg.Knowledge.Dir, "passages", n)
		kb = idx
	}
	svc.Team = specialist.NewTeam(model, specialist.Default(model, kb),
		specialist.WithSpecialistTimeout(cfg.Turn.SpecialistTimeout),
		specialist.WithSynthesisTimeout(cfg.Turn.SynthesisTimeout),
		specialist.WithPersona(persona),
		specialist.WithLogger(logger.With("component", "specialist")),
	)

	if cfg.Interruption.Enabled {
		opts := []interrupt.Option{
			interrupt.WithThreshold(cfg.Interruption.Threshold),
			interrupt.WithTimeout(cfg.Interruption.Timeout),
			interrupt.WithPersona(persona),
			interrupt.WithLogger(logger.With("component", "interrupt")),
		}
		if cfg.Interruption.Fallback != "" {
			opts = append(opts, interrupt.WithFallback(cfg.Interruption.Fallback))
		}
		svc.Monitor = interrupt.New(model, opts...)
	}

	if err := svc.buildSpeech(cfg, logger); err != nil {
		return nil, err
	}
	if err := svc.buildSessions(cfg, logger); err != nil {
		return nil, err
	}

	svc.Latency = latency.NewRecorder(
		latency.WithLogger(logger.With("component", "latency")),
		latency.WithRegisterer(svc.Registry),
	)

	ok = true
	return svc, nil
}

func (s *Services) buildSpeech(cfg *config.Config, logger *slog.Logger) error {
	if len(cfg.TTS.Voices) == 0 {
		logger.Info("no tts voices configured; replies are text only")
		return nil
	}
	strategy, err := tts.ParseStrategy(cfg.TTS.Strategy)
	if err != nil {
		return err
	}

	backend := tts.NewHTTPBackend(&http.Client{}, cfg.TTS.APIKey)
	s.Pools = make(map[string]*tts.Pool, len(cfg.TTS.Voices))
	pools := make([]*tts.Pool, 0, len(cfg.TTS.Voices))
	for voice, endpoints := range cfg.TTS.Voices {
		p := tts.NewPool(voice, strategy, endpoints...)
		s.Pools[voice] = p
		pools = append(pools, p)
	}
	s.Voice = cfg.TTS.Voice
	s.Dispatcher = tts.NewDispatcher(backend,
		tts.WithTimeout(cfg.TTS.Timeout),
		tts.WithFormat(cfg.TTS.Format),
		tts.WithSpeed(cfg.TTS.Speed),
		tts.WithLogger(logger.With("component", "tts")),
	)
	s.Health = tts.NewHealthChecker(backend, pools,
		tts.WithHealthTimeout(cfg.TTS.HealthTimeout),
		tts.WithHealthLogger(logger.With("component", "tts_health")),
		tts.WithHealthRegisterer(s.Registry),
	)
	return nil
}

func (s *Services) buildSessions(cfg *config.Config, logger *slog.Logger) error {
	sessions, ping, closer, err := OpenSessions(cfg, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	s.Sessions, s.Ping = sessions, ping
	return nil
}

// OpenSessions builds the session manager described by cfg: redis-backed
// with distributed call locks when an address is set, in memory otherwise,
// with PII masking and encryption layered on top. ping and closer are nil
// for the in-memory store.
func OpenSessions(cfg *config.Config, logger *slog.Logger) (sessions *session.Manager, ping func(context.Context) error, closer func() error, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var (
		store ports.SessionStore
		opts  = []session.Option{session.WithLogger(logger.With("component", "session"))}
	)

	if cfg.Redis.Addr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
		closer = rdb.Close
		store = redisAdapter.NewFromClient(rdb,
			redisAdapter.WithPrefix(cfg.Redis.Prefix),
			redisAdapter.WithTTL(cfg.Redis.TTL),
		)
		opts = append(opts,
			session.WithLocker(redisAdapter.NewLocker(rdb, cfg.Redis.Prefix)),
			session.WithLockTTL(cfg.Redis.LockTTL),
		)
		ping = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	} else {
		store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if cfg.PII.Enabled && len(cfg.PII.Variables) > 0 {
		patterns := make([]string, len(cfg.PII.Variables))
		for i, name := range cfg.PII.Variables {
			patterns[i] = "^" + regexp.QuoteMeta(name) + "$"
		}
		mws = append(mws, middleware.NewPIIMiddleware(patterns))
	}
	if cfg.Encryption.Key != "" {
		previous := make([][]byte, len(cfg.Encryption.PreviousKeys))
		for i, k := range cfg.Encryption.PreviousKeys {
			previous[i] = []byte(k)
		}
		seal, err := middleware.NewEncryptionMiddleware([]byte(cfg.Encryption.Key), previous...)
		if err != nil {
			if closer != nil {
				_ = closer()
			}
			return nil, nil, nil, fmt.Errorf("session encryption: %w", err)
		}
		mws = append(mws, seal)
	}
	return session.NewManager(middleware.Chain(store, mws...), opts...), ping, closer, nil
}

// Persona maps the configured persona onto the prompt framing.
func Persona(cfg *config.Config) prompt.Persona {
	return prompt.Persona{
		AgentName: cfg.Persona.AgentName,
		Company:   cfg.Persona.Company,
		Style:     cfg.Persona.Style,
	}
}

// EngineOptions maps the turn section of cfg onto runtime options.
func EngineOptions(cfg *config.Config) []Option {
	return []Option{
		WithRuntimeOptions(
			runtime.WithPersona(Persona(cfg)),
			runtime.WithTurnTimeout(cfg.Turn.Timeout),
			runtime.WithSpeechReserve(cfg.Turn.SpeechReserve),
			runtime.WithContextTurns(cfg.Turn.ContextTurns),
			runtime.WithMaxConsecutiveFailures(cfg.Turn.MaxConsecutiveFailures),
			runtime.WithLines(runtime.Lines{
				Fallback: cfg.Turn.FallbackLine,
				Stall:    cfg.Turn.StallLine,
				Closing:  cfg.Turn.ClosingLine,
			}),
		),
	}
}

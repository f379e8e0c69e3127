package tts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// HealthChecker refreshes backend health flags independently of call traffic.
type HealthChecker struct {
	backend ports.SpeechBackend
	pools   []*Pool
	timeout time.Duration
	logger  *slog.Logger
	gauge   *prometheus.GaugeVec
	now     func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// HealthOption configures the HealthChecker.
type HealthOption func(*HealthChecker)

// WithHealthTimeout bounds each probe.
func WithHealthTimeout(d time.Duration) HealthOption {
	return func(h *HealthChecker) {
		h.timeout = d
	}
}

// WithHealthLogger configures the checker logger.
func WithHealthLogger(logger *slog.Logger) HealthOption {
	return func(h *HealthChecker) {
		h.logger = logger
	}
}

// WithHealthRegisterer exports a backend health gauge.
func WithHealthRegisterer(reg prometheus.Registerer) HealthOption {
	return func(h *HealthChecker) {
		h.gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "callflow_tts_backend_healthy",
			Help: "1 when the TTS backend passed its last health check.",
		}, []string{"voice", "endpoint"})
		reg.MustRegister(h.gauge)
	}
}

// NewHealthChecker creates a checker over the given pools.
func NewHealthChecker(backend ports.SpeechBackend, pools []*Pool, opts ...HealthOption) *HealthChecker {
	h := &HealthChecker{
		backend: backend,
		pools:   pools,
		timeout: 2 * time.Second,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CheckAll probes every backend concurrently and records the outcome.
func (h *HealthChecker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, pool := range h.pools {
		for _, b := range pool.Backends() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
				defer cancel()

				healthy, err := h.backend.Health(probeCtx, b.Endpoint)
				if err != nil {
					healthy = false
				}
				was := b.Healthy()
				b.SetHealth(healthy, h.now())

				if was != healthy {
					h.logger.Warn("tts backend health changed",
						"voice", pool.Voice(),
						"endpoint", b.Endpoint,
						"healthy", healthy,
						"err", err,
					)
				}
				if h.gauge != nil {
					v := 0.0
					if healthy {
						v = 1
					}
					h.gauge.WithLabelValues(pool.Voice(), b.Endpoint).Set(v)
				}
			}()
		}
	}
	wg.Wait()
}

// Start runs CheckAll on a cron schedule such as "@every 30s".
func (h *HealthChecker) Start(ctx context.Context, schedule string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cron != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { h.CheckAll(ctx) }); err != nil {
		return err
	}
	h.cron = c
	c.Start()
	h.logger.Info("tts health checks scheduled", "schedule", schedule)
	return nil
}

// Stop halts scheduling and waits for a running check to finish.
func (h *HealthChecker) Stop() {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// ValidateSchedule reports whether schedule is a usable cron spec.
func ValidateSchedule(schedule string) error {
	_, err := cron.ParseStandard(schedule)
	return err
}

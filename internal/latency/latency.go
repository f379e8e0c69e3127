// Package latency timestamps the stages of each conversational turn.
package latency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Mark names a checkpoint in the turn pipeline.
type Mark string

const (
	FirstSentence   Mark = "first_sentence"
	FirstTTSRequest Mark = "first_tts_request"
	FirstAudioByte  Mark = "first_audio_byte"
	EndToEnd        Mark = "end_to_end"
)

// Marks lists every checkpoint in pipeline order.
var Marks = []Mark{FirstSentence, FirstTTSRequest, FirstAudioByte, EndToEnd}

// Recorder creates per-turn trackers and exports their marks.
type Recorder struct {
	logger *slog.Logger
	hist   *prometheus.HistogramVec
	now    func() time.Time
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets where the per-turn latency line is written.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithRegisterer exports a histogram per mark.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Recorder) {
		r.hist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callflow_turn_latency_seconds",
			Help:    "Time from end of user speech to each turn pipeline checkpoint.",
			Buckets: []float64{.1, .2, .3, .5, .75, 1, 1.5, 2, 3, 5},
		}, []string{"mark"})
		reg.MustRegister(r.hist)
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a Recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins tracking one turn.
func (r *Recorder) Start(callID string, turn int) *Turn {
	return &Turn{
		rec:    r,
		callID: callID,
		turn:   turn,
		start:  r.now(),
		marks:  make(map[Mark]time.Duration, len(Marks)),
	}
}

// Turn tracks the checkpoints of one turn. A nil *Turn ignores every call.
type Turn struct {
	rec    *Recorder
	callID string
	turn   int
	start  time.Time

	mu       sync.Mutex
	marks    map[Mark]time.Duration
	finished bool
}

// Mark records m the first time it is reached.
func (t *Turn) Mark(m Mark) {
	if t == nil {
		return
	}
	now := t.rec.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return
	}
	if _, ok := t.marks[m]; !ok {
		t.marks[m] = now.Sub(t.start)
	}
}

// Elapsed returns the recorded offset of m.
func (t *Turn) Elapsed(m Mark) (time.Duration, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.marks[m]
	return d, ok
}

// Finish records the end-to-end mark, writes one structured log line and
// observes the histograms. Later calls are no-ops.
func (t *Turn) Finish(attrs ...any) map[Mark]time.Duration {
	if t == nil {
		return nil
	}
	t.Mark(EndToEnd)

	t.mu.Lock()
	if t.finished {
		t.mu.Unlock()
		return nil
	}
	t.finished = true
	snapshot := make(map[Mark]time.Duration, len(t.marks))
	for k, v := range t.marks {
		snapshot[k] = v
	}
	t.mu.Unlock()

	fields := []any{"call_id", t.callID, "turn", t.turn}
	for _, m := range Marks {
		if d, ok := snapshot[m]; ok {
			fields = append(fields, string(m)+"_ms", d.Milliseconds())
			if t.rec.hist != nil {
				t.rec.hist.WithLabelValues(string(m)).Observe(d.Seconds())
			}
		}
	}
	fields = append(fields, attrs...)
	t.rec.logger.Info("turn latency", fields...)
	return snapshot
}

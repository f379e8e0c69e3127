package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the call-level collectors.
type Metrics struct {
	Calls         *prometheus.CounterVec
	ActiveCalls   prometheus.Gauge
	NodeVisits    *prometheus.CounterVec
	Turns         *prometheus.CounterVec
	TurnDuration  prometheus.Histogram
	Interjections prometheus.Counter
	Webhooks      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callflow_calls_total",
			Help: "Calls that ended, by end reason.",
		}, []string{"reason"}),
		ActiveCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "callflow_active_calls",
			Help: "Calls currently in progress.",
		}),
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callflow_node_visits_total",
			Help: "Total number of node visits.",
		}, []string{"node_id"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callflow_turns_total",
			Help: "Committed turns by outcome (moved, stayed, degraded).",
		}, []string{"outcome"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "callflow_turn_duration_seconds",
			Help:    "Wall time of a committed turn.",
			Buckets: []float64{.1, .25, .5, .75, 1, 1.5, 2, 3, 5},
		}),
		Interjections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callflow_interjections_total",
			Help: "Barge-in interjections spoken.",
		}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callflow_webhook_calls_total",
			Help: "Integration calls made during extraction, by integration and outcome.",
		}, []string{"name", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Calls, m.ActiveCalls, m.NodeVisits, m.Turns, m.TurnDuration, m.Interjections, m.Webhooks)
	}
	return m
}

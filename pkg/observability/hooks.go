package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/callflow/pkg/domain"
)

// Hooks returns lifecycle hooks that log each event and update m.
// Either argument may be nil.
func Hooks(logger *slog.Logger, m *Metrics) domain.LifecycleHooks {
	log := func(ctx context.Context, level slog.Level, msg string, attrs ...any) {
		if logger != nil {
			logger.Log(ctx, level, msg, attrs...)
		}
	}

	return domain.LifecycleHooks{
		OnCallStart: func(ctx context.Context, e *domain.CallEvent) {
			log(ctx, slog.LevelInfo, "call_start", "call_id", e.CallID, "node_id", e.NodeID)
			if m != nil {
				m.ActiveCalls.Inc()
			}
		},
		OnCallEnd: func(ctx context.Context, e *domain.CallEvent) {
			log(ctx, slog.LevelInfo, "call_end", "call_id", e.CallID, "node_id", e.NodeID, "reason", e.Reason)
			if m != nil {
				m.ActiveCalls.Dec()
				m.Calls.WithLabelValues(e.Reason).Inc()
			}
		},
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			log(ctx, slog.LevelDebug, "node_enter", "call_id", e.CallID, "node_id", e.NodeID, "type", e.NodeKind)
			if m != nil {
				m.NodeVisits.WithLabelValues(e.NodeID).Inc()
			}
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			log(ctx, slog.LevelDebug, "node_leave", "call_id", e.CallID, "node_id", e.NodeID)
		},
		OnTurnComplete: func(ctx context.Context, e *domain.TurnEvent) {
			outcome := turnOutcome(e.Result)
			attrs := []any{
				"call_id", e.CallID,
				"turn", e.Result.Turn,
				"node_id", e.Result.NodeID,
				"outcome", outcome,
				"duration_ms", e.Duration.Milliseconds(),
			}
			if len(e.Result.Changed) > 0 {
				attrs = append(attrs, "changed", e.Result.Changed)
			}
			log(ctx, slog.LevelInfo, "turn_complete", attrs...)
			if m != nil {
				m.Turns.WithLabelValues(outcome).Inc()
				m.TurnDuration.Observe(e.Duration.Seconds())
			}
		},
		OnInterjection: func(ctx context.Context, e *domain.InterjectionEvent) {
			log(ctx, slog.LevelInfo, "interjection", "call_id", e.CallID, "node_id", e.NodeID, "words", e.WordCount)
			if m != nil {
				m.Interjections.Inc()
			}
		},
		OnWebhookCall: func(ctx context.Context, e *domain.WebhookEvent) {
			log(ctx, slog.LevelInfo, "webhook_call",
				"call_id", e.CallID,
				"name", e.Name,
				"updates", len(e.Updates),
				"is_error", e.IsError,
			)
			if m != nil {
				outcome := "ok"
				if e.IsError {
					outcome = "error"
				}
				m.Webhooks.WithLabelValues(e.Name, outcome).Inc()
			}
		},
	}
}

func turnOutcome(r *domain.TurnResult) string {
	switch {
	case r == nil:
		return "unknown"
	case r.Degraded:
		return "degraded"
	case r.Moved:
		return "moved"
	default:
		return "stayed"
	}
}

// Merge combines several hook sets; each event fans out in argument order.
func Merge(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnCallStart = chain(out.OnCallStart, h.OnCallStart)
		out.OnCallEnd = chain(out.OnCallEnd, h.OnCallEnd)
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnTurnComplete = chain(out.OnTurnComplete, h.OnTurnComplete)
		out.OnInterjection = chain(out.OnInterjection, h.OnInterjection)
		out.OnWebhookCall = chain(out.OnWebhookCall, h.OnWebhookCall)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

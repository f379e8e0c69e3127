package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooks_LogAndCount(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	hooks := observability.Hooks(logger, m)
	ctx := context.Background()

	base := domain.EventBase{CallID: "c1", Timestamp: time.Now()}
	hooks.OnCallStart(ctx, &domain.CallEvent{EventBase: base, NodeID: "greet"})
	hooks.OnNodeEnter(ctx, &domain.NodeEvent{EventBase: base, NodeID: "greet", NodeKind: domain.KindConversation})
	hooks.OnTurnComplete(ctx, &domain.TurnEvent{
		EventBase: base,
		Result:    &domain.TurnResult{CallID: "c1", Turn: 1, NodeID: "book", Moved: true, Changed: []string{"name"}},
		Duration:  300 * time.Millisecond,
	})
	hooks.OnTurnComplete(ctx, &domain.TurnEvent{
		EventBase: base,
		Result:    &domain.TurnResult{CallID: "c1", Turn: 2, NodeID: "book", Degraded: true},
	})
	hooks.OnWebhookCall(ctx, &domain.WebhookEvent{EventBase: base, Name: "crm", IsError: true})
	hooks.OnInterjection(ctx, &domain.InterjectionEvent{EventBase: base, WordCount: 45})
	hooks.OnCallEnd(ctx, &domain.CallEvent{EventBase: base, NodeID: "bye", Reason: "ending_node"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NodeVisits.WithLabelValues("greet")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("moved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Turns.WithLabelValues("degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Webhooks.WithLabelValues("crm", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Interjections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calls.WithLabelValues("ending_node")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveCalls))

	out := buf.String()
	assert.Contains(t, out, "msg=turn_complete")
	assert.Contains(t, out, "outcome=moved")
	assert.Contains(t, out, "call_id=c1")

	count, err := testutil.GatherAndCount(reg, "callflow_turn_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHooks_NilLoggerAndMetrics(t *testing.T) {
	hooks := observability.Hooks(nil, nil)
	assert.NotPanics(t, func() {
		hooks.OnCallStart(context.Background(), &domain.CallEvent{})
		hooks.OnTurnComplete(context.Background(), &domain.TurnEvent{Result: &domain.TurnResult{}})
	})
}

func TestMerge(t *testing.T) {
	var order []string
	a := domain.LifecycleHooks{OnNodeEnter: func(context.Context, *domain.NodeEvent) { order = append(order, "a") }}
	b := domain.LifecycleHooks{
		OnNodeEnter: func(context.Context, *domain.NodeEvent) { order = append(order, "b") },
		OnCallEnd:   func(context.Context, *domain.CallEvent) { order = append(order, "end") },
	}

	merged := observability.Merge(a, domain.LifecycleHooks{}, b)
	merged.OnNodeEnter(context.Background(), &domain.NodeEvent{})
	merged.OnCallEnd(context.Background(), &domain.CallEvent{})
	assert.Nil(t, merged.OnCallStart)
	assert.Equal(t, []string{"a", "b", "end"}, order)
}

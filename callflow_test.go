package callflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/internal/evaluator"
	"github.com/aretw0/callflow/internal/extractor"
	"github.com/aretw0/callflow/internal/runtime"
	"github.com/aretw0/callflow/internal/testutils"
	"github.com/aretw0/callflow/internal/tts"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const callbackFlow = `
start: greet
nodes:
  - id: greet
    type: conversation
    data:
      mode: static
      content: "Hi {{name}}, is now a good time?"
      transitions:
        - condition: user agrees to talk
          nextNode: done
        - condition: user asks for a callback
          nextNode: later
  - id: later
    type: ending
    data:
      content: No problem, we'll call back.
  - id: done
    type: ending
    data:
      content: Great, talk soon.
`

func writeFlow(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(callbackFlow), 0o600))
	return path
}

func stubLLM() *testutils.StubLLM {
	return &testutils.StubLLM{Respond: func(req ports.CompletionRequest) (string, error) {
		if req.JSON {
			return `{}`, nil
		}
		return "Sorry, I'm calling about your quote. Is now a good time?", nil
	}}
}

func classifier() *testutils.PhraseClassifier {
	return &testutils.PhraseClassifier{Phrases: map[string][]string{
		"user agrees to talk":      {"sure", "go ahead"},
		"user asks for a callback": {"call me later"},
	}}
}

func services(t *testing.T, sessions *session.Manager) *callflow.Services {
	t.Helper()
	g, loader, err := callflow.LoadFlow(writeFlow(t), "")
	require.NoError(t, err)
	llm := stubLLM()
	return &callflow.Services{
		Services: runtime.Services{
			Graph:     g,
			Evaluator: evaluator.New(classifier()),
			Extractor: extractor.New(llm),
			LLM:       llm,
			Sessions:  sessions,
		},
		Loader:  loader,
		Metrics: observability.NewMetrics(nil),
	}
}

func TestLoadFlow(t *testing.T) {
	g, loader, err := callflow.LoadFlow(writeFlow(t), "")
	require.NoError(t, err)
	assert.Equal(t, "greet", g.Start())
	assert.Equal(t, 3, g.Len())

	ids, err := loader.ListNodes()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"greet", "later", "done"}, ids)

	g, _, err = callflow.LoadFlow(writeFlow(t), "later")
	require.NoError(t, err)
	assert.Equal(t, "later", g.Start())

	_, _, err = callflow.LoadFlow(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

func TestLoadFlow_Directory(t *testing.T) {
	dir, _ := testutils.SetupFlowRepo(t, map[string]string{
		"start.md": `---
type: conversation
transitions:
  - condition: user agrees to talk
    nextNode: done
---
Hi {{name}}, is now a good time?`,
		"done.md": `---
type: ending
---
Great, talk soon.`,
	})

	g, loader, err := callflow.LoadFlow(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "start", g.Start())
	assert.Equal(t, 2, g.Len())

	_, declared, err := callflow.OpenFlow(dir)
	require.NoError(t, err)
	assert.Equal(t, "start", declared)

	ids, err := loader.ListNodes()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"start", "done"}, ids)
}

func TestEngine_CallControl(t *testing.T) {
	svc := services(t, nil)
	e, err := callflow.New(svc)
	require.NoError(t, err)
	ctx := context.Background()

	opening, err := e.Start(ctx, "c1", domain.Variables{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana, is now a good time?", opening.Reply)
	assert.Equal(t, []string{"c1"}, e.Active())

	res, err := e.Turn(ctx, "c1", "who is this?")
	require.NoError(t, err)
	assert.False(t, res.Moved)

	require.NoError(t, e.Deliver(ctx, "c1", []byte(`{"crm_id": "L-17"}`)))
	res, err = e.Turn(ctx, "c1", "sure, go ahead")
	require.NoError(t, err)
	assert.True(t, res.Ended)
	assert.Equal(t, "Great, talk soon.", res.Reply)
	assert.Empty(t, e.Active())

	_, err = e.Turn(ctx, "c1", "hello?")
	assert.ErrorIs(t, err, domain.ErrCallEnded)
	assert.ErrorIs(t, e.Hangup(ctx, "c1", "hangup"), domain.ErrCallEnded)

	sess, err := e.Session(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.CallEnded, sess.Status)
	assert.Equal(t, "L-17", sess.Variables["crm_id"])
	assert.Equal(t, "done", sess.CurrentNodeID)
}

func TestEngine_UnknownCall(t *testing.T) {
	e, err := callflow.New(services(t, nil))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Turn(ctx, "ghost", "hello")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, e.Deliver(ctx, "ghost", []byte(`{}`)), domain.ErrSessionNotFound)
	assert.ErrorIs(t, e.Hangup(ctx, "ghost", "hangup"), domain.ErrSessionNotFound)
	_, err = e.Session(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestEngine_ResumesCallFromSharedStore(t *testing.T) {
	shared := session.NewManager(memory.NewStore())
	first, err := callflow.New(services(t, shared))
	require.NoError(t, err)
	second, err := callflow.New(services(t, shared))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = first.Start(ctx, "c1", domain.Variables{"name": "Ana"})
	require.NoError(t, err)

	res, err := second.Turn(ctx, "c1", "call me later")
	require.NoError(t, err)
	assert.Equal(t, "later", res.NodeID)
	assert.True(t, res.Ended)
}

func TestEngine_HooksAndMetrics(t *testing.T) {
	var mu sync.Mutex
	var ends []string
	svc := services(t, nil)
	e, err := callflow.New(svc, callflow.WithLifecycleHooks(domain.LifecycleHooks{
		OnCallEnd: func(ctx context.Context, ev *domain.CallEvent) {
			mu.Lock()
			defer mu.Unlock()
			ends = append(ends, ev.CallID+":"+ev.Reason)
		},
	}))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Start(ctx, "a", nil)
	require.NoError(t, err)
	_, err = e.Start(ctx, "b", nil)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(svc.Metrics.ActiveCalls))

	_, err = e.Turn(ctx, "a", "sure")
	require.NoError(t, err)
	require.NoError(t, e.Shutdown(ctx))

	assert.Equal(t, 0.0, testutil.ToFloat64(svc.Metrics.ActiveCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics.Calls.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.Metrics.Calls.WithLabelValues("shutdown")))
	assert.ElementsMatch(t, []string{"a:completed", "b:shutdown"}, ends)
}

func TestEngine_Ready(t *testing.T) {
	svc := services(t, nil)
	pool := tts.NewPool("alloy", tts.RoundRobin, "http://tts-a", "http://tts-b")
	svc.Pools = map[string]*tts.Pool{"alloy": pool}
	svc.Voice = "alloy"
	e, err := callflow.New(svc)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, e.Ready(ctx))

	for _, b := range pool.Backends() {
		b.SetHealth(false, time.Now())
	}
	err = e.Ready(ctx)
	assert.ErrorIs(t, err, tts.ErrNoHealthyBackend)
	assert.ErrorContains(t, err, "alloy")

	pool.Backends()[0].SetHealth(true, time.Now())
	svc.Ping = func(context.Context) error { return errors.New("connection refused") }
	assert.ErrorContains(t, e.Ready(ctx), "session store")
}

func TestBuildServices(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	kb := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(kb, "plans.md"), []byte("The basic plan costs 20 dollars.\n\nThe pro plan costs 40 dollars."), 0o600))

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
flow:
  path: %s
llm:
  api_key: test
tts:
  voice: alloy
  voices:
    alloy: ["http://tts-a:8000", "http://tts-b:8000"]
redis:
  addr: %s
encryption:
  key: 0123456789abcdef0123456789abcdef
pii:
  enabled: true
  variables: [email]
knowledge:
  dir: %s
interruption:
  enabled: true
turn:
  closing_line: Thanks, goodbye.
`, writeFlow(t), mr.Addr(), kb)))
	require.NoError(t, err)

	svc, err := callflow.BuildServices(cfg, nil)
	require.NoError(t, err)
	defer svc.Close()

	assert.NotNil(t, svc.Graph)
	assert.NotNil(t, svc.Team)
	assert.NotNil(t, svc.Monitor)
	assert.NotNil(t, svc.Health)
	require.Contains(t, svc.Pools, "alloy")
	assert.Len(t, svc.Pools["alloy"].Backends(), 2)

	families, err := svc.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
	assert.Contains(t, names, "callflow_active_calls")

	// Replace the network-bound collaborators; keep the redis-backed sessions.
	llm := stubLLM()
	svc.LLM = llm
	svc.Evaluator = evaluator.New(classifier())
	svc.Extractor = extractor.New(llm)
	svc.Team = nil
	svc.Monitor = nil
	svc.Dispatcher = nil

	e, err := callflow.New(svc, callflow.EngineOptions(cfg)...)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Start(ctx, "c1", domain.Variables{"name": "Ana", "email": "ana@example.com"})
	require.NoError(t, err)
	assert.NoError(t, e.Ready(ctx))

	raw, err := mr.Get("callflow:call:c1")
	require.NoError(t, err)
	assert.NotContains(t, raw, "Ana", "snapshots are encrypted at rest")

	stored, err := svc.Sessions.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.Variables["name"])
	assert.Equal(t, "***", stored.Variables["email"])

	mr.Close()
	assert.Error(t, e.Ready(ctx))
}

func TestEngineOptions_Lines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
start: pitch
nodes:
  - id: pitch
    type: conversation
    data:
      mode: prompt
      content: Introduce the new plan.
`), 0o600))
	cfg, err := config.Parse([]byte("flow:\n  path: " + path + "\nturn:\n  max_consecutive_failures: 1\n  closing_line: Bye for now.\n"))
	require.NoError(t, err)

	g, loader, err := callflow.LoadFlow(path, "")
	require.NoError(t, err)
	svc := &callflow.Services{
		Services: runtime.Services{
			Graph:     g,
			Evaluator: evaluator.New(classifier()),
			LLM: &testutils.StubLLM{Respond: func(req ports.CompletionRequest) (string, error) {
				return "", errors.New("model down")
			}},
		},
		Loader: loader,
	}
	e, err := callflow.New(svc, callflow.EngineOptions(cfg)...)
	require.NoError(t, err)

	opening, err := e.Start(context.Background(), "c1", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bye for now.", opening.Reply)
	assert.True(t, opening.Degraded)
	assert.True(t, opening.Ended)

	sess, err := e.Session(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "consecutive_failures", sess.EndReason)
}

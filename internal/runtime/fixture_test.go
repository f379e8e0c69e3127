package runtime_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/callflow/internal/evaluator"
	"github.com/aretw0/callflow/internal/extractor"
	"github.com/aretw0/callflow/internal/runtime"
	"github.com/aretw0/callflow/internal/testutils"
	"github.com/aretw0/callflow/internal/tts"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/stretchr/testify/require"
)

const (
	ttsA = "http://tts-a:8000"
	ttsB = "http://tts-b:8000"
)

func conversation(id, content string, mode domain.ContentMode, transitions ...domain.Transition) domain.Node {
	return domain.Node{
		ID:           id,
		Kind:         domain.KindConversation,
		Transitions:  transitions,
		Conversation: &domain.ConversationData{Mode: mode, Content: content},
	}
}

func ending(id, content string) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindEnding, Ending: &domain.EndingData{Content: content}}
}

func to(condition, target string, required ...string) domain.Transition {
	return domain.Transition{Condition: condition, TargetNodeID: target, RequiredVariables: required}
}

// qualificationFlow is a small outbound flow: confirm identity, pitch,
// collect an email behind a gate, book a slot through a webhook.
func qualificationFlow(t *testing.T) *domain.FlowGraph {
	t.Helper()

	email := conversation("collect_email", "What's the best email to reach you, {{name}}?", domain.ModeStatic,
		to("user provides email", "schedule", "email"),
	)
	email.ExtractVariables = []domain.VariableSpec{{
		Name:           "email",
		ExtractionHint: "email address",
		Mandatory:      true,
		Reprompt:       "Sorry, could you spell that email for me?",
	}}

	schedule := conversation("schedule", "When would be a good time for a short call?", domain.ModeStatic,
		to("user picks a time", "booked", "confirmed"),
	)
	schedule.ExtractVariables = []domain.VariableSpec{{Name: "scheduleTime", ExtractionHint: "date and time", Mandatory: true}}
	schedule.Webhook = &domain.WebhookRef{Name: "calendar", SendVariables: []string{"scheduleTime", "email"}}

	nodes := []domain.Node{
		conversation("confirm_identity", "Hi, is this {{name}}?", domain.ModeStatic,
			to("user confirms name", "pitch"),
			to("user gives wrong-number signal", "wrong_number"),
		),
		conversation("pitch", "Explain the offer in one sentence and ask if they have a minute.", domain.ModePrompt,
			to("user agrees to continue", "collect_email"),
		),
		email,
		schedule,
		ending("booked", "You're booked for {{scheduleTime}}. Goodbye!"),
		ending("wrong_number", "Sorry to bother you. Goodbye."),
	}
	g, err := domain.NewFlowGraph("confirm_identity", nodes)
	require.NoError(t, err)
	return g
}

func phrases() *testutils.PhraseClassifier {
	return &testutils.PhraseClassifier{Phrases: map[string][]string{
		"user confirms name":             {"that's me", "speaking"},
		"user gives wrong-number signal": {"wrong number"},
		"user agrees to continue":        {"go ahead", "sure"},
		"user provides email":            {"email", "@"},
		"user picks a time":              {"monday"},
	}}
}

// scriptedLLM answers extraction, continuation and generation requests.
func scriptedLLM(req ports.CompletionRequest) (string, error) {
	last := ""
	if n := len(req.Messages); n > 0 {
		last = strings.ToLower(req.Messages[n-1].Content)
	}
	switch {
	case req.JSON:
		switch {
		case strings.Contains(last, "@"):
			return `{"email": "ana@example.com"}`, nil
		case strings.Contains(last, "monday"):
			return "```json\n{\"scheduleTime\": \"2025-11-03 11:30\"}\n```", nil
		}
		return `{}`, nil
	case strings.Contains(req.System, "did not answer you"):
		return "This is Alex from Acme, calling about your quote. Am I speaking with Ana?", nil
	}
	return "We cut energy bills by a third. Do you have a minute?", nil
}

type fixture struct {
	engine   *runtime.Engine
	llm      *testutils.StubLLM
	speech   *testutils.StubSpeech
	sink     *testutils.RecordingSink
	webhook  *testutils.StubWebhook
	store    *memory.Store
	pool     *tts.Pool
	services runtime.Services
}

type fixtureOption func(*fixture, *[]runtime.EngineOption)

func withEngineOptions(opts ...runtime.EngineOption) fixtureOption {
	return func(_ *fixture, all *[]runtime.EngineOption) {
		*all = append(*all, opts...)
	}
}

func withServices(fn func(*runtime.Services)) fixtureOption {
	return func(f *fixture, _ *[]runtime.EngineOption) {
		fn(&f.services)
	}
}

func newFixture(t *testing.T, g *domain.FlowGraph, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		llm:    &testutils.StubLLM{Respond: scriptedLLM},
		speech: &testutils.StubSpeech{},
		sink:   &testutils.RecordingSink{},
		webhook: &testutils.StubWebhook{Bodies: map[string]string{
			"calendar": `{"tool_calls_results":[{"result":"Slot held. ` + "```json\\n{\\\"confirmed\\\": \\\"yes\\\"}\\n```" + `"}]}`,
		}},
		store: memory.NewStore(),
		pool:  tts.NewPool("alloy", tts.RoundRobin, ttsA, ttsB),
	}
	f.services = runtime.Services{
		Graph:      g,
		Evaluator:  evaluator.New(phrases()),
		Extractor:  extractor.New(f.llm, extractor.WithWebhookCaller(f.webhook)),
		LLM:        f.llm,
		Dispatcher: tts.NewDispatcher(f.speech, tts.WithTimeout(time.Second)),
		Pools:      map[string]*tts.Pool{"alloy": f.pool},
		Voice:      "alloy",
		Sink:       f.sink,
		Sessions:   session.NewManager(f.store),
	}

	var engineOpts []runtime.EngineOption
	for _, opt := range opts {
		opt(f, &engineOpts)
	}

	e, err := runtime.NewEngine(f.services, engineOpts...)
	require.NoError(t, err)
	f.engine = e
	return f
}

func (f *fixture) start(t *testing.T, callID string) *runtime.Call {
	t.Helper()
	c, err := f.engine.StartCall(context.Background(), callID, domain.Variables{"name": "Ana"})
	require.NoError(t, err)
	return c
}

func (f *fixture) say(t *testing.T, c *runtime.Call, utterance string) *domain.TurnResult {
	t.Helper()
	res, err := c.HandleTurn(context.Background(), utterance)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

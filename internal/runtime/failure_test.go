package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/callflow/internal/evaluator"
	"github.com/aretw0/callflow/internal/runtime"
	"github.com/aretw0/callflow/internal/testutils"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lines = runtime.Lines{
	Fallback: "Sorry, I missed that.",
	Stall:    "One moment.",
	Closing:  "We'll call you back. Goodbye.",
}

// pitchCall returns a call sitting on the prompt node "pitch".
func pitchCall(t *testing.T, f *fixture) *runtime.Call {
	t.Helper()
	c := f.start(t, "call-1")
	_, err := c.Open(context.Background())
	require.NoError(t, err)
	res := f.say(t, c, "that's me")
	require.Equal(t, "pitch", res.NodeID)
	return c
}

func TestCall_GenerationFailureDegrades(t *testing.T) {
	f := newFixture(t, qualificationFlow(t), withEngineOptions(runtime.WithLines(lines)))
	c := pitchCall(t, f)

	f.llm.Respond = func(req ports.CompletionRequest) (string, error) {
		return "", errors.New("model overloaded")
	}
	res := f.say(t, c, "what is this about?")

	assert.True(t, res.Degraded)
	assert.False(t, res.Moved)
	assert.Equal(t, "pitch", res.NodeID)
	assert.Equal(t, lines.Fallback, res.Reply)
	assert.NotEmpty(t, res.Audio, "the fallback line is still spoken")
	assert.False(t, res.Ended)
}

func TestCall_StaticNodeRepeatsItselfWhenGenerationFails(t *testing.T) {
	f := newFixture(t, qualificationFlow(t))
	c := f.start(t, "call-1")
	_, _ = c.Open(context.Background())

	f.llm.Respond = func(req ports.CompletionRequest) (string, error) {
		return "", errors.New("model overloaded")
	}
	res := f.say(t, c, "hello?")
	assert.False(t, res.Degraded)
	assert.Equal(t, "Hi, is this Ana?", res.Reply)
}

func TestCall_ConsecutiveFailuresCloseTheCall(t *testing.T) {
	f := newFixture(t, qualificationFlow(t), withEngineOptions(
		runtime.WithLines(lines),
		runtime.WithMaxConsecutiveFailures(3),
	))
	c := pitchCall(t, f)
	f.llm.Respond = func(req ports.CompletionRequest) (string, error) {
		return "", errors.New("model down")
	}

	for i := 0; i < 2; i++ {
		res := f.say(t, c, "hello?")
		assert.Equal(t, lines.Fallback, res.Reply)
		assert.False(t, res.Ended)
	}
	res := f.say(t, c, "hello??")
	assert.Equal(t, lines.Closing, res.Reply)
	assert.True(t, res.Ended)

	stored, err := f.store.Load(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "consecutive_failures", stored.EndReason)
}

func TestCall_SuccessResetsFailureCount(t *testing.T) {
	f := newFixture(t, qualificationFlow(t), withEngineOptions(
		runtime.WithLines(lines),
		runtime.WithMaxConsecutiveFailures(2),
	))
	c := pitchCall(t, f)

	fail := func(req ports.CompletionRequest) (string, error) { return "", errors.New("down") }
	f.llm.Respond = fail
	assert.True(t, f.say(t, c, "hm?").Degraded)

	f.llm.Respond = scriptedLLM
	assert.False(t, f.say(t, c, "what?").Degraded)

	f.llm.Respond = fail
	res := f.say(t, c, "hm?")
	assert.True(t, res.Degraded)
	assert.False(t, res.Ended)
}

func TestCall_TurnTimeoutStalls(t *testing.T) {
	f := newFixture(t, qualificationFlow(t), withEngineOptions(
		runtime.WithLines(lines),
		runtime.WithTurnTimeout(50*time.Millisecond),
	))
	c := pitchCall(t, f)

	f.llm.Delay = 500 * time.Millisecond
	start := time.Now()
	res := f.say(t, c, "what is this about?")

	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.True(t, res.Degraded)
	assert.Equal(t, lines.Stall, res.Reply)
}

func TestCall_SlowSpeechStaysWithinTurnTimeout(t *testing.T) {
	f := newFixture(t, qualificationFlow(t), withEngineOptions(
		runtime.WithTurnTimeout(200*time.Millisecond),
	))
	// each backend would hang for the whole dispatcher timeout
	f.speech.Delay = 5 * time.Second
	c := f.start(t, "call-1")

	start := time.Now()
	res, err := c.Open(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 600*time.Millisecond)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Audio)
	assert.Equal(t, "Hi, is this Ana?", res.Reply)
}

func TestCall_PanicIsRecovered(t *testing.T) {
	f := newFixture(t, qualificationFlow(t), withEngineOptions(runtime.WithLines(lines)))
	c := pitchCall(t, f)

	f.llm.Respond = func(req ports.CompletionRequest) (string, error) {
		panic("boom")
	}
	res := f.say(t, c, "what is this about?")
	assert.True(t, res.Degraded)
	assert.Equal(t, lines.Fallback, res.Reply)
	assert.Equal(t, "pitch", c.Session().CurrentNodeID)
}

func TestCall_MissingNodeEndsGracefully(t *testing.T) {
	f := newFixture(t, qualificationFlow(t), withEngineOptions(runtime.WithLines(lines)))

	// A snapshot written against an older flow points at a removed node.
	stale := domain.NewCallSession("call-1", "removed_node", time.Now())
	require.NoError(t, f.store.Save(context.Background(), "call-1", stale))

	c, err := f.engine.StartCall(context.Background(), "call-1", nil)
	require.NoError(t, err)
	res := f.say(t, c, "hello?")

	assert.True(t, res.Ended)
	assert.Equal(t, lines.Closing, res.Reply)
	stored, err := f.store.Load(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, "missing_node", stored.EndReason)
}

func TestCall_ClassifierFailureIsNoMatch(t *testing.T) {
	f := newFixture(t, qualificationFlow(t), withServices(func(s *runtime.Services) {
		s.Evaluator = evaluator.New(&testutils.PhraseClassifier{Err: errors.New("classifier down")})
	}))
	c := f.start(t, "call-1")
	_, _ = c.Open(context.Background())

	res := f.say(t, c, "who is calling?")
	assert.False(t, res.Moved)
	assert.False(t, res.Degraded)
	assert.Equal(t, "confirm_identity", res.NodeID)
}

func TestCall_TTSFailover(t *testing.T) {
	f := newFixture(t, qualificationFlow(t))
	f.speech.Fail = map[string]error{ttsA: errors.New("connection refused")}
	c := f.start(t, "call-1")

	res, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Audio)
	assert.False(t, res.Degraded)
	assert.Contains(t, f.speech.Calls(), ttsB)
	assert.Equal(t, 1, f.sink.Plays())
}

func TestCall_AllBackendsFailing(t *testing.T) {
	f := newFixture(t, qualificationFlow(t))
	f.speech.Fail = map[string]error{
		ttsA: errors.New("connection refused"),
		ttsB: errors.New("connection refused"),
	}
	c := f.start(t, "call-1")

	res, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Audio)
	assert.Equal(t, "Hi, is this Ana?", res.Reply, "the reply is still recorded")
	assert.ElementsMatch(t, []string{ttsA, ttsB}, f.speech.Calls())
}

func TestCall_UnhealthyBackendIsSkipped(t *testing.T) {
	f := newFixture(t, qualificationFlow(t))
	f.pool.Backends()[0].SetHealth(false, time.Now())
	c := f.start(t, "call-1")

	_, err := c.Open(context.Background())
	require.NoError(t, err)
	f.say(t, c, "that's me")
	assert.Equal(t, []string{ttsB, ttsB}, f.speech.Calls())
}

package evaluator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/callflow/internal/evaluator"
	"github.com/aretw0/callflow/internal/testutils"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityNode() *domain.Node {
	return &domain.Node{
		ID:   "A",
		Kind: domain.KindConversation,
		Transitions: []domain.Transition{
			{Condition: "user confirms name", TargetNodeID: "B"},
			{Condition: "user gives wrong-number signal", TargetNodeID: "C"},
		},
	}
}

func identityClassifier() *testutils.PhraseClassifier {
	return &testutils.PhraseClassifier{Phrases: map[string][]string{
		"user confirms name":             {"that's me", "speaking"},
		"user gives wrong-number signal": {"wrong number", "no one by that name"},
	}}
}

func TestEvaluate_Scenario(t *testing.T) {
	e := evaluator.New(identityClassifier())
	node := identityNode()

	d := e.Evaluate(context.Background(), node, "Yeah, that's me", nil, domain.Variables{})
	assert.Equal(t, 0, d.Index)
	assert.Equal(t, "B", d.Target(node))

	d = e.Evaluate(context.Background(), node, "uh, who is this?", nil, domain.Variables{})
	assert.Equal(t, evaluator.NoMatch, d.Index)
	assert.False(t, d.Matched())
	assert.Equal(t, "", d.Target(node))
	assert.Equal(t, evaluator.ReasonNoMatch, d.Reason)
}

func TestEvaluate_FirstDeclaredWins(t *testing.T) {
	classifier := &testutils.PhraseClassifier{Phrases: map[string][]string{
		"user is interested":   {"sounds great"},
		"user wants more info": {"sounds great"},
	}}
	node := &domain.Node{ID: "pitch", Transitions: []domain.Transition{
		{Condition: "user wants more info", TargetNodeID: "info"},
		{Condition: "user is interested", TargetNodeID: "book"},
	}}

	d := evaluator.New(classifier).Evaluate(context.Background(), node, "sounds great", nil, nil)
	assert.Equal(t, 0, d.Index)
}

func TestEvaluate_RequiredVariablesGate(t *testing.T) {
	classifier := &testutils.PhraseClassifier{Phrases: map[string][]string{
		"user agrees to book": {"yes"},
		"user says anything":  {"yes"},
	}}
	node := &domain.Node{ID: "offer", Transitions: []domain.Transition{
		{Condition: "user agrees to book", TargetNodeID: "book", RequiredVariables: []string{"name", "zip"}},
		{Condition: "user says anything", TargetNodeID: "collect"},
	}}
	e := evaluator.New(classifier)

	tests := []struct {
		name string
		vars domain.Variables
		want int
	}{
		{"Missing variable", domain.Variables{"name": "Ana"}, 1},
		{"Blank variable", domain.Variables{"name": "Ana", "zip": "  "}, 1},
		{"All present", domain.Variables{"name": "Ana", "zip": "02139"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(context.Background(), node, "yes", nil, tt.vars)
			assert.Equal(t, tt.want, d.Index)
		})
	}

	before := len(classifier.Requests())
	gatedOnly := &domain.Node{ID: "g", Transitions: node.Transitions[:1]}
	d := e.Evaluate(context.Background(), gatedOnly, "yes", nil, domain.Variables{})
	assert.Equal(t, evaluator.NoMatch, d.Index)
	assert.Equal(t, evaluator.ReasonGated, d.Reason)
	assert.Len(t, classifier.Requests(), before, "gated transitions never reach the classifier")
}

func TestEvaluate_RefusalNeverSatisfiesInformationRequest(t *testing.T) {
	// A classifier that matches everything must still be overruled.
	greedy := &testutils.PhraseClassifier{Phrases: map[string][]string{
		"user provides their email address": {""},
		"user declines to continue":         {""},
	}}
	node := &domain.Node{ID: "email", Transitions: []domain.Transition{
		{Condition: "user provides their email address", TargetNodeID: "next"},
	}}
	e := evaluator.New(greedy)

	d := e.Evaluate(context.Background(), node, "I'd rather not say, why do you need that?", nil, nil)
	assert.Equal(t, evaluator.NoMatch, d.Index)
	assert.Equal(t, evaluator.ReasonSuppressed, d.Reason)

	node.Transitions = append(node.Transitions, domain.Transition{Condition: "user declines to continue", TargetNodeID: "bye"})
	d = e.Evaluate(context.Background(), node, "I'd rather not say", nil, nil)
	assert.Equal(t, 1, d.Index)
}

func TestEvaluate_AnswersMentioningReluctanceStillMatch(t *testing.T) {
	greedy := &testutils.PhraseClassifier{Phrases: map[string][]string{
		"user provides email":           {""},
		"caller asks for a human agent": {""},
	}}
	e := evaluator.New(greedy)

	tests := []struct {
		condition string
		utterance string
	}{
		{"user provides email", "Sure, it's bob@example.com, I don't want to miss the invite"},
		{"caller asks for a human agent", "I don't want to talk to a bot, get me a person"},
	}
	for _, tt := range tests {
		t.Run(tt.condition, func(t *testing.T) {
			node := &domain.Node{ID: "n", Transitions: []domain.Transition{
				{Condition: tt.condition, TargetNodeID: "next"},
			}}
			d := e.Evaluate(context.Background(), node, tt.utterance, nil, nil)
			assert.Equal(t, 0, d.Index)
			assert.Equal(t, evaluator.ReasonMatched, d.Reason)
		})
	}
}

func TestEvaluate_ClassifierNoMatchStands(t *testing.T) {
	classifier := &testutils.PhraseClassifier{Phrases: map[string][]string{}}
	node := &domain.Node{ID: "availability", Transitions: []domain.Transition{
		{Condition: "caller agrees it is a bad time and wants a callback", TargetNodeID: "callback"},
		{Condition: "caller confirms they have time", TargetNodeID: "pitch"},
	}}

	d := evaluator.New(classifier).Evaluate(context.Background(), node, "Yes", nil, nil)
	assert.Equal(t, evaluator.NoMatch, d.Index)
	assert.Equal(t, evaluator.ReasonNoMatch, d.Reason)
	assert.NoError(t, d.Err)
}

func TestEvaluate_SchedulingDoesNotOverridePendingQuestion(t *testing.T) {
	greedy := &testutils.PhraseClassifier{Phrases: map[string][]string{
		"user agrees to schedule an appointment": {"tuesday"},
	}}
	node := &domain.Node{
		ID: "qualify",
		ExtractVariables: []domain.VariableSpec{
			{Name: "homeowner", Mandatory: true, Reprompt: "Do you own your home?"},
		},
		Transitions: []domain.Transition{
			{Condition: "user agrees to schedule an appointment", TargetNodeID: "book"},
		},
	}
	e := evaluator.New(greedy)

	d := e.Evaluate(context.Background(), node, "just book me Tuesday at 3pm", nil, domain.Variables{})
	assert.Equal(t, evaluator.NoMatch, d.Index)

	d = e.Evaluate(context.Background(), node, "just book me Tuesday at 3pm", nil, domain.Variables{"homeowner": "yes"})
	assert.Equal(t, 0, d.Index)
}

func TestEvaluate_ClassifierFailure(t *testing.T) {
	classifier := &testutils.PhraseClassifier{Err: errors.New("model unavailable")}
	e := evaluator.New(classifier)
	node := identityNode()

	d := e.Evaluate(context.Background(), node, "hmm maybe", nil, nil)
	assert.Equal(t, evaluator.NoMatch, d.Index)
	assert.Equal(t, evaluator.ReasonClassifier, d.Reason)
	assert.Error(t, d.Err)

	// plain agreement still confirms
	d = e.Evaluate(context.Background(), node, "Yes, speaking.", nil, nil)
	assert.Equal(t, 0, d.Index)
	assert.Equal(t, evaluator.ReasonAgreement, d.Reason)
}

func TestEvaluate_PassesRecentContext(t *testing.T) {
	classifier := identityClassifier()
	e := evaluator.New(classifier, evaluator.WithContextTurns(2))
	prior := []domain.HistoryEntry{
		{Role: domain.RoleAgent, Text: "Hello!"},
		{Role: domain.RoleUser, Text: "hi"},
		{Role: domain.RoleAgent, Text: "Am I speaking with Ana?"},
	}

	e.Evaluate(context.Background(), identityNode(), "who's asking", prior, nil)
	reqs := classifier.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Context, 2)
	assert.Equal(t, "Am I speaking with Ana?", reqs[0].Context[1].Text)
}

func TestEvaluate_NoTransitions(t *testing.T) {
	d := evaluator.New(identityClassifier()).Evaluate(context.Background(), &domain.Node{ID: "x"}, "hi", nil, nil)
	assert.Equal(t, evaluator.ReasonNoEdges, d.Reason)
}

func TestLLMClassifier(t *testing.T) {
	llm := &testutils.StubLLM{Respond: func(req ports.CompletionRequest) (string, error) {
		return "```json\n{\"matches\": [3, 2, 9]}\n```", nil
	}}
	c := evaluator.NewLLMClassifier(llm)

	idx, err := c.Classify(context.Background(), ports.ClassifyRequest{
		Utterance:  "sure thing",
		Conditions: []string{"a", "b", "c"},
		Context:    []domain.HistoryEntry{{Role: domain.RoleAgent, Text: "Shall we?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	calls := llm.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, "Agent: Shall we?")
	assert.Contains(t, calls[0].Messages[0].Content, "2. b")
}

func TestLLMClassifier_EmptyAndBroken(t *testing.T) {
	answers := map[string]int{`{"matches": []}`: evaluator.NoMatch}
	for answer, want := range answers {
		c := evaluator.NewLLMClassifier(&testutils.StubLLM{Respond: func(ports.CompletionRequest) (string, error) { return answer, nil }})
		idx, err := c.Classify(context.Background(), ports.ClassifyRequest{Utterance: "x", Conditions: []string{"a"}})
		require.NoError(t, err)
		assert.Equal(t, want, idx)
	}

	c := evaluator.NewLLMClassifier(&testutils.StubLLM{Respond: func(ports.CompletionRequest) (string, error) { return "I think 1", nil }})
	idx, err := c.Classify(context.Background(), ports.ClassifyRequest{Utterance: "x", Conditions: []string{"a"}})
	assert.Error(t, err)
	assert.Equal(t, evaluator.NoMatch, idx)
}

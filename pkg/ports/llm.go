package ports

import (
	"context"

	"github.com/aretw0/callflow/pkg/domain"
)

// Message is one chat message sent to a language model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a single model call.
type CompletionRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	// JSON asks the model to answer with a JSON object.
	JSON bool
}

// LLM generates text. Implementations must honour ctx deadlines.
type LLM interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// NoMatch is returned by a ConditionClassifier when no condition holds.
const NoMatch = -1

// ClassifyRequest asks which condition the latest utterance satisfies.
type ClassifyRequest struct {
	Utterance  string
	Conditions []string
	// Context holds the last turns before the utterance, oldest first.
	Context []domain.HistoryEntry
}

// ConditionClassifier decides semantically which condition an utterance satisfies.
// It returns the index of the lowest satisfied condition or NoMatch.
type ConditionClassifier interface {
	Classify(ctx context.Context, req ClassifyRequest) (int, error)
}

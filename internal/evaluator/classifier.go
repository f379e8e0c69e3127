package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/callflow/internal/extractor"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/tidwall/gjson"
)

const classifierRules = `You decide which conditions the caller's LAST message satisfies.
Rules:
- Judge meaning, not keywords.
- A refusal, deflection or question back never satisfies a condition that asks for specific information.
- A clear agreement ("yes", "sure", "that's me") satisfies an agreement or confirmation condition without restating content.
- Naming a day or time while another question is pending is not agreement to schedule.
Answer with JSON only: {"matches": [<condition numbers>]}. Use an empty list when none holds.`

// LLMClassifier implements ports.ConditionClassifier with a language model.
type LLMClassifier struct {
	llm ports.LLM
}

// NewLLMClassifier wraps a model as a condition classifier.
func NewLLMClassifier(llm ports.LLM) *LLMClassifier {
	return &LLMClassifier{llm: llm}
}

// Classify returns the lowest satisfied condition index or NoMatch.
func (c *LLMClassifier) Classify(ctx context.Context, req ports.ClassifyRequest) (int, error) {
	if len(req.Conditions) == 0 {
		return NoMatch, nil
	}

	answer, err := c.llm.Complete(ctx, ports.CompletionRequest{
		System:      classifierRules,
		Messages:    []ports.Message{{Role: "user", Content: classifierInput(req)}},
		MaxTokens:   40,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return NoMatch, fmt.Errorf("classify: %w", err)
	}
	return parseMatches(answer, len(req.Conditions))
}

func classifierInput(req ports.ClassifyRequest) string {
	var b strings.Builder
	if len(req.Context) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, h := range req.Context {
			speaker := "Caller"
			if h.Role == domain.RoleAgent {
				speaker = "Agent"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, h.Text)
		}
		b.WriteString("\n")
	}
	b.WriteString("Conditions:\n")
	for i, cond := range req.Conditions {
		fmt.Fprintf(&b, "%d. %s\n", i+1, cond)
	}
	fmt.Fprintf(&b, "\nCaller's last message: %q\n", req.Utterance)
	return b.String()
}

// parseMatches reads {"matches":[...]} (1-based) and keeps the lowest valid one.
func parseMatches(answer string, n int) (int, error) {
	raw, ok := extractor.ExtractFencedJSON(answer)
	if !ok || !gjson.Valid(raw) {
		return NoMatch, fmt.Errorf("classify: unparseable answer %q", answer)
	}

	best := NoMatch
	gjson.Get(raw, "matches").ForEach(func(_, v gjson.Result) bool {
		idx := int(v.Int()) - 1
		if idx >= 0 && idx < n && (best == NoMatch || idx < best) {
			best = idx
		}
		return true
	})
	return best, nil
}

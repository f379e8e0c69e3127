// Package extractor captures session variables from user speech and from
// webhook responses. Extraction overwrites values, so running it twice on
// the same input leaves the same state.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/internal/prompt"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/tidwall/gjson"
)

// Extractor pulls variable values out of utterances and integrations.
type Extractor struct {
	llm            ports.LLM
	caller         ports.WebhookCaller
	timeout        time.Duration
	webhookTimeout time.Duration
	logger         *slog.Logger
}

// Option configures the Extractor.
type Option func(*Extractor)

// WithWebhookCaller enables node webhooks.
func WithWebhookCaller(c ports.WebhookCaller) Option {
	return func(x *Extractor) {
		x.caller = c
	}
}

// WithTimeout bounds the speech extraction model call.
func WithTimeout(d time.Duration) Option {
	return func(x *Extractor) {
		x.timeout = d
	}
}

// WithWebhookTimeout bounds each webhook call.
func WithWebhookTimeout(d time.Duration) Option {
	return func(x *Extractor) {
		x.webhookTimeout = d
	}
}

// WithLogger configures the extractor logger.
func WithLogger(l *slog.Logger) Option {
	return func(x *Extractor) {
		x.logger = l
	}
}

// New creates an Extractor. llm may be nil, in which case speech extraction
// only reports missing mandatory variables.
func New(llm ports.LLM, opts ...Option) *Extractor {
	x := &Extractor{
		llm:            llm,
		timeout:        2 * time.Second,
		webhookTimeout: 3 * time.Second,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// SpeechOutcome is the result of extracting from one utterance.
type SpeechOutcome struct {
	Updates map[string]any
	// Reprompt is set when a mandatory variable is still missing.
	Reprompt string
	Missing  []string
	Err      error
}

// FromSpeech asks the model for the node's variables in utterance and
// reports the reprompt for the first mandatory variable still missing.
// vars is read, never written.
func (x *Extractor) FromSpeech(ctx context.Context, node *domain.Node, utterance string, recent []domain.HistoryEntry, vars domain.Variables) SpeechOutcome {
	var out SpeechOutcome
	if len(node.ExtractVariables) == 0 {
		return out
	}

	if x.llm != nil && strings.TrimSpace(utterance) != "" {
		updates, err := x.askModel(ctx, node.ExtractVariables, utterance, recent)
		if err != nil {
			out.Err = err
			x.logger.Warn("speech extraction failed", "node_id", node.ID, "err", err)
		}
		out.Updates = updates
	}

	merged := vars.Clone()
	Apply(merged, out.Updates)
	for _, spec := range node.ExtractVariables {
		if !spec.Mandatory || merged.Present(spec.Name) {
			continue
		}
		out.Missing = append(out.Missing, spec.Name)
		if out.Reprompt == "" {
			out.Reprompt = spec.Reprompt
		}
	}
	return out
}

func (x *Extractor) askModel(ctx context.Context, specs []domain.VariableSpec, utterance string, recent []domain.HistoryEntry) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	answer, err := x.llm.Complete(ctx, ports.CompletionRequest{
		System:      extractionPrompt(specs),
		Messages:    prompt.Messages(recent, utterance),
		MaxTokens:   200,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	raw, ok := ExtractFencedJSON(answer)
	if !ok || !gjson.Valid(raw) {
		return nil, fmt.Errorf("extract: model answer is not a json object")
	}

	fields := gjson.Parse(raw).Map()
	updates := make(map[string]any)
	for _, spec := range specs {
		r, ok := fields[spec.Name]
		if !ok || r.Type == gjson.Null {
			continue
		}
		v := normalize(r.Value())
		if domain.IsPresent(v) {
			updates[spec.Name] = v
		}
	}
	return updates, nil
}

// CallWebhook invokes the node's integration with the selected variables and
// returns the unwrapped updates. A node without webhook returns nil, nil.
func (x *Extractor) CallWebhook(ctx context.Context, node *domain.Node, vars domain.Variables) (map[string]any, error) {
	if node.Webhook == nil || node.Webhook.Name == "" {
		return nil, nil
	}
	if x.caller == nil {
		return nil, fmt.Errorf("webhook %q: no caller configured", node.Webhook.Name)
	}

	ctx, cancel := context.WithTimeout(ctx, x.webhookTimeout)
	defer cancel()

	body, err := x.caller.Call(ctx, node.Webhook.Name, WebhookPayload(node.Webhook, vars))
	if err != nil {
		return nil, fmt.Errorf("webhook %q: %w", node.Webhook.Name, err)
	}
	updates, err := ParseWebhookResponse(body)
	if errors.Is(err, ErrPartialPayload) {
		x.logger.Warn("webhook results skipped", "webhook", node.Webhook.Name, "err", err)
		return updates, nil
	}
	if err != nil {
		return nil, fmt.Errorf("webhook %q: %w", node.Webhook.Name, err)
	}
	return updates, nil
}

// WebhookPayload builds the flat request object sent to an integration.
// With no explicit list every present variable is sent.
func WebhookPayload(ref *domain.WebhookRef, vars domain.Variables) map[string]any {
	payload := make(map[string]any)
	if len(ref.SendVariables) == 0 {
		for k, v := range vars {
			if domain.IsPresent(v) {
				payload[k] = v
			}
		}
		return payload
	}
	for _, name := range ref.SendVariables {
		if v, ok := vars.Get(name); ok {
			payload[name] = v
		}
	}
	return payload
}

// Apply writes updates into vars with overwrite semantics and returns the
// names whose value changed.
func Apply(vars domain.Variables, updates map[string]any) []string {
	delta := make(map[string]any)
	for name, v := range updates {
		v = normalize(v)
		old, had := vars.Get(name)
		vars.Set(name, v)
		if !had || domain.DiffVariables(domain.Variables{name: old}, domain.Variables{name: v}) != nil {
			delta[name] = v
		}
	}
	return domain.ChangedKeys(delta)
}

// normalize trims strings and removes duplicate list entries.
func normalize(v any) any {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case []any:
		seen := make(map[string]bool, len(x))
		out := make([]any, 0, len(x))
		for _, item := range x {
			item = normalize(item)
			key := domain.Stringify(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, item)
		}
		return out
	}
	return v
}

// IsMalformed reports whether err came from an unusable payload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedPayload)
}

package ports

import "context"

// WebhookCaller invokes an external automation integration.
// The payload is a flat object of session variables; the raw response body is
// returned for the extractor to unwrap.
type WebhookCaller interface {
	Call(ctx context.Context, name string, payload map[string]any) ([]byte, error)
}

// KnowledgeHit is one retrieved passage.
type KnowledgeHit struct {
	ID    string
	Text  string
	Score float64
}

// KnowledgeBase answers factual lookups.
type KnowledgeBase interface {
	Search(ctx context.Context, query string, limit int) ([]KnowledgeHit, error)
}

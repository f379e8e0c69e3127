package middleware

import (
	"context"
	"regexp"
	"strings"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
)

const mask = "***"

type piiMiddleware struct {
	next     ports.SessionStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks variables whose names
// match any of the patterns. The captured values are also redacted from the
// stored conversation history, since callers usually said them out loud.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.SessionStore) ports.SessionStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, callID string, s *domain.CallSession) error {
	// Clone so the live session driving the call is never touched.
	cloned := s.Clone()

	var secrets []string
	maskMap(cloned.Variables, m.patterns, &secrets)

	for i := range cloned.History {
		for _, secret := range secrets {
			cloned.History[i].Text = strings.ReplaceAll(cloned.History[i].Text, secret, mask)
		}
	}

	return m.next.Save(ctx, callID, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, callID string) (*domain.CallSession, error) {
	return m.next.Load(ctx, callID)
}

func (m *piiMiddleware) Delete(ctx context.Context, callID string) error {
	return m.next.Delete(ctx, callID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// Helpers

func maskMap(m map[string]any, patterns []*regexp.Regexp, secrets *[]string) {
	for k, v := range m {
		matched := false
		for _, p := range patterns {
			if p.MatchString(k) {
				matched = true
				break
			}
		}
		if matched {
			collect(v, secrets)
			m[k] = mask
			continue
		}

		if subMap, ok := v.(map[string]any); ok {
			maskMap(subMap, patterns, secrets)
		}
	}
}

func collect(v any, secrets *[]string) {
	switch val := v.(type) {
	case map[string]any:
		for _, sub := range val {
			collect(sub, secrets)
		}
	case []any:
		for _, sub := range val {
			collect(sub, secrets)
		}
	default:
		if s := strings.TrimSpace(domain.Stringify(val)); len(s) >= 3 {
			*secrets = append(*secrets, s)
		}
	}
}

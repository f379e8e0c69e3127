package loam

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/loam"
)

// Loader adapts a Loam repository of markdown node documents to the
// ports.GraphLoader interface.
type Loader struct {
	Repo *loam.TypedRepository[NodeMetadata]
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[NodeMetadata]) *Loader {
	return &Loader{
		Repo: repo,
	}
}

// Open initializes a read-only Loam repository at path and wraps it.
func Open(path string) (*Loader, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	// Strict mode keeps numbers as json.Number across markdown and JSON documents.
	repo, err := loam.Init(absPath,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[NodeMetadata](repo)), nil
}

type wireNode struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	Data wireData `json:"data"`
}

type wireData struct {
	Mode                   string           `json:"mode,omitempty"`
	Content                string           `json:"content,omitempty"`
	Digits                 string           `json:"digits,omitempty"`
	Transitions            []wireTransition `json:"transitions,omitempty"`
	ExtractVariables       []LoaderVariable `json:"extract_variables,omitempty"`
	RequiresSpecialistTeam bool             `json:"requires_specialist_team,omitempty"`
	Webhook                *LoaderWebhook   `json:"webhook,omitempty"`
}

type wireTransition struct {
	ID             string   `json:"id,omitempty"`
	Condition      string   `json:"condition"`
	NextNode       string   `json:"nextNode"`
	CheckVariables []string `json:"check_variables,omitempty"`
}

// GetNode retrieves a document and renders it in the flow definition format.
func (l *Loader) GetNode(id string) ([]byte, error) {
	ctx := context.Background()

	doc, err := l.Repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loam get failed for %s: %w", id, err)
	}

	meta := doc.Data
	rawID := meta.ID
	if rawID == "" {
		rawID = doc.ID
	}

	node := wireNode{
		ID:   trimExtension(rawID),
		Type: meta.Type,
		Data: wireData{
			Mode:                   meta.Mode,
			Content:                strings.TrimSpace(doc.Content),
			Digits:                 meta.Digits,
			ExtractVariables:       meta.ExtractVariables,
			RequiresSpecialistTeam: meta.RequiresSpecialistTeam,
			Webhook:                meta.Webhook,
		},
	}
	for _, lt := range meta.Transitions {
		to := lt.NextNode
		if to == "" {
			to = lt.To
		}
		node.Data.Transitions = append(node.Data.Transitions, wireTransition{
			ID:             lt.ID,
			Condition:      lt.Condition,
			NextNode:       trimExtension(to),
			CheckVariables: lt.CheckVariables,
		})
	}

	bytes, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node data: %w", err)
	}
	return bytes, nil
}

// ListNodes lists all nodes in the repository.
func (l *Loader) ListNodes() ([]string, error) {
	ctx := context.Background()
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))

	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)

		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID
		ids = append(ids, id)
	}
	return ids, nil
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

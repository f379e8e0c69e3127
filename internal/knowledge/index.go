// Package knowledge provides the product-knowledge lookup used by the
// knowledgeLookup specialist.
package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/callflow/pkg/ports"
	"github.com/blevesearch/bleve/v2"
)

type document struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// Index is an in-memory full-text index. It implements ports.KnowledgeBase.
type Index struct {
	index bleve.Index
}

// New creates an empty in-memory index.
func New() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create knowledge index: %w", err)
	}
	return &Index{index: idx}, nil
}

// Add indexes one passage under id.
func (i *Index) Add(id, text, source string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return i.index.Index(id, document{Content: text, Source: source})
}

// LoadDir indexes every .md and .txt file under dir. Files are split into
// passages on blank lines so a hit stays short enough to speak.
func (i *Index) LoadDir(dir string) (int, error) {
	count := 0
	batch := i.index.NewBatch()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		rel = filepath.ToSlash(rel)
		for n, passage := range Passages(string(data)) {
			id := fmt.Sprintf("%s#%d", rel, n)
			if err := batch.Index(id, document{Content: passage, Source: rel}); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("load knowledge from %s: %w", dir, err)
	}
	if err := i.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("index knowledge: %w", err)
	}
	return count, nil
}

// Search returns up to limit passages matching query, best first.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]ports.KnowledgeHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"content"}

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}

	hits := make([]ports.KnowledgeHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		text, _ := h.Fields["content"].(string)
		hits = append(hits, ports.KnowledgeHit{ID: h.ID, Text: text, Score: h.Score})
	}
	return hits, nil
}

// Count reports the number of indexed passages.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Close releases the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// Passages splits text on blank lines, dropping markdown headings that
// stand alone.
func Passages(text string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if strings.HasPrefix(block, "#") && !strings.Contains(block, "\n") {
			continue
		}
		out = append(out, block)
	}
	return out
}

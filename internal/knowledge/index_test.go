package knowledge_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/callflow/internal/knowledge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPassages(t *testing.T) {
	text := "# Pricing\n\nThe basic plan costs 20 dollars a month.\n\n\nThe pro plan\nincludes analytics.\n"
	assert.Equal(t, []string{
		"The basic plan costs 20 dollars a month.",
		"The pro plan\nincludes analytics.",
	}, knowledge.Passages(text))
}

func TestIndex_LoadAndSearch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricing.md"),
		[]byte("# Pricing\n\nThe basic plan costs 20 dollars a month.\n\nAnnual billing gets two months free."), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "support"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "support", "hours.txt"),
		[]byte("Support is available weekdays from nine to five."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), []byte{0x89, 0x50}, 0o644))

	idx, err := knowledge.New()
	require.NoError(t, err)
	defer idx.Close()

	n, err := idx.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	hits, err := idx.Search(context.Background(), "how much does the basic plan cost", 2)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "pricing.md#0", hits[0].ID)
	assert.Contains(t, hits[0].Text, "20 dollars")
	assert.LessOrEqual(t, len(hits), 2)
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx, err := knowledge.New()
	require.NoError(t, err)
	defer idx.Close()
	require.NoError(t, idx.Add("a", "weekend support", "faq"))

	hits, err := idx.Search(context.Background(), "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

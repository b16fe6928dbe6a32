package rag

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hubenschmidt/go-retrieve/chunker"
	"github.com/hubenschmidt/go-retrieve/embedding"
	"github.com/hubenschmidt/go-retrieve/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vocabEmbedder assigns every distinct lowercase word its own axis, so
// vectors of texts sharing no words are orthogonal.
type vocabEmbedder struct {
	vocab []string
}

func (v vocabEmbedder) Dimension() int { return len(v.vocab) }

func (v vocabEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec := make([]float64, len(v.vocab))
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?")
		for i, term := range v.vocab {
			if term == w {
				vec[i]++
			}
		}
	}
	return vec, nil
}

func (v vocabEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i], _ = v.Embed(ctx, text)
	}
	return out, nil
}

type failingEmbedder struct{ vocabEmbedder }

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, errors.New("provider down")
}

const sample = "Alpha. Beta is here. Gamma delta epsilon. Zeta."

func newChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	ch, err := chunker.New(chunker.Config{ChunkSize: 40, ChunkOverlap: 8})
	require.NoError(t, err)
	return ch
}

func TestIndexAndQueryEndToEnd(t *testing.T) {
	ctx := context.Background()
	emb := &vocabEmbedder{vocab: []string{"alpha", "beta", "is", "here", "gamma", "delta", "epsilon", "zeta"}}

	stores := map[string]vector.Store{"memory": vector.NewMemoryStore()}
	sq, err := vector.NewSQLiteStore(vector.SQLiteConfig{Path: filepath.Join(t.TempDir(), "rag.db")})
	require.NoError(t, err)
	defer sq.Close()
	stores["sqlite"] = sq

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ix := NewIndexer(store, emb, newChunker(t), nil)

			ids, err := ix.Index(ctx, "greek", sample, map[string]any{"source": "letters"})
			require.NoError(t, err)
			assert.Equal(t, []string{"greek::0", "greek::1"}, ids)

			results, err := ix.Query(ctx, "Gamma", 1, vector.SearchOptions{})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Contains(t, results[0].Document.Content, "Gamma")
			assert.Equal(t, "greek::1", results[0].Document.ID)
			assert.Equal(t, "letters", results[0].Document.Metadata["source"])
		})
	}
}

func TestIndexWithHashEmbedder(t *testing.T) {
	ctx := context.Background()
	emb, err := embedding.NewHashEmbedder(256)
	require.NoError(t, err)
	store := vector.NewMemoryStore()
	ix := NewIndexer(store, emb, newChunker(t), nil)

	ids, err := ix.Index(ctx, "", sample, nil)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, 2, store.Count())

	results, err := ix.Query(ctx, "is here gamma delta epsilon zeta", 0, vector.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[1], results[0].Document.ID)
}

func TestIndexEmptyTextIsNoop(t *testing.T) {
	store := vector.NewMemoryStore()
	ix := NewIndexer(store, &vocabEmbedder{}, newChunker(t), nil)

	ids, err := ix.Index(context.Background(), "x", "   ", nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Equal(t, 0, store.Count())
}

func TestIndexEmbedFailure(t *testing.T) {
	store := vector.NewMemoryStore()
	ix := NewIndexer(store, failingEmbedder{}, newChunker(t), nil)

	_, err := ix.Index(context.Background(), "x", sample, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
	assert.Equal(t, 0, store.Count())
}

func TestFormatResults(t *testing.T) {
	assert.Equal(t, "No similar documents found.\n", FormatResults(nil))

	out := FormatResults([]vector.SearchResult{
		{Document: vector.Document{ID: "a", Content: "first"}, Score: 0.91234},
	})
	assert.Contains(t, out, "Found 1 relevant documents:")
	assert.Contains(t, out, "--- 1. a (score: 0.912) ---\nfirst")
}

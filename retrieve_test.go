package retrieve_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	retrieve "github.com/hubenschmidt/go-retrieve"
)

func TestQuickstart(t *testing.T) {
	ctx := context.Background()

	store, err := retrieve.OpenStore(retrieve.OpenConfig{})
	require.NoError(t, err)
	defer store.Close()

	emb, err := retrieve.NewEmbedder(retrieve.EmbedderConfig{Provider: "hash", Dimension: 128})
	require.NoError(t, err)
	ch, err := retrieve.NewChunker(retrieve.ChunkerConfig{ChunkSize: 40, ChunkOverlap: 8})
	require.NoError(t, err)

	ix := retrieve.NewIndexer(store, emb, ch, nil)
	ids, err := ix.Index(ctx, "doc", "Alpha. Beta is here. Gamma delta epsilon. Zeta.", nil)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	results, err := ix.Query(ctx, "gamma delta epsilon", 1, retrieve.SearchOptions{Metric: retrieve.MetricCosine})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc::1", results[0].Document.ID)
}

func TestErrorAliases(t *testing.T) {
	_, err := retrieve.NewChunker(retrieve.ChunkerConfig{ChunkSize: 10, ChunkOverlap: 10})
	assert.True(t, errors.Is(err, retrieve.ErrInvalidConfig))

	_, err = retrieve.CosineSimilarity([]float64{1}, []float64{1, 2})
	var dm *retrieve.DimensionMismatchError
	assert.True(t, errors.As(err, &dm))
	assert.True(t, errors.Is(err, retrieve.ErrDimensionMismatch))
}

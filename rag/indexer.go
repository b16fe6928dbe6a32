// Package rag wires the chunker, an embedder and a vector store into the
// index and query flows used by the CLI.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hubenschmidt/go-retrieve/chunker"
	"github.com/hubenschmidt/go-retrieve/embedding"
	"github.com/hubenschmidt/go-retrieve/vector"
)

// DefaultTopK is used by Query when topK is not positive.
const DefaultTopK = 5

// Indexer chunks, embeds and stores text, and answers text queries.
type Indexer struct {
	store    vector.Store
	embedder embedding.Embedder
	chunker  *chunker.Chunker
	log      *slog.Logger
}

// NewIndexer creates a new indexer. A nil logger discards output.
func NewIndexer(store vector.Store, embedder embedding.Embedder, ch *chunker.Chunker, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indexer{
		store:    store,
		embedder: embedder,
		chunker:  ch,
		log:      logger.With(slog.String("component", "rag")),
	}
}

// Index splits text into chunks, embeds them in one batch and upserts them.
// It returns the stored chunk ids.
func (ix *Indexer) Index(ctx context.Context, baseID, text string, metadata map[string]any) ([]string, error) {
	docs := ix.chunker.SplitToDocuments(text, baseID, metadata)
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	embeddings, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	ids, err := ix.store.Add(ctx, docs, embeddings)
	if err != nil {
		return nil, fmt.Errorf("add chunks: %w", err)
	}

	ix.log.Info("indexed document", slog.String("base_id", baseID), slog.Int("chunks", len(ids)))
	return ids, nil
}

// Query embeds text and searches the store.
func (ix *Indexer) Query(ctx context.Context, text string, topK int, opts vector.SearchOptions) ([]vector.SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	query, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := ix.store.Search(ctx, query, topK, opts)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	ix.log.Debug("query answered", slog.Int("top_k", topK), slog.Int("results", len(results)))
	return results, nil
}

// FormatResults renders results for terminal output.
func FormatResults(results []vector.SearchResult) string {
	if len(results) == 0 {
		return "No similar documents found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d relevant documents:\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- %d. %s (score: %.3f) ---\n", i+1, r.Document.ID, r.Score))
		sb.WriteString(r.Document.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

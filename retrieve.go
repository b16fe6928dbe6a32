// Package retrieve provides document chunking, embedding and vector
// similarity search over in-memory, SQLite and pgvector stores.
//
// Example usage:
//
//	store, err := retrieve.OpenStore(retrieve.OpenConfig{DSN: os.Getenv("DATABASE_URL"), Dimension: 512, Setup: true})
//	emb, err := retrieve.NewEmbedder(retrieve.EmbedderConfig{Provider: "hash", Dimension: 512})
//	ch, err := retrieve.NewChunker(retrieve.DefaultChunkerConfig())
//	ix := retrieve.NewIndexer(store, emb, ch, nil)
//	ids, err := ix.Index(ctx, "handbook", text, map[string]any{"lang": "en"})
//	results, err := ix.Query(ctx, "how do refunds work?", 5, retrieve.SearchOptions{})
package retrieve

import (
	"log/slog"

	"github.com/hubenschmidt/go-retrieve/chunker"
	"github.com/hubenschmidt/go-retrieve/core"
	"github.com/hubenschmidt/go-retrieve/embedding"
	"github.com/hubenschmidt/go-retrieve/rag"
	"github.com/hubenschmidt/go-retrieve/vector"
)

// Vector store aliases
type (
	Store         = vector.Store
	Document      = vector.Document
	SearchResult  = vector.SearchResult
	SearchOptions = vector.SearchOptions
	Metric        = vector.Metric
	OpenConfig    = vector.OpenConfig
	PgConfig      = vector.PgConfig
	SQLiteConfig  = vector.SQLiteConfig
)

// Similarity metrics
const (
	MetricCosine    = vector.MetricCosine
	MetricEuclidean = vector.MetricEuclidean
)

// OpenStore picks a backend from cfg.DSN.
func OpenStore(cfg OpenConfig) (Store, error) {
	return vector.Open(cfg)
}

// NewMemoryStore creates a new in-memory vector store.
func NewMemoryStore() *vector.MemoryStore {
	return vector.NewMemoryStore()
}

// NewPgVectorStore creates a new pgvector-based vector store.
func NewPgVectorStore(cfg PgConfig) (*vector.PgVectorStore, error) {
	return vector.NewPgVectorStore(cfg)
}

// NewSQLiteStore creates a new SQLite-backed vector store.
func NewSQLiteStore(cfg SQLiteConfig) (*vector.SQLiteStore, error) {
	return vector.NewSQLiteStore(cfg)
}

// CosineSimilarity returns the cosine similarity of two equal-length vectors.
func CosineSimilarity(a, b []float64) (float64, error) {
	return vector.CosineSimilarity(a, b)
}

// Chunker aliases
type (
	Chunker       = chunker.Chunker
	ChunkerConfig = chunker.Config
)

// DefaultChunkerConfig returns 1000-rune chunks with a 200-rune overlap.
func DefaultChunkerConfig() ChunkerConfig {
	return chunker.DefaultConfig()
}

// NewChunker validates cfg and returns a Chunker.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	return chunker.New(cfg)
}

// Embedding aliases
type (
	Embedder       = embedding.Embedder
	EmbedderConfig = embedding.Config
)

// NewEmbedder builds the embedder named by cfg.Provider.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	return embedding.New(cfg)
}

// Indexer aliases
type Indexer = rag.Indexer

// NewIndexer wires a store, an embedder and a chunker together.
func NewIndexer(store Store, emb Embedder, ch *Chunker, logger *slog.Logger) *Indexer {
	return rag.NewIndexer(store, emb, ch, logger)
}

// FormatResults renders search results for terminal output.
func FormatResults(results []SearchResult) string {
	return rag.FormatResults(results)
}

// Error aliases
type (
	StoreError             = core.StoreError
	DimensionMismatchError = core.DimensionMismatchError
)

// Sentinel errors
var (
	ErrDimensionMismatch = core.ErrDimensionMismatch
	ErrSizeMismatch      = core.ErrSizeMismatch
	ErrInvalidConfig     = core.ErrInvalidConfig
	ErrUnsupportedFormat = core.ErrUnsupportedFormat
)

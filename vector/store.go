// Package vector provides vector storage and similarity search.
//
// Three backends share one contract: MemoryStore scans every entry and is the
// reference implementation, SQLiteStore keeps rows in an embedded SQLite file
// and ranks them exactly, and PgVectorStore pushes ranking into PostgreSQL
// with the pgvector extension and an approximate index.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/hubenschmidt/go-retrieve/core"
)

// Document is a piece of text stored alongside its embedding.
type Document struct {
	ID       string         `json:"id,omitempty"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult represents a search result with similarity score.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Metric selects how candidates are scored against the query.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

func (m Metric) orDefault() Metric {
	if m == "" {
		return MetricCosine
	}
	return m
}

// SearchOptions narrows and scores a search. The zero value ranks every
// entry by cosine similarity.
type SearchOptions struct {
	// Filter keeps only documents whose metadata holds every key with an
	// equal scalar value.
	Filter map[string]any
	Metric Metric
}

// Record is one stored entry as captured by Serialize.
type Record struct {
	ID        string    `json:"id"`
	Embedding []float64 `json:"embedding"`
	Document  Document  `json:"document"`
}

// Store provides vector storage and similarity search operations.
type Store interface {
	// Add upserts documents with their embeddings and returns the ids in
	// input order. Documents without an id get a generated one.
	Add(ctx context.Context, docs []Document, embeddings [][]float64) ([]string, error)

	// Search returns at most topK documents ordered by descending score.
	Search(ctx context.Context, embedding []float64, topK int, opts SearchOptions) ([]SearchResult, error)

	// Delete removes documents by ID. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Serialize captures the full contents as an opaque token.
	Serialize(ctx context.Context) (string, error)

	// Deserialize replaces the full contents with the token's records.
	Deserialize(ctx context.Context, token string) error

	// Close releases resources.
	Close() error
}

// NewID returns a random UUIDv4 (122 random bits).
func NewID() string {
	return uuid.NewString()
}

func resolveID(id string) string {
	if id == "" {
		return NewID()
	}
	return id
}

// checkEmbeddings rejects NaN and infinite components, which no snapshot
// or pgvector column can hold.
func checkEmbeddings(embeddings [][]float64) error {
	for i, v := range embeddings {
		for j, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return core.NonFiniteEmbedding(i, j)
			}
		}
	}
	return nil
}

// normalizeMetadata returns a deep copy of m holding the types a JSON round
// trip produces (float64 numbers, []any, map[string]any), which is what the
// SQL backends and snapshots hand back. Empty metadata becomes nil.
func normalizeMetadata(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// cloneValue copies the containers a JSON decode can produce.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMetadata(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}

func cloneEmbedding(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

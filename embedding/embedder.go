// Package embedding turns text into vectors. The stores only consume the
// output; providers live behind the Embedder interface.
package embedding

import (
	"context"
	"time"

	"github.com/hubenschmidt/go-retrieve/core"
)

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	// EmbedBatch returns one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	// Dimension is the vector length, or 0 when unknown up front.
	Dimension() int
}

// Providers accepted by New.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config selects and configures an Embedder.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Dimension   int
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
}

// New builds the Embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", ProviderHash:
		return NewHashEmbedder(cfg.Dimension)
	case ProviderOpenAI:
		return NewOpenAIEmbedder(cfg)
	case ProviderOllama:
		return NewOllamaEmbedder(cfg)
	default:
		return nil, core.InvalidConfig("unknown embedding provider %q", cfg.Provider)
	}
}

// embedOne adapts a batch call to a single input.
func embedOne(ctx context.Context, e Embedder, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errNoEmbedding
	}
	return vecs[0], nil
}

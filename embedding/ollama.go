package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// OllamaEmbedder handles Ollama's native embedding API.
type OllamaEmbedder struct {
	baseURL     string
	model       string
	dimension   int
	concurrency int
	client      *http.Client
}

// NewOllamaEmbedder creates a client for Ollama's native embedding API.
func NewOllamaEmbedder(cfg Config) (*OllamaEmbedder, error) {
	host := strings.TrimSuffix(orDefault(cfg.BaseURL, defaultOllamaURL), "/")
	host = strings.TrimSuffix(host, "/v1")

	e := &OllamaEmbedder{
		baseURL:     host,
		model:       orDefault(cfg.Model, defaultOllamaModel),
		dimension:   cfg.Dimension,
		concurrency: cfg.Concurrency,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
	if e.concurrency <= 0 {
		e.concurrency = defaultConcurrency
	}
	if e.client.Timeout == 0 {
		e.client.Timeout = defaultTimeout
	}
	return e, nil
}

func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// Embed generates an embedding for a single input using Ollama's native API.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch generates embeddings for multiple inputs. Ollama's /api/embed
// endpoint is called once per input, with bounded parallelism.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.request(ctx, text)
			if err != nil {
				return fmt.Errorf("input %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type ollamaEmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

func (e *OllamaEmbedder) request(ctx context.Context, input string) ([]float64, error) {
	body, err := json.Marshal(map[string]any{
		"model": e.model,
		"input": input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Ollama API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, errNoEmbedding
	}
	return result.Embeddings[0], nil
}

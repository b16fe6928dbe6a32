package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/go-retrieve/core"
	"golang.org/x/sync/errgroup"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultBatchSize   = 64
	defaultConcurrency = 4
	defaultTimeout     = 60 * time.Second
)

var errNoEmbedding = errors.New("no embedding returned")

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	apiKey      string
	baseURL     string
	model       string
	dimension   int
	batchSize   int
	concurrency int
	client      *http.Client
}

// NewOpenAIEmbedder creates an OpenAI embedder. An API key is required.
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, core.InvalidConfig("openai embedder needs an API key")
	}
	if cfg.BatchSize < 0 || cfg.Concurrency < 0 || cfg.Dimension < 0 {
		return nil, core.InvalidConfig("openai embedder batch size, concurrency and dimension must not be negative")
	}

	e := &OpenAIEmbedder{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimSuffix(orDefault(cfg.BaseURL, defaultOpenAIURL), "/"),
		model:       orDefault(cfg.Model, defaultOpenAIModel),
		dimension:   cfg.Dimension,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
	if e.batchSize == 0 {
		e.batchSize = defaultBatchSize
	}
	if e.concurrency == 0 {
		e.concurrency = defaultConcurrency
	}
	if e.client.Timeout == 0 {
		e.client.Timeout = defaultTimeout
	}
	return e, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return embedOne(ctx, e, text)
}

// EmbedBatch splits texts into requests of at most batchSize inputs and
// runs up to concurrency requests at once.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.request(ctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func (e *OpenAIEmbedder) request(ctx context.Context, inputs []string) ([][]float64, error) {
	reqBody := map[string]any{
		"model": e.model,
		"input": inputs,
	}
	if e.dimension > 0 {
		reqBody["dimensions"] = e.dimension
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	vecs := make([][]float64, len(inputs))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(inputs) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("input %d: %w", i, errNoEmbedding)
		}
	}
	return vecs, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

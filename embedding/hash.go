package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/hubenschmidt/go-retrieve/core"
)

// DefaultHashDimension is used when NewHashEmbedder gets 0.
const DefaultHashDimension = 512

// HashEmbedder is a deterministic bag-of-words embedder based on feature
// hashing. It needs no network and suits tests and offline indexing.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dimension int) (*HashEmbedder, error) {
	if dimension == 0 {
		dimension = DefaultHashDimension
	}
	if dimension < 0 {
		return nil, core.InvalidConfig("hash embedder dimension must be positive, got %d", dimension)
	}
	return &HashEmbedder{dim: dimension}, nil
}

func (h *HashEmbedder) Dimension() int {
	return h.dim
}

func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return h.vector(text), nil
}

func (h *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float64 {
	v := make([]float64, h.dim)
	for _, tok := range tokenize(text) {
		hasher := fnv.New64a()
		hasher.Write([]byte(tok))
		sum := hasher.Sum64()

		// The top bit picks the sign so collisions tend to cancel out.
		sign := 1.0
		if sum>>63 == 1 {
			sign = -1
		}
		v[sum%uint64(h.dim)] += sign
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

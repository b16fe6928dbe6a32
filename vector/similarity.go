package vector

import (
	"math"

	"github.com/hubenschmidt/go-retrieve/core"
)

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
// A zero-magnitude operand yields 0.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &core.DimensionMismatchError{Left: len(a), Right: len(b)}
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// EuclideanDistance calculates the L2 distance between two vectors.
func EuclideanDistance(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &core.DimensionMismatchError{Left: len(a), Right: len(b)}
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// DistanceScore maps a non-negative distance onto (0, 1], higher is closer.
func DistanceScore(distance float64) float64 {
	return 1 / (1 + distance)
}

// Normalize normalizes a vector to unit length.
func Normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return v
	}

	result := make([]float64, len(v))
	for i, x := range v {
		result[i] = x / norm
	}
	return result
}

// score computes the metric-specific score of candidate against query. ok is
// false when the candidate cannot be ranked.
func score(metric Metric, query, candidate []float64) (float64, bool) {
	s, ok := rawScore(metric, query, candidate)
	return finiteOrZero(s), ok
}

func rawScore(metric Metric, query, candidate []float64) (float64, bool) {
	switch metric.orDefault() {
	case MetricCosine:
		s, err := CosineSimilarity(query, candidate)
		return s, err == nil
	case MetricEuclidean:
		d, err := EuclideanDistance(query, candidate)
		if err != nil {
			return 0, false
		}
		return DistanceScore(d), true
	default:
		return 0, false
	}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

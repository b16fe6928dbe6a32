// Package core holds the error taxonomy shared by the chunker, the vector
// stores and the embedding adapters.
package core

import (
	"errors"
	"fmt"
)

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrSizeMismatch      = errors.New("size mismatch")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")
	ErrInvalidEmbedding  = errors.New("invalid embedding")
)

// DimensionMismatchError reports two vectors of different length handed to
// the similarity kernel.
type DimensionMismatchError struct {
	Left  int
	Right int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %d vs %d", e.Left, e.Right)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// StoreError wraps a failure from the storage backend. The driver error is
// kept as-is and reachable through Unwrap.
type StoreError struct {
	Op      string
	Backend string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s [backend=%s]: %v", e.Op, e.Backend, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(op, backend string, err error) *StoreError {
	return &StoreError{Op: op, Backend: backend, Err: err}
}

// SizeMismatch builds an error matching ErrSizeMismatch that names both counts.
func SizeMismatch(what string, docs, embeddings int) error {
	return fmt.Errorf("%w: %d %s vs %d embeddings", ErrSizeMismatch, docs, what, embeddings)
}

// InvalidConfig builds an error matching ErrInvalidConfig.
func InvalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// NonFiniteEmbedding builds an error matching ErrInvalidEmbedding for a NaN
// or infinite component.
func NonFiniteEmbedding(index, component int) error {
	return fmt.Errorf("%w: embedding %d has a non-finite value at position %d", ErrInvalidEmbedding, index, component)
}

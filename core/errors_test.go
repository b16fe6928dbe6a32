package core

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDimensionMismatchErrorIs(t *testing.T) {
	var err error = &DimensionMismatchError{Left: 2, Right: 3}
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.Equal(t, "dimension mismatch: 2 vs 3", err.Error())
}

func TestStoreErrorUnwrap(t *testing.T) {
	err := NewStoreError("search", "pgvector", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "search [backend=pgvector]: unexpected EOF", err.Error())

	var se *StoreError
	assert.True(t, errors.As(error(err), &se))
	assert.Equal(t, "search", se.Op)

	assert.Equal(t, "add: unexpected EOF", NewStoreError("add", "", io.ErrUnexpectedEOF).Error())
}

func TestSizeMismatchAndInvalidConfig(t *testing.T) {
	err := SizeMismatch("documents", 2, 1)
	assert.ErrorIs(t, err, ErrSizeMismatch)
	assert.Contains(t, err.Error(), "2 documents vs 1 embeddings")

	err = InvalidConfig("chunk overlap %d must be smaller than chunk size %d", 5, 5)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "chunk overlap 5")
}

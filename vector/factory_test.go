package vector

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend(t *testing.T) {
	tests := map[string]string{
		"":                         "memory",
		"memory":                   "memory",
		" memory:// ":              "memory",
		"postgres://u@h/db":        "pgvector",
		"postgresql://u@h/db":      "pgvector",
		"sqlite:///tmp/vectors.db": "sqlite",
		"data/vectors.db":          "sqlite",
	}
	for dsn, want := range tests {
		assert.Equal(t, want, Backend(dsn), dsn)
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(OpenConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(OpenConfig{DSN: "sqlite://" + filepath.Join(t.TempDir(), "v.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.(*SQLiteStore).SetupErr())
	require.NoError(t, s.Close())

	s, err = Open(OpenConfig{DSN: "postgres://user@127.0.0.1:1/none", Dimension: 3})
	require.NoError(t, err)
	assert.IsType(t, &PgVectorStore{}, s)
	require.NoError(t, s.Close())
}

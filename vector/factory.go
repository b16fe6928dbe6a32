package vector

import (
	"log/slog"
	"strings"
)

// OpenConfig selects and configures a backend for Open.
type OpenConfig struct {
	// DSN picks the backend:
	//   - "" or "memory": MemoryStore
	//   - postgres:// or postgresql://: PgVectorStore
	//   - sqlite://<path> or anything else: SQLiteStore at that path
	DSN       string
	Table     string
	Dimension int
	// Setup asks the pgvector backend to create its schema. The SQLite
	// backend always creates its table.
	Setup  bool
	Index  string
	Logger *slog.Logger
}

// Open creates a store for cfg.DSN.
func Open(cfg OpenConfig) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)

	switch Backend(dsn) {
	case "memory":
		return NewMemoryStoreWithLogger(cfg.Logger), nil
	case pgBackend:
		return NewPgVectorStore(PgConfig{
			DSN:       dsn,
			Table:     cfg.Table,
			Dimension: cfg.Dimension,
			Setup:     cfg.Setup,
			Index:     cfg.Index,
			Logger:    cfg.Logger,
		})
	default:
		return NewSQLiteStore(SQLiteConfig{
			Path:   strings.TrimPrefix(dsn, "sqlite://"),
			Table:  cfg.Table,
			Logger: cfg.Logger,
		})
	}
}

// Backend names the backend Open would choose for dsn.
func Backend(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "" || dsn == "memory" || dsn == "memory://":
		return "memory"
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return pgBackend
	default:
		return sqliteBackend
	}
}

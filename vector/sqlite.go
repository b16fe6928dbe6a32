package vector

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hubenschmidt/go-retrieve/core"
	_ "modernc.org/sqlite"
)

const sqliteBackend = "sqlite"

// SQLiteConfig configures a SQLiteStore.
type SQLiteConfig struct {
	// DB is an open SQLite handle. It takes precedence over Path and is not
	// closed by the store.
	DB *sql.DB
	// Path is the database file; parent directories are created.
	Path string
	// Table defaults to DefaultTable.
	Table  string
	Logger *slog.Logger
}

// SQLiteStore keeps documents in an embedded SQLite database and ranks them
// exactly in process, scanning rows in insertion (rowid) order.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
	table  string
	ready  *gate
	log    *slog.Logger
}

// NewSQLiteStore opens the store and creates its table in the background.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if err := validateTable(cfg.Table); err != nil {
		return nil, err
	}
	if cfg.DB == nil && cfg.Path == "" {
		return nil, core.InvalidConfig("sqlite store needs a database handle or a path")
	}

	s := &SQLiteStore{
		db:    cfg.DB,
		table: cfg.Table,
		log:   componentLogger(cfg.Logger, "vector."+sqliteBackend),
	}

	if s.db == nil {
		dir := filepath.Dir(cfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		db, err := sql.Open("sqlite", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// A single connection serialises writers and keeps :memory: databases
		// on one connection.
		db.SetMaxOpenConns(1)
		s.db = db
		s.ownsDB = true
	}

	stmts, err := sqliteSchema(cfg.Table)
	if err != nil {
		if s.ownsDB {
			s.db.Close()
		}
		return nil, err
	}
	s.ready = newGate()
	s.ready.start(func() error { return s.migrate(stmts) })
	return s, nil
}

func (s *SQLiteStore) migrate(stmts []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.log.Warn("schema setup failed", slog.String("statement", firstLine(stmt)), slog.Any("error", err))
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	s.log.Debug("schema ready", slog.String("table", s.table))
	return nil
}

// SetupErr blocks until background setup finished and returns its error.
func (s *SQLiteStore) SetupErr() error {
	return s.ready.result()
}

// Add stores documents, updating existing ones by ID without moving them in
// the scan order.
func (s *SQLiteStore) Add(ctx context.Context, docs []Document, embeddings [][]float64) ([]string, error) {
	if len(docs) != len(embeddings) {
		return nil, core.SizeMismatch("documents", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil, nil
	}
	if err := checkEmbeddings(embeddings); err != nil {
		return nil, err
	}
	if err := s.ready.wait(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	records := make([]Record, len(docs))
	for i, doc := range docs {
		ids[i] = resolveID(doc.ID)
		records[i] = Record{ID: ids[i], Embedding: embeddings[i], Document: doc}
	}

	if err := s.inTx(ctx, func(tx *sql.Tx) error { return s.insert(ctx, tx, records) }); err != nil {
		return nil, core.NewStoreError("add", sqliteBackend, err)
	}
	return ids, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) insert(ctx context.Context, tx *sql.Tx, records []Record) error {
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding`, s.table))
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		metadata, err := marshalMetadata(r.Document.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Document.Content, metadata, encodeBlob(r.Embedding)); err != nil {
			return fmt.Errorf("upsert document %s: %w", r.ID, err)
		}
	}
	return nil
}

// Search scans every row, applies the filter and metric in process and
// returns the topK best.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float64, topK int, opts SearchOptions) ([]SearchResult, error) {
	if topK <= 0 || !validFilter(opts.Filter) {
		return []SearchResult{}, nil
	}
	if err := s.ready.wait(ctx); err != nil {
		return nil, err
	}

	var cands []candidate
	err := s.scan(ctx, func(order uint64, r Record) {
		if !matchesFilter(r.Document.Metadata, opts.Filter) {
			return
		}
		sc, ok := score(opts.Metric, embedding, r.Embedding)
		if !ok {
			return
		}
		cands = append(cands, candidate{order: order, result: SearchResult{Document: r.Document, Score: sc}})
	})
	if err != nil {
		return nil, core.NewStoreError("search", sqliteBackend, err)
	}
	return rankCandidates(cands, topK), nil
}

func (s *SQLiteStore) scan(ctx context.Context, fn func(order uint64, r Record)) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT rowid, id, content, metadata, embedding FROM %s ORDER BY rowid`, s.table))
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var order int64
		var r Record
		var metadata string
		var blob []byte
		if err := rows.Scan(&order, &r.ID, &r.Document.Content, &metadata, &blob); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		r.Document.ID = r.ID
		if r.Document.Metadata, err = unmarshalMetadata([]byte(metadata)); err != nil {
			return err
		}
		if r.Embedding, err = decodeBlob(blob); err != nil {
			return err
		}
		fn(uint64(order), r)
	}
	return rows.Err()
}

// Delete removes documents by ID.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ready.wait(ctx); err != nil {
		return err
	}

	query, args := buildDelete(s.table, ids)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return core.NewStoreError("delete", sqliteBackend, err)
	}
	return nil
}

// Serialize captures every row in insertion order.
func (s *SQLiteStore) Serialize(ctx context.Context) (string, error) {
	if err := s.ready.wait(ctx); err != nil {
		return "", err
	}

	var records []Record
	if err := s.scan(ctx, func(_ uint64, r Record) { records = append(records, r) }); err != nil {
		return "", core.NewStoreError("serialize", sqliteBackend, err)
	}
	return EncodeSnapshot(records)
}

// Deserialize clears the table and reinserts every record in one
// transaction.
func (s *SQLiteStore) Deserialize(ctx context.Context, token string) error {
	records, err := DecodeSnapshot(token)
	if err != nil {
		return err
	}
	if err := s.ready.wait(ctx); err != nil {
		return err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+s.table); err != nil {
			return fmt.Errorf("clear table: %w", err)
		}
		return s.insert(ctx, tx, records)
	})
	if err != nil {
		return core.NewStoreError("deserialize", sqliteBackend, err)
	}

	s.log.Debug("table replaced from snapshot", slog.Int("records", len(records)))
	return nil
}

// Count returns the number of rows in the table.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if err := s.ready.wait(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table).Scan(&n); err != nil {
		return 0, core.NewStoreError("count", sqliteBackend, err)
	}
	return n, nil
}

// Close waits for setup, then closes the database when the store opened it.
func (s *SQLiteStore) Close() error {
	_ = s.ready.result()
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)

package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hubenschmidt/go-retrieve/core"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgBackend = "pgvector"

	// maxRowsPerStatement keeps a batched upsert under PostgreSQL's limit of
	// 65535 bind parameters (four per row).
	maxRowsPerStatement = 8000

	setupTimeout = 30 * time.Second
)

// PgConfig configures a PgVectorStore.
type PgConfig struct {
	// DB is a ready connection pool. It takes precedence over DSN and is not
	// closed by the store.
	DB *sql.DB
	// DSN is a PostgreSQL connection string used when DB is nil.
	DSN string
	// Table defaults to DefaultTable.
	Table string
	// Dimension is the embedding length of the vector column. Zero reads the
	// declared width of an existing column on first search.
	Dimension int
	// Setup creates the extension, table and index in the background.
	Setup bool
	// Index is one of IndexHNSW (default), IndexIVFFlat or IndexNone.
	Index  string
	Logger *slog.Logger
}

// PgVectorStore is a PostgreSQL-based vector store using pgvector.
type PgVectorStore struct {
	db        *sql.DB
	ownsDB    bool
	table     string
	dimension int
	ready     *gate
	log       *slog.Logger

	dimMu    sync.Mutex
	dimKnown bool
}

// NewPgVectorStore creates a new pgvector-based store. When cfg.Setup is
// set, schema creation starts in the background and every operation waits
// for it to finish first.
func NewPgVectorStore(cfg PgConfig) (*PgVectorStore, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Index == "" {
		cfg.Index = IndexHNSW
	}
	if err := validateTable(cfg.Table); err != nil {
		return nil, err
	}
	if cfg.DB == nil && cfg.DSN == "" {
		return nil, core.InvalidConfig("pgvector store needs a connection pool or a connection string")
	}
	if cfg.Dimension < 0 {
		return nil, core.InvalidConfig("dimension must not be negative, got %d", cfg.Dimension)
	}
	if cfg.Setup && cfg.Dimension == 0 {
		return nil, core.InvalidConfig("schema setup needs a positive dimension")
	}
	switch cfg.Index {
	case IndexHNSW, IndexIVFFlat, IndexNone:
	default:
		return nil, core.InvalidConfig("unknown index kind %q", cfg.Index)
	}

	s := &PgVectorStore{
		db:        cfg.DB,
		table:     cfg.Table,
		dimension: cfg.Dimension,
		log:       componentLogger(cfg.Logger, "vector."+pgBackend),
	}

	if s.db == nil {
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		s.db = db
		s.ownsDB = true
	}

	if !cfg.Setup {
		s.ready = openGate()
		return s, nil
	}

	stmts, err := postgresSchema(cfg.Table, cfg.Dimension, cfg.Index)
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

// migrate runs each statement on its own. Failures are logged and the
// remaining statements still run.
func (s *PgVectorStore) migrate(stmts []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	var firstErr error
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.log.Warn("schema setup statement failed", slog.String("statement", firstLine(stmt)), slog.Any("error", err))
			if firstErr == nil {
				firstErr = fmt.Errorf("execute migration: %w", err)
			}
		}
	}
	if firstErr == nil {
		s.log.Info("schema ready", slog.String("table", s.table), slog.Int("dimension", s.dimension))
	}
	return firstErr
}

// SetupErr blocks until background setup finished and returns its error.
func (s *PgVectorStore) SetupErr() error {
	return s.ready.result()
}

type pgRow struct {
	id        string
	content   string
	metadata  string
	embedding string
}

// Add stores documents, updating existing ones by ID.
func (s *PgVectorStore) Add(ctx context.Context, docs []Document, embeddings [][]float64) ([]string, error) {
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

	rows, err := toPgRows(records)
	if err != nil {
		return nil, err
	}
	if err := s.upsertRows(ctx, rows); err != nil {
		return nil, core.NewStoreError("add", pgBackend, err)
	}
	return ids, nil
}

// toPgRows encodes records and collapses repeated ids (last wins), since a
// single ON CONFLICT statement may not touch a row twice.
func toPgRows(records []Record) ([]pgRow, error) {
	rows := make([]pgRow, 0, len(records))
	pos := make(map[string]int, len(records))
	for _, r := range records {
		metadata, err := marshalMetadata(r.Document.Metadata)
		if err != nil {
			return nil, err
		}
		row := pgRow{id: r.ID, content: r.Document.Content, metadata: metadata, embedding: formatEmbedding(r.Embedding)}
		if i, ok := pos[r.ID]; ok {
			rows[i] = row
			continue
		}
		pos[r.ID] = len(rows)
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *PgVectorStore) upsertRows(ctx context.Context, rows []pgRow) error {
	if len(rows) <= maxRowsPerStatement {
		query, args := buildUpsert(s.table, rows)
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertBatches(ctx, tx, s.table, rows); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertBatches(ctx context.Context, ex execer, table string, rows []pgRow) error {
	for start := 0; start < len(rows); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(rows))
		query, args := buildUpsert(table, rows[start:end])
		if _, err := ex.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// buildUpsert compiles one multi-row INSERT ... ON CONFLICT statement.
func buildUpsert(table string, rows []pgRow) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (id, content, metadata, embedding) VALUES ")

	args := make([]any, 0, len(rows)*4)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d::jsonb, $%d::vector)", n+1, n+2, n+3, n+4)
		args = append(args, r.id, r.content, r.metadata, r.embedding)
	}
	sb.WriteString(` ON CONFLICT (id) DO UPDATE SET
		content = EXCLUDED.content,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding`)
	return sb.String(), args
}

// Search finds documents similar to the given embedding.
func (s *PgVectorStore) Search(ctx context.Context, embedding []float64, topK int, opts SearchOptions) ([]SearchResult, error) {
	results := []SearchResult{}
	if topK <= 0 || len(embedding) == 0 || !validFilter(opts.Filter) {
		return results, nil
	}
	metric := opts.Metric.orDefault()
	if metric != MetricCosine && metric != MetricEuclidean {
		return results, nil
	}
	if err := s.ready.wait(ctx); err != nil {
		return nil, err
	}
	dim, err := s.columnDimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim > 0 && len(embedding) != dim {
		return results, nil
	}

	var filterJSON string
	if len(opts.Filter) > 0 {
		b, err := json.Marshal(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		filterJSON = string(b)
	}

	query, args := buildSearch(s.table, metric, formatEmbedding(embedding), len(embedding), filterJSON, topK)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewStoreError("search", pgBackend, err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc Document
		var metadata []byte
		var distance sql.NullFloat64

		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &distance); err != nil {
			return nil, core.NewStoreError("search", pgBackend, fmt.Errorf("scan row: %w", err))
		}
		if doc.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, core.NewStoreError("search", pgBackend, err)
		}

		results = append(results, SearchResult{
			Document: doc,
			Score:    distanceToScore(metric, distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewStoreError("search", pgBackend, err)
	}
	return results, nil
}

// columnDimensionQuery reads the declared width of the embedding column:
// atttypmod is n for vector(n) and -1 for an unconstrained vector.
const columnDimensionQuery = `SELECT atttypmod FROM pg_attribute
	WHERE attrelid = $1::regclass AND attname = 'embedding' AND NOT attisdropped`

// columnDimension returns the configured dimension, or else the column's
// declared one, looked up once. Zero means the column accepts any width.
func (s *PgVectorStore) columnDimension(ctx context.Context) (int, error) {
	s.dimMu.Lock()
	defer s.dimMu.Unlock()

	if s.dimension > 0 || s.dimKnown {
		return s.dimension, nil
	}

	var typmod int
	if err := s.db.QueryRowContext(ctx, columnDimensionQuery, s.table).Scan(&typmod); err != nil {
		return 0, core.NewStoreError("search", pgBackend, fmt.Errorf("read column dimension: %w", err))
	}
	if typmod > 0 {
		s.dimension = typmod
	}
	s.dimKnown = true
	s.log.Debug("column dimension resolved", slog.Int("dimension", s.dimension))
	return s.dimension, nil
}

// buildSearch orders rows by the metric's distance operator so the ANN
// index can serve the query.
func buildSearch(table string, metric Metric, vec string, dims int, filterJSON string, topK int) (string, []any) {
	op := "<=>"
	if metric == MetricEuclidean {
		op = "<->"
	}

	args := []any{vec, dims}
	where := "vector_dims(embedding) = $2"
	if filterJSON != "" {
		args = append(args, filterJSON)
		where += fmt.Sprintf(" AND metadata @> $%d::jsonb", len(args))
	}
	args = append(args, topK)

	query := fmt.Sprintf(`SELECT id, content, metadata, embedding %[1]s $1::vector AS distance
		FROM %[2]s
		WHERE %[3]s
		ORDER BY embedding %[1]s $1::vector
		LIMIT $%[4]d`, op, table, where, len(args))
	return query, args
}

// distanceToScore converts a pgvector distance into a higher-is-better
// score. <=> is cosine distance in [0, 2], so 1-d lands in [-1, 1].
func distanceToScore(metric Metric, distance sql.NullFloat64) float64 {
	if !distance.Valid {
		return 0
	}
	d := distance.Float64
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	if metric == MetricEuclidean {
		return finiteOrZero(DistanceScore(d))
	}
	return math.Max(-1, math.Min(1, 1-d))
}

// Delete removes documents by ID.
func (s *PgVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.ready.wait(ctx); err != nil {
		return err
	}

	query, args := buildDelete(s.table, ids)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return core.NewStoreError("delete", pgBackend, err)
	}
	return nil
}

// buildDelete binds the ids as one text[] parameter, so the statement stays
// under the bind parameter limit for any number of ids.
func buildDelete(table string, ids []string) (string, []any) {
	return fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1::text[])", table), []any{ids}
}

// Serialize reads every row ordered by id.
func (s *PgVectorStore) Serialize(ctx context.Context) (string, error) {
	if err := s.ready.wait(ctx); err != nil {
		return "", err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, content, metadata, embedding::text FROM %s ORDER BY id`, s.table))
	if err != nil {
		return "", core.NewStoreError("serialize", pgBackend, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var metadata []byte
		var embedding sql.NullString
		if err := rows.Scan(&r.ID, &r.Document.Content, &metadata, &embedding); err != nil {
			return "", core.NewStoreError("serialize", pgBackend, fmt.Errorf("scan row: %w", err))
		}
		r.Document.ID = r.ID
		if r.Document.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return "", core.NewStoreError("serialize", pgBackend, err)
		}
		if r.Embedding, err = parseEmbedding(embedding.String); err != nil {
			return "", core.NewStoreError("serialize", pgBackend, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return "", core.NewStoreError("serialize", pgBackend, err)
	}
	return EncodeSnapshot(records)
}

// Deserialize truncates the table and reinserts every record inside one
// transaction. Any failure rolls back to the previous contents.
func (s *PgVectorStore) Deserialize(ctx context.Context, token string) error {
	records, err := DecodeSnapshot(token)
	if err != nil {
		return err
	}
	rows, err := toPgRows(records)
	if err != nil {
		return err
	}
	if err := s.ready.wait(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewStoreError("deserialize", pgBackend, fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "TRUNCATE "+s.table); err != nil {
		return core.NewStoreError("deserialize", pgBackend, fmt.Errorf("truncate: %w", err))
	}
	if err := insertBatches(ctx, tx, s.table, rows); err != nil {
		return core.NewStoreError("deserialize", pgBackend, err)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStoreError("deserialize", pgBackend, fmt.Errorf("commit: %w", err))
	}

	s.log.Info("table replaced from snapshot", slog.Int("records", len(rows)))
	return nil
}

// Count returns the number of rows in the table.
func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	if err := s.ready.wait(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table).Scan(&n); err != nil {
		return 0, core.NewStoreError("count", pgBackend, err)
	}
	return n, nil
}

// Close waits for setup, then closes the database when the store opened it.
func (s *PgVectorStore) Close() error {
	_ = s.ready.result()
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*PgVectorStore)(nil)

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func firstLine(stmt string) string {
	line, _, _ := strings.Cut(stmt, "\n")
	return line
}

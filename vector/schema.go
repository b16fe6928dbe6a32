package vector

import (
	"bytes"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"

	"github.com/hubenschmidt/go-retrieve/core"
	"github.com/hubenschmidt/go-retrieve/vector/migrations"
)

// DefaultTable is the table name used when none is configured.
const DefaultTable = "documents"

// Index kinds accepted by PgConfig.Index.
const (
	IndexHNSW    = "hnsw"
	IndexIVFFlat = "ivfflat"
	IndexNone    = "none"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func validateTable(table string) error {
	if !identPattern.MatchString(table) {
		return core.InvalidConfig("table name %q is not a plain SQL identifier", table)
	}
	return nil
}

type schemaParams struct {
	Table     string
	IndexName string
	Dimension int
	Index     string
	Lists     int
}

// renderStatements executes a migration template and splits it into
// individual statements.
func renderStatements(fsys fs.FS, name string, params schemaParams) ([]string, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read migration: %w", err)
	}
	tmpl, err := template.New(name).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse migration: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return nil, fmt.Errorf("render migration: %w", err)
	}

	var stmts []string
	for _, part := range strings.Split(buf.String(), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

func postgresSchema(table string, dimension int, index string) ([]string, error) {
	return renderStatements(migrations.Postgres, "postgres/001_init.sql.tmpl", schemaParams{
		Table:     table,
		IndexName: strings.ReplaceAll(table, ".", "_") + "_embedding_idx",
		Dimension: dimension,
		Index:     index,
		Lists:     100,
	})
}

func sqliteSchema(table string) ([]string, error) {
	return renderStatements(migrations.SQLite, "sqlite/001_init.sql.tmpl", schemaParams{Table: table})
}

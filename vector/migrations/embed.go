// Package migrations embeds the schema templates for the SQL-backed stores.
package migrations

import "embed"

//go:embed sqlite/*.sql.tmpl
var SQLite embed.FS

//go:embed postgres/*.sql.tmpl
var Postgres embed.FS

package migrations

import "embed"

// FS holds the SQL migrations applied by database.Migrator in filename order
//
//go:embed *.sql
var FS embed.FS

package migrations

import "embed"

// FS contains embedded SQLite migrations for arena persistence.
//
//go:embed *.sql
var FS embed.FS

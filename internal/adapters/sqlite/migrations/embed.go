package migrations

import "embed"

// FS contains embedded SQLite migrations for the batch state store.
//
//go:embed *.sql
var FS embed.FS

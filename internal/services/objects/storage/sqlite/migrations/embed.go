package migrations

import "embed"

// FS contains embedded SQLite migrations for object storage.
//
//go:embed *.sql
var FS embed.FS

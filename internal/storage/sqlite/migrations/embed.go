package migrations

import "embed"

// FS contains embedded SQLite migrations for battle-map storage.
//
//go:embed *.sql
var FS embed.FS

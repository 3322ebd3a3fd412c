package migrations

import "embed"

// Postgres holds golang-migrate style files (NNNN_name.up.sql / .down.sql).
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite holds numbered files applied in order by db.MigrateSQLite.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

package sqlite

import "github.com/steveyegge/triage/internal/storage/migrations"

// schemaMigrations builds the cache schema. Append new versions, never edit old ones.
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "create cache_entries",
		Up: `
			CREATE TABLE IF NOT EXISTS cache_entries (
				hash TEXT PRIMARY KEY CHECK(length(hash) = 64),
				facts TEXT NOT NULL,
				decision TEXT NOT NULL,
				created_at TEXT NOT NULL
			)
		`,
	},
	{
		Version:     2,
		Description: "index cache_entries by created_at",
		Up:          `CREATE INDEX IF NOT EXISTS idx_cache_entries_created_at ON cache_entries(created_at)`,
	},
}

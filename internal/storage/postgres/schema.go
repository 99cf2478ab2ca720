package postgres

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    hash CHAR(64) PRIMARY KEY,
    facts JSONB NOT NULL,
    decision JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_created_at ON cache_entries(created_at);
`

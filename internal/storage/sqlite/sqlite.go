// Package sqlite is the SQLite content cache backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/storage/migrations"
	"github.com/steveyegge/triage/internal/types"
)

const backendName = "sqlite"

// Store implements cache.Store on a SQLite database
type Store struct {
	db   *sql.DB
	path string
}

var _ cache.Store = (*Store)(nil)
var _ cache.StatsReporter = (*Store)(nil)

// New opens (creating if needed) the cache database at path
func New(ctx context.Context, path string) (*Store, error) {
	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, cache.WrapIO("open", backendName, fmt.Errorf("failed to create directory: %w", err))
		}
	}

	// WAL lets readers proceed while a writer holds the lock
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, cache.WrapIO("open", backendName, fmt.Errorf("failed to open database: %w", err))
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, cache.WrapIO("open", backendName, fmt.Errorf("failed to ping database: %w", err))
	}

	if _, err := migrations.NewManager(schemaMigrations...).Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, cache.WrapIO("open", backendName, fmt.Errorf("failed to initialize schema: %w", err))
	}

	return &Store{db: db, path: path}, nil
}

// Lookup returns the entry for h, or nil on a miss
func (s *Store) Lookup(ctx context.Context, h cache.Hash) (*cache.Entry, error) {
	var facts, decision, createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT facts, decision, created_at FROM cache_entries WHERE hash = ?", h.String(),
	).Scan(&facts, &decision, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cache.WrapIO("lookup", backendName, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, cache.WrapIO("lookup", backendName, fmt.Errorf("invalid created_at %q: %w", createdAt, err))
	}
	e, err := cache.DecodePayload(h, []byte(facts), []byte(decision), ts)
	if err != nil {
		return nil, cache.WrapIO("lookup", backendName, err)
	}
	return e, nil
}

// Store upserts the entry for h. The row is left untouched when the
// stored payload is byte-identical, so created_at survives repeats.
func (s *Store) Store(ctx context.Context, h cache.Hash, facts types.FactSet, decision types.TriageAction) error {
	factsJSON, decisionJSON, err := cache.EncodePayload(facts, decision)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (hash, facts, decision, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			facts = excluded.facts,
			decision = excluded.decision,
			created_at = excluded.created_at
		WHERE cache_entries.facts <> excluded.facts
		   OR cache_entries.decision <> excluded.decision
	`, h.String(), string(factsJSON), string(decisionJSON), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return cache.WrapIO("store", backendName, err)
	}
	return nil
}

// Stats implements cache.StatsReporter
func (s *Store) Stats(ctx context.Context) (cache.Stats, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&n); err != nil {
		return cache.Stats{}, cache.WrapIO("stats", backendName, err)
	}
	return cache.Stats{Backend: backendName, Location: s.path, Entries: n}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

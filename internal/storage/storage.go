// Package storage opens the configured content cache backend.
package storage

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/storage/postgres"
	"github.com/steveyegge/triage/internal/storage/sqlite"
)

// Backend names accepted by Open
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config selects and locates the cache backend
type Config struct {
	// Backend is one of file, sqlite, postgres, memory. Default: file
	Backend string

	// Path is the cache file (file) or database file (sqlite).
	// Default: .triage_cache.json for file, .triage/cache.db for sqlite
	Path string

	// DSN is the postgres connection string
	DSN string

	// Require disables graceful degradation: cache I/O errors are returned
	// instead of being logged and treated as misses
	Require bool
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendFile,
		Path:    cache.DefaultFilePath,
	}
}

// DefaultSQLitePath is used when the sqlite backend has no explicit path
const DefaultSQLitePath = ".triage/cache.db"

// Validate checks the backend name and required fields
func (c *Config) Validate() error {
	switch c.normalizedBackend() {
	case BackendFile, BackendSQLite, BackendMemory:
		return nil
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("cache backend postgres requires a DSN")
		}
		return nil
	default:
		return fmt.Errorf("unknown cache backend %q (want file, sqlite, postgres or memory)", c.Backend)
	}
}

func (c *Config) normalizedBackend() string {
	b := strings.ToLower(strings.TrimSpace(c.Backend))
	if b == "" {
		return BackendFile
	}
	return b
}

// Open creates the configured store. Unless cfg.Require is set the store is
// wrapped with cache.Degrading, and a backend that fails to open also
// degrades to an in-memory store so the run can go on uncached.
func Open(ctx context.Context, cfg *Config) (cache.Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s, err := open(ctx, cfg)
	if err != nil {
		if cfg.Require {
			return nil, err
		}
		log.Printf("[CACHE] [WARN] Failed to open %s cache: %v. Continuing without persistence.", cfg.normalizedBackend(), err)
		return cache.Degrading(cache.NewMemoryStore()), nil
	}
	if cfg.Require {
		return s, nil
	}
	return cache.Degrading(s), nil
}

func open(ctx context.Context, cfg *Config) (cache.Store, error) {
	switch cfg.normalizedBackend() {
	case BackendMemory:
		return cache.NewMemoryStore(), nil
	case BackendSQLite:
		path := cfg.Path
		if path == "" || path == cache.DefaultFilePath {
			path = DefaultSQLitePath
		}
		return sqlite.New(ctx, path)
	case BackendPostgres:
		return postgres.New(ctx, postgres.DefaultConfig(cfg.DSN))
	default:
		return cache.NewFileStore(cfg.Path)
	}
}

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/steveyegge/triage/internal/types"
)

// DefaultFilePath is where the file backend keeps its cache
const DefaultFilePath = ".triage_cache.json"

// fileEntry is the on-disk form. The map key is the hex hash.
type fileEntry struct {
	Facts     json.RawMessage `json:"facts"`
	Decision  json.RawMessage `json:"decision"`
	CreatedAt time.Time       `json:"created_at"`
}

// FileStore persists the cache as a single JSON object keyed by hex hash.
// Every Store rewrites the file through a temp file and rename, so a crash
// leaves either the old or the new contents on disk.
type FileStore struct {
	path    string
	mu      sync.Mutex
	entries map[string]fileEntry
	now     func() time.Time
}

// NewFileStore opens (or creates on first write) the cache file at path.
// A missing file is an empty cache. A corrupt file is logged and replaced
// on the next write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		path = DefaultFilePath
	}
	s := &FileStore{path: path, entries: make(map[string]fileEntry), now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, WrapIO("open", "file", err)
	}

	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		log.Printf("[CACHE] [WARN] Failed to load cache %s: %v. Starting fresh.", path, err)
		s.entries = make(map[string]fileEntry)
		return s, nil
	}
	log.Printf("[CACHE] Loaded %d cached items from %s", len(s.entries), path)
	return s, nil
}

// Path returns the backing file path
func (s *FileStore) Path() string { return s.path }

// Lookup returns the entry for h, or nil on a miss. An entry that no longer
// decodes is treated as a miss.
func (s *FileStore) Lookup(ctx context.Context, h Hash) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	fe, ok := s.entries[h.String()]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	e, err := DecodePayload(h, fe.Facts, fe.Decision, fe.CreatedAt)
	if err != nil {
		log.Printf("[CACHE] [WARN] Ignoring unreadable entry %s: %v", h.Short(), err)
		return nil, nil
	}
	return e, nil
}

// Store records facts and decision for h and flushes the file
func (s *FileStore) Store(ctx context.Context, h Hash, facts types.FactSet, decision types.TriageAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	factsJSON, decisionJSON, err := EncodePayload(facts, decision)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := h.String()
	if existing, ok := s.entries[key]; ok &&
		jsonEqual(existing.Facts, factsJSON) && jsonEqual(existing.Decision, decisionJSON) {
		return nil
	}

	prev, hadPrev := s.entries[key]
	s.entries[key] = fileEntry{Facts: factsJSON, Decision: decisionJSON, CreatedAt: s.now().UTC()}
	if err := s.flushLocked(); err != nil {
		// keep memory consistent with disk
		if hadPrev {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return WrapIO("store", "file", err)
	}
	return nil
}

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".triage_cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Stats implements StatsReporter
func (s *FileStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Backend: "file", Location: s.path, Entries: len(s.entries)}, nil
}

// Close is a no-op; every Store is already flushed
func (s *FileStore) Close() error { return nil }

// jsonEqual compares two encodings after compacting whitespace
func jsonEqual(a, b []byte) bool {
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	ea, _ := json.Marshal(x)
	eb, _ := json.Marshal(y)
	return string(ea) == string(eb)
}

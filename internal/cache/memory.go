package cache

import (
	"context"
	"sync"
	"time"

	"github.com/steveyegge/triage/internal/types"
)

// MemoryStore keeps entries in process memory. Used by tests and by runs
// that should not persist anything.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Hash]Entry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Hash]Entry), now: time.Now}
}

// Lookup returns a deep copy of the entry for h, or nil on a miss
func (m *MemoryStore) Lookup(ctx context.Context, h Hash) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[h]
	if !ok {
		return nil, nil
	}
	e.Facts = e.Facts.Clone()
	e.Decision = e.Decision.Clone()
	return &e, nil
}

// Store records facts and decision for h
func (m *MemoryStore) Store(ctx context.Context, h Hash, facts types.FactSet, decision types.TriageAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[h]; ok && samePayload(&existing, facts, decision) {
		return nil
	}
	m.entries[h] = Entry{Hash: h, Facts: facts.Clone(), Decision: decision.Clone(), CreatedAt: m.now().UTC()}
	return nil
}

// Stats implements StatsReporter
func (m *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Backend: "memory", Entries: len(m.entries)}, nil
}

// Len returns the number of entries
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

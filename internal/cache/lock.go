package cache

import (
	"context"
	"log"
	"sync"

	"github.com/steveyegge/triage/internal/types"
)

// KeyedMutex hands out one lock per content hash. Holding it across
// lookup, extract and store keeps two workers from extracting the same
// content. Locks are reference counted and dropped once unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[Hash]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[Hash]*keyedLock)}
}

// Lock blocks until the lock for h is held and returns its unlock func
func (k *KeyedMutex) Lock(h Hash) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[h]
	if !ok {
		l = &keyedLock{}
		k.locks[h] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, h)
			}
			k.mu.Unlock()
		})
	}
}

// Held returns the number of hashes with a holder or waiter
func (k *KeyedMutex) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// degrading turns persistence failures into misses and dropped writes
type degrading struct {
	inner Store
}

// Degrading wraps a store so that I/O errors are logged instead of returned:
// a failed Lookup is a miss and a failed Store is dropped. Context
// cancellation is still returned.
func Degrading(s Store) Store {
	if _, ok := s.(*degrading); ok {
		return s
	}
	return &degrading{inner: s}
}

func (d *degrading) Lookup(ctx context.Context, h Hash) (*Entry, error) {
	e, err := d.inner.Lookup(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[CACHE] [WARN] Lookup %s failed, treating as miss: %v", h.Short(), err)
		return nil, nil
	}
	return e, nil
}

func (d *degrading) Store(ctx context.Context, h Hash, facts types.FactSet, decision types.TriageAction) error {
	if err := d.inner.Store(ctx, h, facts, decision); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[CACHE] [WARN] Store %s failed, result not cached: %v", h.Short(), err)
	}
	return nil
}

func (d *degrading) Stats(ctx context.Context) (Stats, error) {
	if sr, ok := d.inner.(StatsReporter); ok {
		return sr.Stats(ctx)
	}
	return Stats{Backend: "unknown", Entries: -1}, nil
}

func (d *degrading) Close() error { return d.inner.Close() }

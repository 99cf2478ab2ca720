package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/triage/internal/types"
)

func sampleFacts() types.FactSet {
	osName := "linux"
	return types.FactSet{
		HasReproductionSteps: true,
		IsCrash:              true,
		OperatingSystem:      &osName,
		Summary:              "crash on save",
		Difficulty:           types.DifficultyMedium,
		RequiredSkills:       []string{"go"},
		PrimaryArea:          types.AreaBackend,
		ExtractionConfidence: 0.9,
	}
}

func sampleDecision() types.TriageAction {
	return types.NewTriageAction(5, []string{"bug", "critical"}, "crash", types.SourceRules)
}

func TestComputeHashIsStable(t *testing.T) {
	a := ComputeHash("title", "body", []string{"c1", "c2"})
	b := ComputeHash("title", "body", []string{"c1", "c2"})
	assert.Equal(t, a, b)
	assert.Len(t, a.String(), 64)
}

func TestComputeHashSeparatesFields(t *testing.T) {
	tests := []struct {
		name string
		a, b Hash
	}{
		{"title/body split", ComputeHash("ab", "c", nil), ComputeHash("a", "bc", nil)},
		{"body/comment split", ComputeHash("t", "body", []string{"x"}), ComputeHash("t", "bodyx", nil)},
		{"comment boundary", ComputeHash("t", "b", []string{"ab", "c"}), ComputeHash("t", "b", []string{"a", "bc"})},
		{"comment order", ComputeHash("t", "b", []string{"1", "2"}), ComputeHash("t", "b", []string{"2", "1"})},
		{"empty comment", ComputeHash("t", "b", []string{""}), ComputeHash("t", "b", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, tt.a, tt.b)
		})
	}
}

func TestParseHash(t *testing.T) {
	h := ComputeHash("t", "b", nil)
	parsed, err := ParseHash(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = ParseHash("abc")
	assert.Error(t, err)
	_, err = ParseHash("zz")
	assert.Error(t, err)
	assert.True(t, Hash{}.IsZero())
}

// storeContract runs the behaviour every backend must share
func storeContract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		s := open(t)
		e, err := s.Lookup(ctx, ComputeHash("nothing", "here", nil))
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("store then lookup round trips", func(t *testing.T) {
		s := open(t)
		h := ComputeHash("t", "b", nil)
		require.NoError(t, s.Store(ctx, h, sampleFacts(), sampleDecision()))

		e, err := s.Lookup(ctx, h)
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.Equal(t, h, e.Hash)
		assert.Equal(t, sampleFacts(), e.Facts)
		assert.Equal(t, sampleDecision(), e.Decision)
		assert.False(t, e.CreatedAt.IsZero())
	})

	t.Run("identical store is idempotent", func(t *testing.T) {
		s := open(t)
		h := ComputeHash("idem", "b", nil)
		require.NoError(t, s.Store(ctx, h, sampleFacts(), sampleDecision()))
		first, err := s.Lookup(ctx, h)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		require.NoError(t, s.Store(ctx, h, sampleFacts(), sampleDecision()))
		second, err := s.Lookup(ctx, h)
		require.NoError(t, err)

		assert.Equal(t, first.Facts, second.Facts)
		assert.Equal(t, first.Decision, second.Decision)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "CreatedAt moved on identical store")
	})

	t.Run("entries do not alias the store", func(t *testing.T) {
		s := open(t)
		h := ComputeHash("alias", "b", nil)
		facts, decision := sampleFacts(), sampleDecision()
		require.NoError(t, s.Store(ctx, h, facts, decision))
		facts.RequiredSkills[0] = "changed"
		decision.Labels[0] = "changed"

		e, err := s.Lookup(ctx, h)
		require.NoError(t, err)
		e.Facts.RequiredSkills[0] = "mutated"
		e.Decision.Labels[0] = "mutated"
		e.Facts.RequiredSkills = append(e.Facts.RequiredSkills, "extra")
		*e.Facts.OperatingSystem = "plan9"

		again, err := s.Lookup(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, sampleFacts(), again.Facts)
		assert.Equal(t, sampleDecision(), again.Decision)
	})

	t.Run("different decision overwrites", func(t *testing.T) {
		s := open(t)
		h := ComputeHash("fix", "b", nil)
		require.NoError(t, s.Store(ctx, h, sampleFacts(), sampleDecision()))

		corrected := types.NewTriageAction(2, []string{"bug"}, "not a crash after all", types.SourceRules)
		require.NoError(t, s.Store(ctx, h, sampleFacts(), corrected))

		e, err := s.Lookup(ctx, h)
		require.NoError(t, err)
		assert.Equal(t, corrected, e.Decision)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestFileStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, err := NewFileStore(filepath.Join(t.TempDir(), "cache.json"))
		require.NoError(t, err)
		return s
	})
}

func TestFileStorePersistsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", DefaultFilePath)
	h := ComputeHash("persist", "me", []string{"c"})

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Store(ctx, h, sampleFacts(), sampleDecision()))
	require.NoError(t, s.Close())

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	e, err := reopened.Lookup(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, sampleFacts(), e.Facts)

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, "file", stats.Backend)
}

func TestFileStoreCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, 0, mustStats(t, s).Entries)

	// the next write replaces the corrupt file
	require.NoError(t, s.Store(context.Background(), ComputeHash("a", "b", nil), sampleFacts(), sampleDecision()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "crash on save")
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "cache.json"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Store(context.Background(), ComputeHash("t", string(rune('a'+i)), nil), sampleFacts(), sampleDecision()))
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func mustStats(t *testing.T, s StatsReporter) Stats {
	t.Helper()
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	return st
}

func TestKeyedMutexSerializesSameHash(t *testing.T) {
	km := NewKeyedMutex()
	h := ComputeHash("same", "content", nil)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(h)
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, km.Held())
}

func TestKeyedMutexDifferentHashesDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock(ComputeHash("a", "", nil))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := km.Lock(ComputeHash("b", "", nil))
		unlock()
		unlock() // second call is a no-op
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different hash blocked")
	}
}

type failingStore struct {
	err error
}

func (f failingStore) Lookup(ctx context.Context, h Hash) (*Entry, error) { return nil, f.err }
func (f failingStore) Store(ctx context.Context, h Hash, facts types.FactSet, decision types.TriageAction) error {
	return f.err
}
func (f failingStore) Close() error { return nil }

func TestDegradingTurnsIOErrorsIntoMisses(t *testing.T) {
	ioErr := WrapIO("lookup", "test", errors.New("disk on fire"))
	s := Degrading(failingStore{err: ioErr})
	ctx := context.Background()

	e, err := s.Lookup(ctx, ComputeHash("a", "b", nil))
	assert.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, s.Store(ctx, ComputeHash("a", "b", nil), sampleFacts(), sampleDecision()))

	// wrapping twice is a no-op
	assert.Same(t, s, Degrading(s))
}

func TestDegradingStillReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := Degrading(NewMemoryStore())
	_, err := s.Lookup(ctx, ComputeHash("a", "b", nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIOErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("permission denied")
	err := WrapIO("store", "file", cause)
	assert.ErrorIs(t, err, ErrCacheIO)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "cache store (file)")
	assert.Nil(t, WrapIO("store", "file", nil))
	assert.Same(t, err, WrapIO("lookup", "other", err))
}

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/types"
)

// setupTestStore connects to TRIAGE_TEST_POSTGRES_DSN and empties the table
func setupTestStore(t *testing.T) *Store {
	dsn := os.Getenv("TRIAGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL test (TRIAGE_TEST_POSTGRES_DSN not set)")
	}
	ctx := context.Background()
	s, err := New(ctx, DefaultConfig(dsn))
	if err != nil {
		t.Skipf("Skipping PostgreSQL test (database not available): %v", err)
	}
	_, err = s.pool.Exec(ctx, "TRUNCATE TABLE cache_entries")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, cache.ErrCacheIO)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	h := cache.ComputeHash("pg", "body", nil)
	facts := types.FactSet{Summary: "slow query", Difficulty: types.DifficultyMedium, PrimaryArea: types.AreaDatabase, ExtractionConfidence: 0.6}
	decision := types.NewTriageAction(3, []string{"database"}, "db issue", types.SourceRules)

	require.NoError(t, s.Store(ctx, h, facts, decision))
	first, err := s.Lookup(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, facts, first.Facts)
	assert.Equal(t, decision, first.Decision)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Store(ctx, h, facts, decision))
	second, err := s.Lookup(ctx, h)
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	miss, err := s.Lookup(ctx, cache.ComputeHash("other", "", nil))
	require.NoError(t, err)
	assert.Nil(t, miss)
}

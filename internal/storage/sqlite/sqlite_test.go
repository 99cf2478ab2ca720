package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/triage/internal/cache"
	"github.com/steveyegge/triage/internal/storage/migrations"
	"github.com/steveyegge/triage/internal/types"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache", "triage.db")
	s, err := New(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func facts() types.FactSet {
	return types.FactSet{
		HasStacktrace:        true,
		IsBlocker:            true,
		Summary:              "deadlock in scheduler",
		Difficulty:           types.DifficultyHard,
		RequiredSkills:       []string{"go", "concurrency"},
		IssueType:            types.TypeBug,
		ExtractionConfidence: 0.75,
	}
}

func TestStoreAndLookup(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	h := cache.ComputeHash("deadlock", "scheduler hangs", []string{"same here"})
	decision := types.NewTriageAction(5, []string{"critical", "bug"}, "blocker", types.SourceRules)

	miss, err := s.Lookup(ctx, h)
	require.NoError(t, err)
	assert.Nil(t, miss)

	require.NoError(t, s.Store(ctx, h, facts(), decision))

	e, err := s.Lookup(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, facts(), e.Facts)
	assert.Equal(t, decision, e.Decision)
}

func TestStoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	h := cache.ComputeHash("a", "b", nil)
	decision := types.NewTriageAction(3, []string{"needs-info"}, "thin", types.SourceRules)

	require.NoError(t, s.Store(ctx, h, facts(), decision))
	first, err := s.Lookup(ctx, h)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Store(ctx, h, facts(), decision))
	second, err := s.Lookup(ctx, h)
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	corrected := types.NewTriageAction(1, []string{"good-first-issue"}, "easy after all", types.SourceRules)
	require.NoError(t, s.Store(ctx, h, facts(), corrected))
	third, err := s.Lookup(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, corrected, third.Decision)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestReopenKeepsEntriesAndSchema(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)
	h := cache.ComputeHash("persist", "", nil)
	require.NoError(t, s.Store(ctx, h, facts(), types.NewTriageAction(2, nil, "r", types.SourceRules)))
	require.NoError(t, s.Close())

	reopened, err := New(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	e, err := reopened.Lookup(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, e)

	version, err := migrations.Version(ctx, reopened.db)
	require.NoError(t, err)
	assert.Equal(t, len(schemaMigrations), version)
}

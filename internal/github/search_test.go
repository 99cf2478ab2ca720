package github

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/triage/internal/types"
)

type staticKeywords struct {
	keywords []string
	err      error
	gotText  string
}

func (k *staticKeywords) Keywords(ctx context.Context, text string) ([]string, error) {
	k.gotText = text
	return k.keywords, k.err
}

func TestCandidateQuery(t *testing.T) {
	assert.Equal(t, "repo:acme/app is:issue sort:relevance sigsegv deadlock",
		CandidateQuery("acme/app", []string{"sigsegv", "deadlock"}))
}

func TestSearchExcludesSelfAndScoresByRank(t *testing.T) {
	f, c := newFakeGitHub(t)
	f.on("GET /search/issues", 200, map[string]any{
		"items": []any{
			issueJSON(10, "current issue", "open"),
			issueJSON(4, "older report", "closed"),
			issueJSON(5, "similar report", "open"),
		},
	})
	kw := &staticKeywords{keywords: []string{"sigsegv"}}
	s := NewCandidateSearcher(c, kw, 5)

	item := &types.Item{Number: 10, Repo: "acme/app", Title: "Segfault", Body: "SIGSEGV in worker"}
	cands, err := s.Search(context.Background(), item, types.FactSet{Summary: "Fix segfault"})
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, 4, cands[0].ID)
	assert.Equal(t, types.StateClosed, cands[0].State)
	assert.Equal(t, 1.0, cands[0].SimilarityScore)
	assert.Equal(t, 5, cands[1].ID)
	assert.Equal(t, 0.5, cands[1].SimilarityScore)
	for _, c := range cands {
		assert.NoError(t, c.Validate())
	}

	assert.Equal(t, "repo:acme/app is:issue sort:relevance sigsegv", f.requests[0].Query)
	assert.Contains(t, kw.gotText, "Fix segfault")
}

func TestSearchRespectsLimit(t *testing.T) {
	f, c := newFakeGitHub(t)
	f.on("GET /search/issues", 200, map[string]any{
		"items": []any{issueJSON(1, "a", "open"), issueJSON(2, "b", "open"), issueJSON(3, "c", "open")},
	})
	s := NewCandidateSearcher(c, &staticKeywords{keywords: []string{"x"}}, 2)

	cands, err := s.SearchKeywords(context.Background(), "acme/app", 99, []string{"x"})
	require.NoError(t, err)
	assert.Len(t, cands, 2)
}

func TestSearchKeywordFailure(t *testing.T) {
	_, c := newFakeGitHub(t)
	s := NewCandidateSearcher(c, &staticKeywords{err: errors.New("model down")}, 0)

	_, err := s.Search(context.Background(), &types.Item{Number: 1, Repo: "acme/app", Title: "t"}, types.FactSet{})
	assert.Error(t, err)
}

func TestSearchWithoutRepo(t *testing.T) {
	_, c := newFakeGitHub(t)
	kw := &staticKeywords{keywords: []string{"x"}}
	s := NewCandidateSearcher(c, kw, 0)

	cands, err := s.Search(context.Background(), &types.Item{Title: "local file"}, types.FactSet{})
	require.NoError(t, err)
	assert.Empty(t, cands)
	assert.Empty(t, kw.gotText)
}

func TestSearchAPIError(t *testing.T) {
	f, c := newFakeGitHub(t)
	f.on("GET /search/issues", 403, map[string]any{"message": "rate limited"})
	s := NewCandidateSearcher(c, &staticKeywords{keywords: []string{"x"}}, 0)

	_, err := s.Search(context.Background(), &types.Item{Number: 1, Repo: "acme/app", Title: "t"}, types.FactSet{})
	assert.ErrorIs(t, err, ErrRateLimited)
}

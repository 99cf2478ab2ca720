package github

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
)

// DefaultCandidateLimit is how many candidates a search returns
const DefaultCandidateLimit = 5

// snippetLength bounds the body text carried on a candidate
const snippetLength = 500

// KeywordSource turns item text into search terms
type KeywordSource interface {
	Keywords(ctx context.Context, text string) ([]string, error)
}

// CandidateSearcher finds duplicate candidates with the issue search API
type CandidateSearcher struct {
	client   *Client
	keywords KeywordSource
	limit    int
}

var _ triage.Searcher = (*CandidateSearcher)(nil)

// NewCandidateSearcher creates a searcher returning at most limit
// candidates (DefaultCandidateLimit when limit <= 0)
func NewCandidateSearcher(client *Client, keywords KeywordSource, limit int) *CandidateSearcher {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	return &CandidateSearcher{client: client, keywords: keywords, limit: limit}
}

// Search returns issues in the item's repository that match its keywords,
// most relevant first. The item itself is never a candidate. GitHub reports
// relevance order but no score, so the score is derived from rank:
// 1 - rank/n, giving 1.0 for the top result.
func (s *CandidateSearcher) Search(ctx context.Context, item *types.Item, facts types.FactSet) ([]types.CandidateItem, error) {
	if item.Repo == "" {
		log.Printf("[GITHUB] %s has no repository, skipping candidate search", item.Ref())
		return nil, nil
	}

	text := item.Title
	if facts.Summary != "" {
		text += "\n" + facts.Summary
	}
	text += "\n" + item.Body
	kws, err := s.keywords.Keywords(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate search keywords: %w", err)
	}
	return s.SearchKeywords(ctx, item.Repo, item.Number, kws)
}

// SearchKeywords runs the candidate query for explicit keywords, excluding
// issue number exclude
func (s *CandidateSearcher) SearchKeywords(ctx context.Context, repo string, exclude int, keywords []string) ([]types.CandidateItem, error) {
	owner, name, err := ParseRepo(repo)
	if err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return nil, nil
	}
	q := CandidateQuery(owner+"/"+name, keywords)

	// one extra in case the item itself is a hit
	hits, err := s.client.search(ctx, q, s.limit+1)
	if err != nil {
		return nil, fmt.Errorf("candidate search for %s/%s failed: %w", owner, name, err)
	}

	var kept []apiIssue
	for _, h := range hits {
		if h.Number == exclude {
			continue
		}
		kept = append(kept, h)
		if len(kept) == s.limit {
			break
		}
	}

	candidates := make([]types.CandidateItem, 0, len(kept))
	for rank, h := range kept {
		state, err := types.ParseItemState(h.State)
		if err != nil {
			continue
		}
		candidates = append(candidates, types.CandidateItem{
			ID:              h.Number,
			Title:           h.Title,
			BodySnippet:     truncate(h.body(), snippetLength),
			State:           state,
			SimilarityScore: 1.0 - float64(rank)/float64(len(kept)),
		})
	}
	log.Printf("[GITHUB] Found %d candidates in %s/%s for %q", len(candidates), owner, name, strings.Join(keywords, " "))
	return candidates, nil
}

// CandidateQuery builds the search query for duplicate candidates
func CandidateQuery(repo string, keywords []string) string {
	return fmt.Sprintf("repo:%s is:issue sort:relevance %s", repo, strings.Join(keywords, " "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

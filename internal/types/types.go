package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Item is one issue-tracker item awaiting triage
type Item struct {
	Number    int       `json:"number"`
	Repo      string    `json:"repo,omitempty"` // owner/name, empty for local files
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Comments  []string  `json:"comments,omitempty"` // ordered oldest first
	URL       string    `json:"url,omitempty"`
	State     ItemState `json:"state"`
	Labels    []string  `json:"labels,omitempty"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate checks if the item has the fields the pipeline relies on
func (i *Item) Validate() error {
	if strings.TrimSpace(i.Title) == "" && strings.TrimSpace(i.Body) == "" {
		return fmt.Errorf("item has neither title nor body")
	}
	if i.Number < 0 {
		return fmt.Errorf("item number cannot be negative (got %d)", i.Number)
	}
	if i.State != "" && !i.State.IsValid() {
		return fmt.Errorf("invalid item state: %s", i.State)
	}
	return nil
}

// Ref returns a short human-readable reference such as "owner/repo#12"
func (i *Item) Ref() string {
	if i.Repo == "" {
		return fmt.Sprintf("#%d", i.Number)
	}
	return fmt.Sprintf("%s#%d", i.Repo, i.Number)
}

// Text returns the canonical text handed to the extraction collaborator.
// The layout matches what the extractor prompt expects.
func (i *Item) Text() string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(i.Title)
	b.WriteString("\n\nBody:\n")
	b.WriteString(i.Body)
	if len(i.Comments) > 0 {
		b.WriteString("\n\nComments:\n")
		b.WriteString(strings.Join(i.Comments, "\n"))
	}
	return b.String()
}

// ItemState is the open/closed state reported by the tracker
type ItemState string

const (
	StateOpen   ItemState = "open"
	StateClosed ItemState = "closed"
)

// IsValid checks if the state value is valid
func (s ItemState) IsValid() bool {
	switch s {
	case StateOpen, StateClosed:
		return true
	}
	return false
}

// ParseItemState normalizes tracker state strings ("OPEN", "closed", ...)
func ParseItemState(s string) (ItemState, error) {
	state := ItemState(strings.ToLower(strings.TrimSpace(s)))
	if !state.IsValid() {
		return "", fmt.Errorf("unknown item state: %q", s)
	}
	return state, nil
}

// CandidateItem is a previously seen item proposed by search as a possible duplicate
type CandidateItem struct {
	ID              int       `json:"id"`
	Title           string    `json:"title"`
	BodySnippet     string    `json:"body_snippet,omitempty"`
	State           ItemState `json:"state"`
	SimilarityScore float64   `json:"similarity_score"`
}

// Validate checks if the candidate has valid field values
func (c *CandidateItem) Validate() error {
	if !c.State.IsValid() {
		return fmt.Errorf("candidate #%d has invalid state: %q", c.ID, c.State)
	}
	// scores are only compared with each other, so any range will do
	if math.IsNaN(c.SimilarityScore) {
		return fmt.Errorf("candidate #%d has no similarity score (NaN)", c.ID)
	}
	return nil
}

package deduplication

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"unicode/utf8"

	"github.com/steveyegge/triage/internal/types"
)

// ErrVerificationFailed wraps verifier errors and invalid judgments
var ErrVerificationFailed = errors.New("verification failed")

// Deduplicator checks one item against search candidates
type Deduplicator interface {
	// Check returns the verdict for item given its extracted facts and the
	// candidates proposed by search (already excluding item itself).
	Check(ctx context.Context, item *types.Item, facts types.FactSet, candidates []types.CandidateItem) (*Verdict, error)
}

// Verifier judges whether one candidate is the same issue as the item
type Verifier interface {
	Verify(ctx context.Context, item *types.Item, facts types.FactSet, candidate types.CandidateItem) (*Judgment, error)
}

// Judgment is the verifier's answer for one candidate
type Judgment struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// Validate checks if the judgment has valid values
func (j *Judgment) Validate() error {
	if j.Confidence < 0.0 || j.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", j.Confidence)
	}
	return nil
}

// Status is the outcome of a duplicate check
type Status string

const (
	StatusNoMatch        Status = "no_match"
	StatusDuplicateOpen  Status = "duplicate_open"
	StatusPriorArtClosed Status = "prior_art_closed"
)

// Verdict is the result of checking one item
type Verdict struct {
	Status Status `json:"status"`

	// MatchedItemID is the winning candidate, set only for a match
	MatchedItemID *int `json:"matched_item_id,omitempty"`

	// Confidence is the winner's confidence for a match. For NoMatch it is
	// the highest positive confidence seen but not accepted, 0 when no
	// candidate was positive, and 1.0 when there were no candidates.
	Confidence float64 `json:"confidence"`

	Reasoning string `json:"reasoning,omitempty"`

	// Verified is the number of verifier calls made
	Verified int `json:"verified"`

	// Possible is set when a positive judgment fell between
	// PossibleThreshold and ConfidenceThreshold
	Possible *PossibleMatch `json:"possible,omitempty"`
}

// PossibleMatch is a below-threshold positive judgment kept as a hint
type PossibleMatch struct {
	ItemID     int             `json:"item_id"`
	State      types.ItemState `json:"state"`
	Confidence float64         `json:"confidence"`
	Reasoning  string          `json:"reasoning,omitempty"`
}

// IsMatch reports whether the verdict short-circuits the rules
func (v *Verdict) IsMatch() bool {
	return v.Status == StatusDuplicateOpen || v.Status == StatusPriorArtClosed
}

// String returns a compact representation for logs
func (v *Verdict) String() string {
	if v.IsMatch() && v.MatchedItemID != nil {
		return fmt.Sprintf("%s #%d (%.2f)", v.Status, *v.MatchedItemID, v.Confidence)
	}
	return fmt.Sprintf("%s (%.2f)", v.Status, v.Confidence)
}

// NoMatch builds a NoMatch verdict
func NoMatch(confidence float64, reasoning string) *Verdict {
	return &Verdict{Status: StatusNoMatch, Confidence: confidence, Reasoning: reasoning}
}

// Checker implements Deduplicator on top of a Verifier
type Checker struct {
	verifier Verifier
	config   Config
}

var _ Deduplicator = (*Checker)(nil)

// NewChecker creates a checker. Returns an error if verifier is nil or if
// config validation fails.
func NewChecker(verifier Verifier, config Config) (*Checker, error) {
	if verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Checker{verifier: verifier, config: config}, nil
}

// Config returns the checker's configuration
func (c *Checker) Config() Config {
	return c.config
}

// Check implements Deduplicator
func (c *Checker) Check(ctx context.Context, item *types.Item, facts types.FactSet, candidates []types.CandidateItem) (*Verdict, error) {
	if item == nil {
		return nil, fmt.Errorf("item cannot be nil")
	}

	if len(candidates) == 0 {
		return NoMatch(1.0, "no candidates"), nil
	}

	if n := utf8.RuneCountInString(item.Title); n < c.config.MinTitleLength {
		log.Printf("[DEDUP] Skipping duplicate check for short title (len=%d, min=%d): %s",
			n, c.config.MinTitleLength, item.Title)
		return NoMatch(0.0, fmt.Sprintf("title too short for comparison (len=%d)", n)), nil
	}

	ranked := Rank(candidates, c.config.MinSimilarity, item.Number)
	if len(ranked) == 0 {
		others := 0
		for _, cand := range candidates {
			if item.Number <= 0 || cand.ID != item.Number {
				others++
			}
		}
		if others == 0 {
			return NoMatch(1.0, "no candidates"), nil
		}
		// candidates existed but none were verified; nothing is certain
		return NoMatch(0.0, fmt.Sprintf("%d candidates dropped before verification", others)), nil
	}
	if len(ranked) > c.config.TopK {
		ranked = ranked[:c.config.TopK]
	}

	verdict := NoMatch(0.0, "")
	for _, cand := range ranked {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		judgment, err := c.verifier.Verify(ctx, item, facts, cand)
		verdict.Verified++
		if err != nil {
			return nil, fmt.Errorf("%w: candidate #%d: %w", ErrVerificationFailed, cand.ID, err)
		}
		if judgment == nil {
			return nil, fmt.Errorf("%w: candidate #%d: empty judgment", ErrVerificationFailed, cand.ID)
		}
		if err := judgment.Validate(); err != nil {
			return nil, fmt.Errorf("%w: candidate #%d: %w", ErrVerificationFailed, cand.ID, err)
		}

		if !judgment.IsDuplicate {
			continue
		}

		if judgment.Confidence >= c.config.ConfidenceThreshold {
			id := cand.ID
			verdict.MatchedItemID = &id
			verdict.Confidence = judgment.Confidence
			verdict.Reasoning = judgment.Reasoning
			verdict.Possible = nil
			if cand.State == types.StateClosed {
				verdict.Status = StatusPriorArtClosed
			} else {
				verdict.Status = StatusDuplicateOpen
			}
			log.Printf("[DEDUP] %s matches #%d (%s, confidence %.2f) after %d verifications",
				item.Ref(), cand.ID, cand.State, judgment.Confidence, verdict.Verified)
			return verdict, nil
		}

		// gated out: remember the strongest rejected positive
		if judgment.Confidence > verdict.Confidence {
			verdict.Confidence = judgment.Confidence
		}
		if judgment.Confidence >= c.config.PossibleThreshold &&
			(verdict.Possible == nil || judgment.Confidence > verdict.Possible.Confidence) {
			verdict.Possible = &PossibleMatch{
				ItemID:     cand.ID,
				State:      cand.State,
				Confidence: judgment.Confidence,
				Reasoning:  judgment.Reasoning,
			}
		}
	}

	verdict.Reasoning = fmt.Sprintf("no candidate reached confidence %.2f (%d verified)",
		c.config.ConfidenceThreshold, verdict.Verified)
	return verdict, nil
}

// Rank returns valid candidates sorted by descending score, whatever range
// the search uses. Ties keep search order. A positive minSimilarity drops
// lower scores. The item's own number is dropped in case search returned it.
func Rank(candidates []types.CandidateItem, minSimilarity float64, self int) []types.CandidateItem {
	out := make([]types.CandidateItem, 0, len(candidates))
	for _, cand := range candidates {
		if err := cand.Validate(); err != nil {
			log.Printf("[DEDUP] [WARN] Ignoring candidate: %v", err)
			continue
		}
		if self > 0 && cand.ID == self {
			continue
		}
		if minSimilarity > 0 && cand.SimilarityScore < minSimilarity {
			continue
		}
		out = append(out, cand)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SimilarityScore > out[j].SimilarityScore
	})
	return out
}

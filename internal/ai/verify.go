package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/triage/internal/deduplication"
	"github.com/steveyegge/triage/internal/types"
)

var _ deduplication.Verifier = (*Supervisor)(nil)

// pointers so a missing key is distinguishable from false or zero
type verifyResponse struct {
	IsDuplicate *bool    `json:"is_duplicate"`
	Confidence  *float64 `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
}

// Verify asks the model whether candidate reports the same root cause as
// item. A response that is not a valid judgment is an error, never a
// negative judgment.
func (s *Supervisor) Verify(ctx context.Context, item *types.Item, facts types.FactSet, candidate types.CandidateItem) (*deduplication.Judgment, error) {
	response, err := s.CallAI(ctx, buildVerifyPrompt(item, facts, candidate), "verification", "", 512)
	if err != nil {
		return nil, err
	}

	parsed, err := Parse[verifyResponse](response, ParseOptions{Context: "verification"})
	if err != nil {
		return nil, err
	}
	if parsed.IsDuplicate == nil || parsed.Confidence == nil {
		return nil, fmt.Errorf("verification response missing is_duplicate or confidence")
	}

	judgment := &deduplication.Judgment{
		IsDuplicate: *parsed.IsDuplicate,
		Confidence:  *parsed.Confidence,
		Reasoning:   strings.TrimSpace(parsed.Reasoning),
	}
	if err := judgment.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verification response: %w", err)
	}
	return judgment, nil
}

func buildVerifyPrompt(item *types.Item, facts types.FactSet, candidate types.CandidateItem) string {
	var sb strings.Builder
	sb.WriteString("You are a senior QA engineer. Decide whether the EXISTING issue describes the\n")
	sb.WriteString("same root cause as the NEW issue. Similar wording is not enough.\n\n")
	sb.WriteString("Confidence guide:\n")
	sb.WriteString("- 1.0: identical stack trace or error code\n")
	sb.WriteString("- 0.8: same behavior described in different words\n")
	sb.WriteString("- below 0.5: only vaguely similar\n\n")

	fmt.Fprintf(&sb, "NEW ISSUE #%d: %s\n", item.Number, item.Title)
	fmt.Fprintf(&sb, "Summary: %s\n", facts.Summary)
	fmt.Fprintf(&sb, "%s\n\n", truncate(item.Body, 3000))

	fmt.Fprintf(&sb, "EXISTING ISSUE #%d (%s): %s\n", candidate.ID, candidate.State, candidate.Title)
	fmt.Fprintf(&sb, "%s\n\n", truncate(candidate.BodySnippet, 1500))

	sb.WriteString("Respond with ONLY a JSON object:\n")
	sb.WriteString(`{"is_duplicate": bool, "confidence": number from 0.0 to 1.0, "reasoning": "one sentence"}`)
	sb.WriteString("\n")
	return sb.String()
}

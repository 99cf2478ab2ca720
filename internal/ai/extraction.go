package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/steveyegge/triage/internal/types"
)

// maxExtractionInput bounds the item text sent for extraction
const maxExtractionInput = 10000

// Extract asks the model for the facts of one item. The response must be a
// JSON object matching the FactSet schema exactly; anything else is an
// error, and the caller decides whether to retry.
func (s *Supervisor) Extract(ctx context.Context, text string) (types.FactSet, error) {
	if strings.TrimSpace(text) == "" {
		return types.FactSet{}, fmt.Errorf("nothing to extract: empty text")
	}

	response, err := s.CallAI(ctx, buildExtractionPrompt(text), "extraction", "", 0)
	if err != nil {
		return types.FactSet{}, err
	}

	raw, err := ParseRaw(response, ParseOptions{Context: "extraction"})
	if err != nil {
		return types.FactSet{}, err
	}
	facts, err := types.DecodeFactSet(raw)
	if err != nil {
		return types.FactSet{}, fmt.Errorf("extraction response rejected: %w", err)
	}
	return facts, nil
}

func buildExtractionPrompt(text string) string {
	return fmt.Sprintf(`You are screening issues for an open source project. Read the issue below and
report facts about it for two audiences:
- maintainers, who need to know about crashes, security risks and blockers
- contributors, who need to know whether the work is approachable

Report ONLY what the text states. Do not decide priority or labels.

Respond with ONLY a JSON object with exactly these keys:
{
  "has_reproduction_steps": bool,
  "has_stacktrace": bool,
  "has_logs": bool,
  "is_crash": bool,
  "is_security_issue": bool,
  "is_blocker": bool,
  "operating_system": string or null,
  "environment": string,
  "summary": "one plain sentence describing the goal, e.g. Fix crash when clicking login",
  "difficulty": "easy" | "medium" | "hard" | "unknown",
  "required_skills": [lowercase languages or tools, e.g. "python", "sql"],
  "issue_type": "bug" | "feature" | "question",
  "primary_area": "frontend" | "backend" | "database" | "devops" | "documentation" | "unknown",
  "verification_hint": string or null,
  "extraction_confidence": number from 0.0 to 1.0,
  "sentiment": number from -1.0 (hostile) to 1.0 (friendly)
}

Difficulty guide:
- easy: typos, documentation, small copy or style changes
- medium: an isolated bug fix or a single function change
- hard: architectural change, race conditions, core logic

ISSUE:
%s
`, truncate(text, maxExtractionInput))
}

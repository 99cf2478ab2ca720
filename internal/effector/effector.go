// Package effector applies finished triage outcomes to the outside world:
// the console, a GitHub repository, a local Beads tracker or a Kafka topic.
package effector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/triage/internal/deduplication"
	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
)

// CommentMarker tags comments written by triage so humans (and reruns) can
// recognize them
const CommentMarker = "<!-- triage-bot -->"

// Multi applies an outcome with every effector in order. All effectors run
// even when one fails; the errors are joined.
type Multi []triage.Effector

var _ triage.Effector = Multi(nil)

// Apply implements triage.Effector
func (m Multi) Apply(ctx context.Context, item *types.Item, out *triage.Outcome) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Apply(ctx, item, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Comment returns the tracker comment for an outcome, or "" when the
// outcome does not warrant one. Duplicate and prior-art matches get a
// comment, as does a possible duplicate below the match threshold.
func Comment(out *triage.Outcome) string {
	if out == nil || out.Action == nil || out.Failed() {
		return ""
	}
	v := out.Verdict

	var sb strings.Builder
	switch {
	case out.Action.Source == types.SourceDuplicate && v != nil && v.MatchedItemID != nil:
		fmt.Fprintf(&sb, "This looks like a duplicate of #%d (confidence %.0f%%).\n", *v.MatchedItemID, v.Confidence*100)
	case out.Action.Source == types.SourcePriorArt && v != nil && v.MatchedItemID != nil:
		fmt.Fprintf(&sb, "A closed issue, #%d, covers the same problem (confidence %.0f%%). It may already be fixed.\n",
			*v.MatchedItemID, v.Confidence*100)
	case v != nil && v.Possible != nil:
		fmt.Fprintf(&sb, "Possible duplicate of #%d (%s, confidence %.0f%%). A maintainer should confirm.\n",
			v.Possible.ItemID, v.Possible.State, v.Possible.Confidence*100)
		if v.Possible.Reasoning != "" {
			fmt.Fprintf(&sb, "\n> %s\n", v.Possible.Reasoning)
		}
		sb.WriteString("\n" + CommentMarker)
		return sb.String()
	default:
		return ""
	}
	if v.Reasoning != "" {
		fmt.Fprintf(&sb, "\n> %s\n", v.Reasoning)
	}
	sb.WriteString("\n" + CommentMarker)
	return sb.String()
}

// isMatch reports whether the outcome short-circuited on a duplicate check
func isMatch(out *triage.Outcome) bool {
	return out.Verdict != nil && out.Verdict.Status != deduplication.StatusNoMatch
}

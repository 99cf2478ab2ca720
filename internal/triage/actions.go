package triage

import (
	"fmt"

	"github.com/steveyegge/triage/internal/deduplication"
	"github.com/steveyegge/triage/internal/types"
)

// DuplicatePriority is the fixed score of a duplicate short-circuit. It sits
// below the rule range (0 for no match, 1 to 5 for a rule) so the score
// alone identifies a duplicate.
const DuplicatePriority = -1

// DuplicateAction builds the label-only action for a matching verdict.
// It returns false when the verdict is not a match.
func DuplicateAction(v *deduplication.Verdict) (types.TriageAction, bool) {
	if v == nil || !v.IsMatch() || v.MatchedItemID == nil {
		return types.TriageAction{}, false
	}
	id := *v.MatchedItemID
	switch v.Status {
	case deduplication.StatusDuplicateOpen:
		return types.NewTriageAction(DuplicatePriority,
			[]string{types.LabelDuplicate},
			fmt.Sprintf("Duplicate of #%d (confidence %.2f)", id, v.Confidence),
			types.SourceDuplicate), true
	case deduplication.StatusPriorArtClosed:
		return types.NewTriageAction(DuplicatePriority,
			[]string{types.LabelPriorArt},
			fmt.Sprintf("Prior art: closed issue #%d (confidence %.2f)", id, v.Confidence),
			types.SourcePriorArt), true
	}
	return types.TriageAction{}, false
}

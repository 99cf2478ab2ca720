package types

import (
	"fmt"
	"sort"
)

// TriageAction is the final, externally consumable output of one pass.
// It is built by the rule engine or by the duplicate short-circuit and never
// modified afterwards.
type TriageAction struct {
	PriorityScore int          `json:"priority_score"`
	Labels        []string     `json:"labels"`
	Reasoning     string       `json:"reasoning"`
	Source        ActionSource `json:"source,omitempty"`
}

// ActionSource records which component produced an action
type ActionSource string

const (
	SourceRules     ActionSource = "rules"
	SourceDefault   ActionSource = "default"
	SourceDuplicate ActionSource = "duplicate"
	SourcePriorArt  ActionSource = "prior_art"
)

// NewTriageAction builds an action with its labels normalized to a sorted set
func NewTriageAction(priority int, labels []string, reasoning string, source ActionSource) TriageAction {
	return TriageAction{
		PriorityScore: priority,
		Labels:        LabelSet(labels),
		Reasoning:     reasoning,
		Source:        source,
	}
}

// HasLabel reports whether the action carries the given label
func (a TriageAction) HasLabel(label string) bool {
	i := sort.SearchStrings(a.Labels, label)
	return i < len(a.Labels) && a.Labels[i] == label
}

// IsDuplicateShortCircuit reports whether the action came from a duplicate or prior-art match
func (a TriageAction) IsDuplicateShortCircuit() bool {
	return a.Source == SourceDuplicate || a.Source == SourcePriorArt
}

// Clone returns a copy that shares no memory with a
func (a TriageAction) Clone() TriageAction {
	a.Labels = cloneStrings(a.Labels)
	return a
}

// String returns a compact representation for logs
func (a TriageAction) String() string {
	return fmt.Sprintf("P%d %v (%s)", a.PriorityScore, a.Labels, a.Reasoning)
}

// LabelSet de-duplicates and sorts labels. Empty strings are dropped.
// The result is never nil so that it serializes as [].
func LabelSet(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

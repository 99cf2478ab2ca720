package triage

import (
	"fmt"
	"strings"

	"github.com/steveyegge/triage/internal/types"
)

// Role selects which decisions a reader wants to see
type Role string

const (
	RoleAll         Role = "all"
	RoleMaintainer  Role = "maintainer"  // high priority work (P4+)
	RoleContributor Role = "contributor" // approachable work (P1-P2)
)

// ParseRole accepts all, maintainer or contributor (case-insensitive).
// An empty string is RoleAll.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RoleAll, nil
	case RoleAll, RoleMaintainer, RoleContributor:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q (want all, maintainer or contributor)", s)
	}
}

// RoleFilter reports whether action is relevant to role. Duplicate and
// prior-art decisions are relevant to everyone.
func RoleFilter(role Role, action types.TriageAction) bool {
	if action.IsDuplicateShortCircuit() || action.PriorityScore == DuplicatePriority {
		return true
	}
	switch role {
	case RoleMaintainer:
		return action.PriorityScore >= 4
	case RoleContributor:
		return action.PriorityScore >= 1 && action.PriorityScore <= 2
	default:
		return true
	}
}

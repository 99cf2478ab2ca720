package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/triage/internal/deduplication"
	"github.com/steveyegge/triage/internal/types"
)

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{
		"":             RoleAll,
		"all":          RoleAll,
		"Maintainer":   RoleMaintainer,
		" contributor": RoleContributor,
	} {
		got, err := ParseRole(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseRole("admin")
	assert.Error(t, err)
}

func TestDuplicatePriorityOutsideRuleRange(t *testing.T) {
	assert.Less(t, DuplicatePriority, 0)

	id := 7
	for _, status := range []deduplication.Status{deduplication.StatusDuplicateOpen, deduplication.StatusPriorArtClosed} {
		action, ok := DuplicateAction(&deduplication.Verdict{Status: status, MatchedItemID: &id, Confidence: 0.9})
		require.True(t, ok)
		assert.Equal(t, DuplicatePriority, action.PriorityScore, status)
		assert.True(t, RoleFilter(RoleContributor, action), status)
	}
}

func TestRoleFilter(t *testing.T) {
	action := func(p int) types.TriageAction {
		return types.NewTriageAction(p, nil, "r", types.SourceRules)
	}
	dup := types.NewTriageAction(DuplicatePriority, []string{types.LabelDuplicate}, "Duplicate of #1 (confidence 0.90)", types.SourceDuplicate)

	tests := []struct {
		role   Role
		action types.TriageAction
		want   bool
	}{
		{RoleMaintainer, action(5), true},
		{RoleMaintainer, action(4), true},
		{RoleMaintainer, action(3), false},
		{RoleMaintainer, action(0), false},
		{RoleContributor, action(1), true},
		{RoleContributor, action(2), true},
		{RoleContributor, action(3), false},
		{RoleContributor, action(0), false},
		{RoleAll, action(0), true},
		{RoleMaintainer, dup, true},
		{RoleContributor, dup, true},
		{RoleMaintainer, action(DuplicatePriority), true},
		{RoleContributor, action(DuplicatePriority), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoleFilter(tt.role, tt.action), "%s %s", tt.role, tt.action)
	}
}

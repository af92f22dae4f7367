package approvals

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func rule(id uuid.UUID, minAmount float64) ApprovalRule {
	return ApprovalRule{ID: id, MinAmount: minAmount, IsActive: true, Type: TypeSequential}
}

func TestPickRuleLargestMinAmountWins(t *testing.T) {
	low := rule(uuid.New(), 0)
	mid := rule(uuid.New(), 100)
	high := rule(uuid.New(), 1000)

	picked := PickRule([]ApprovalRule{low, high, mid})
	require.NotNil(t, picked)
	require.Equal(t, high.ID, picked.ID)
}

func TestPickRuleTieBreaksOnSmallestID(t *testing.T) {
	a := rule(uuid.MustParse("00000000-0000-0000-0000-000000000001"), 100)
	b := rule(uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff"), 100)

	picked := PickRule([]ApprovalRule{b, a})
	require.NotNil(t, picked)
	require.Equal(t, a.ID, picked.ID)

	// Input order must not matter.
	picked = PickRule([]ApprovalRule{a, b})
	require.Equal(t, a.ID, picked.ID)
}

func TestPickRuleEmpty(t *testing.T) {
	require.Nil(t, PickRule(nil))
	require.Nil(t, PickRule([]ApprovalRule{}))
}

func TestMatches(t *testing.T) {
	catA := uuid.New()
	catB := uuid.New()
	max := 500.0
	r := ApprovalRule{
		IsActive:   true,
		MinAmount:  100,
		MaxAmount:  &max,
		Categories: SpecificCategories([]uuid.UUID{catA}),
	}

	require.True(t, r.Matches(100, catA))
	require.True(t, r.Matches(500, catA))
	require.False(t, r.Matches(99.99, catA))
	require.False(t, r.Matches(500.01, catA))
	require.False(t, r.Matches(200, catB))

	r.Categories = AllCategories()
	require.True(t, r.Matches(200, catB))

	r.IsActive = false
	require.False(t, r.Matches(200, catB))
}

func TestCategoryScopeEmptyListIsWildcard(t *testing.T) {
	scope := SpecificCategories(nil)
	require.True(t, scope.All())
	require.True(t, scope.Contains(uuid.New()))
}

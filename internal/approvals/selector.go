package approvals

import (
	"bytes"

	"github.com/google/uuid"
)

// PickRule chooses the applicable rule among candidates that already match
// the company, amount range and category filters. The rule with the largest
// MinAmount wins: the tightest lower bound is the most specific policy for
// the amount. Equal MinAmounts are broken by smallest rule id so selection
// is deterministic regardless of storage ordering.
func PickRule(candidates []ApprovalRule) *ApprovalRule {
	var best *ApprovalRule
	for i := range candidates {
		c := &candidates[i]
		if best == nil {
			best = c
			continue
		}
		if c.MinAmount > best.MinAmount {
			best = c
			continue
		}
		if c.MinAmount == best.MinAmount && bytes.Compare(c.ID[:], best.ID[:]) < 0 {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	picked := *best
	return &picked
}

// Matches reports whether the rule covers the amount and category. The
// repository filters candidates in SQL; this is the same predicate for
// in-memory evaluation and tests.
func (r ApprovalRule) Matches(amountInBaseCurrency float64, categoryID uuid.UUID) bool {
	if !r.IsActive {
		return false
	}
	if amountInBaseCurrency < r.MinAmount {
		return false
	}
	if r.MaxAmount != nil && amountInBaseCurrency > *r.MaxAmount {
		return false
	}
	return r.Categories.Contains(categoryID)
}

package approvals

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// MaterializeLogs builds the PENDING log set for an expense from the active
// assignments of the selected rule. Orders are copied verbatim from the
// assignments so later edits to the rule leave the in-flight workflow
// untouched. Returns nil when no active approver exists.
func MaterializeLogs(expenseID uuid.UUID, rule ApprovalRule, assignments []ApproverAssignment, now time.Time) []ApprovalLog {
	var logs []ApprovalLog
	for _, a := range assignments {
		if !a.IsActive {
			continue
		}
		logs = append(logs, ApprovalLog{
			ID:         uuid.New(),
			ExpenseID:  expenseID,
			RuleID:     rule.ID,
			ApproverID: a.UserID,
			Order:      a.Order,
			Status:     StatusPending,
			CreatedAt:  now,
		})
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Order < logs[j].Order })
	return logs
}

// Completion is the outcome of evaluating an expense's full log set after an
// approval.
type Completion int

const (
	// CompletionPending means the workflow continues.
	CompletionPending Completion = iota
	// CompletionApproved means every required approval is in place.
	CompletionApproved
)

// Evaluate decides whether the approval that just landed on actedOrder
// completes the expense. It always re-derives the decision from the full log
// set rather than from the single action, so concurrent approvals converge
// on the same answer.
//
// SEQUENTIAL completes only when every log ordered before actedOrder is
// already APPROVED and no log ordered after it is still PENDING. An approval
// landing ahead of its turn is recorded but does not complete the expense;
// the approval of the blocking earlier slot will.
//
// PARALLEL completes when the set is non-empty and unanimously APPROVED.
//
// A REJECTED log in the set while the expense is still under evaluation is a
// state the rejection sweep should have made impossible; it is reported as
// ErrInvariant and the caller must treat the evaluation as a no-op.
func Evaluate(logs []ApprovalLog, typ ApprovalType, actedOrder int) (Completion, error) {
	if len(logs) == 0 {
		return CompletionPending, fmt.Errorf("%w: empty log set", ErrInvariant)
	}
	for _, l := range logs {
		if l.Status == StatusRejected {
			return CompletionPending, fmt.Errorf("%w: rejected log %s in active workflow", ErrInvariant, l.ID)
		}
	}

	switch typ {
	case TypeParallel:
		for _, l := range logs {
			if l.Status != StatusApproved {
				return CompletionPending, nil
			}
		}
		return CompletionApproved, nil
	case TypeSequential:
		for _, l := range logs {
			if l.Order < actedOrder && l.Status != StatusApproved {
				return CompletionPending, nil
			}
			if l.Order > actedOrder && l.Status == StatusPending {
				return CompletionPending, nil
			}
		}
		return CompletionApproved, nil
	default:
		return CompletionPending, fmt.Errorf("%w: unknown approval type %q", ErrInvariant, typ)
	}
}

// NextPending returns the lowest-ordered pending log, or nil when none
// remains. Used to surface whose turn it is in sequential workflows.
func NextPending(logs []ApprovalLog) *ApprovalLog {
	var next *ApprovalLog
	for i := range logs {
		l := &logs[i]
		if l.Status != StatusPending {
			continue
		}
		if next == nil || l.Order < next.Order {
			next = l
		}
	}
	if next == nil {
		return nil
	}
	found := *next
	return &found
}

package approvals

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMaterializeLogsCopiesOrderAndSkipsInactive(t *testing.T) {
	rule := ApprovalRule{ID: uuid.New(), Type: TypeSequential}
	expenseID := uuid.New()
	manager := uuid.New()
	cfo := uuid.New()
	former := uuid.New()
	now := time.Now()

	logs := MaterializeLogs(expenseID, rule, []ApproverAssignment{
		{ID: uuid.New(), RuleID: rule.ID, UserID: cfo, Order: 2, IsActive: true},
		{ID: uuid.New(), RuleID: rule.ID, UserID: former, Order: 3, IsActive: false},
		{ID: uuid.New(), RuleID: rule.ID, UserID: manager, Order: 1, IsActive: true},
	}, now)

	require.Len(t, logs, 2)
	require.Equal(t, manager, logs[0].ApproverID)
	require.Equal(t, 1, logs[0].Order)
	require.Equal(t, cfo, logs[1].ApproverID)
	require.Equal(t, 2, logs[1].Order)
	for _, l := range logs {
		require.Equal(t, StatusPending, l.Status)
		require.Equal(t, expenseID, l.ExpenseID)
		require.Equal(t, rule.ID, l.RuleID)
		require.NotEqual(t, uuid.Nil, l.ID)
	}
}

func TestMaterializeLogsEmptyWhenNoActiveApprovers(t *testing.T) {
	rule := ApprovalRule{ID: uuid.New(), Type: TypeParallel}
	logs := MaterializeLogs(uuid.New(), rule, []ApproverAssignment{
		{UserID: uuid.New(), Order: 1, IsActive: false},
	}, time.Now())
	require.Empty(t, logs)
}

func seqLogs(statuses ...LogStatus) []ApprovalLog {
	logs := make([]ApprovalLog, 0, len(statuses))
	for i, s := range statuses {
		logs = append(logs, ApprovalLog{ID: uuid.New(), Order: i + 1, Status: s})
	}
	return logs
}

func TestEvaluateSequentialInOrder(t *testing.T) {
	// Middle approver acts while the tail is still pending.
	c, err := Evaluate(seqLogs(StatusApproved, StatusApproved, StatusPending), TypeSequential, 2)
	require.NoError(t, err)
	require.Equal(t, CompletionPending, c)

	// Final approver closes the chain.
	c, err = Evaluate(seqLogs(StatusApproved, StatusApproved, StatusApproved), TypeSequential, 3)
	require.NoError(t, err)
	require.Equal(t, CompletionApproved, c)
}

func TestEvaluateSequentialOutOfOrderApproval(t *testing.T) {
	// The second approver acted first: recorded, but not complete.
	c, err := Evaluate(seqLogs(StatusPending, StatusApproved), TypeSequential, 2)
	require.NoError(t, err)
	require.Equal(t, CompletionPending, c)

	// When the first approver catches up the whole chain completes, even
	// though the acting slot is not the highest order.
	c, err = Evaluate(seqLogs(StatusApproved, StatusApproved), TypeSequential, 1)
	require.NoError(t, err)
	require.Equal(t, CompletionApproved, c)
}

func TestEvaluateParallelUnanimity(t *testing.T) {
	c, err := Evaluate(seqLogs(StatusApproved, StatusPending, StatusPending), TypeParallel, 1)
	require.NoError(t, err)
	require.Equal(t, CompletionPending, c)

	c, err = Evaluate(seqLogs(StatusApproved, StatusApproved, StatusApproved), TypeParallel, 2)
	require.NoError(t, err)
	require.Equal(t, CompletionApproved, c)
}

func TestEvaluateParallelOrderIrrelevant(t *testing.T) {
	// Completion must not depend on which slot acted last.
	for acted := 1; acted <= 3; acted++ {
		c, err := Evaluate(seqLogs(StatusApproved, StatusApproved, StatusApproved), TypeParallel, acted)
		require.NoError(t, err)
		require.Equal(t, CompletionApproved, c)
	}
}

func TestEvaluateRejectedLogIsInvariantViolation(t *testing.T) {
	_, err := Evaluate(seqLogs(StatusApproved, StatusRejected), TypeSequential, 1)
	require.ErrorIs(t, err, ErrInvariant)

	_, err = Evaluate(seqLogs(StatusRejected, StatusApproved), TypeParallel, 2)
	require.ErrorIs(t, err, ErrInvariant)
}

func TestEvaluateEmptyAndUnknownType(t *testing.T) {
	_, err := Evaluate(nil, TypeSequential, 1)
	require.ErrorIs(t, err, ErrInvariant)

	_, err = Evaluate(seqLogs(StatusApproved), "MAJORITY", 1)
	require.ErrorIs(t, err, ErrInvariant)
}

func TestNextPending(t *testing.T) {
	logs := seqLogs(StatusApproved, StatusPending, StatusPending)
	next := NextPending(logs)
	require.NotNil(t, next)
	require.Equal(t, 2, next.Order)

	require.Nil(t, NextPending(seqLogs(StatusApproved, StatusApproved)))
}

// Package approvals implements the approval-workflow engine: rule selection,
// approval-log materialization and the completion state machine that decides
// when an expense becomes approved or rejected.
package approvals

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ApprovalType selects the completion policy of a rule.
type ApprovalType string

const (
	// TypeSequential requires approvals in assignment order.
	TypeSequential ApprovalType = "SEQUENTIAL"
	// TypeParallel requires unanimous approval in any order.
	TypeParallel ApprovalType = "PARALLEL"
)

// Valid reports whether the approval type is known.
func (t ApprovalType) Valid() bool {
	return t == TypeSequential || t == TypeParallel
}

// LogStatus is the lifecycle of a single approval log.
type LogStatus string

const (
	StatusPending  LogStatus = "PENDING"
	StatusApproved LogStatus = "APPROVED"
	StatusRejected LogStatus = "REJECTED"
)

// Decision is an approver action on a pending log.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// SweptComment is written on pending logs that are bulk-rejected after
// another approver rejected the expense.
const SweptComment = "Rejected by another approver"

// CategoryScope describes which categories a rule applies to. The zero value
// is not meaningful; construct via AllCategories or SpecificCategories.
type CategoryScope struct {
	all bool
	ids []uuid.UUID
}

// AllCategories returns the wildcard scope.
func AllCategories() CategoryScope {
	return CategoryScope{all: true}
}

// SpecificCategories returns a scope restricted to the given ids. An empty
// list collapses to the wildcard, matching how rules without category
// restrictions behave.
func SpecificCategories(ids []uuid.UUID) CategoryScope {
	if len(ids) == 0 {
		return AllCategories()
	}
	return CategoryScope{ids: append([]uuid.UUID(nil), ids...)}
}

// All reports whether the scope is the wildcard.
func (s CategoryScope) All() bool {
	return s.all
}

// IDs returns the restricted category ids; nil for the wildcard.
func (s CategoryScope) IDs() []uuid.UUID {
	if s.all {
		return nil
	}
	return append([]uuid.UUID(nil), s.ids...)
}

// Contains reports whether the scope covers the category.
func (s CategoryScope) Contains(id uuid.UUID) bool {
	if s.all {
		return true
	}
	for _, cid := range s.ids {
		if cid == id {
			return true
		}
	}
	return false
}

// ApprovalRule is an admin-configured approval policy. Rules are never
// deleted, only deactivated, so historical logs keep a valid reference.
type ApprovalRule struct {
	ID         uuid.UUID     `json:"id"`
	CompanyID  uuid.UUID     `json:"company_id"`
	Name       string        `json:"name"`
	MinAmount  float64       `json:"min_amount"`
	MaxAmount  *float64      `json:"max_amount,omitempty"`
	Categories CategoryScope `json:"-"`
	Type       ApprovalType  `json:"approval_type"`
	IsActive   bool          `json:"is_active"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ApproverAssignment names one approver of a rule. Order is the sequential
// precedence key; in PARALLEL mode it is only a display and log-creation
// ordering key and must never influence completion decisions.
type ApproverAssignment struct {
	ID       uuid.UUID `json:"id"`
	RuleID   uuid.UUID `json:"approval_rule_id"`
	UserID   uuid.UUID `json:"user_id"`
	Order    int       `json:"order"`
	IsActive bool      `json:"is_active"`
}

// ApprovalLog is one approver's slot on one expense. The order is copied
// from the assignment at submission time so later rule edits cannot change
// an in-flight approval sequence.
type ApprovalLog struct {
	ID         uuid.UUID  `json:"id"`
	ExpenseID  uuid.UUID  `json:"expense_id"`
	RuleID     uuid.UUID  `json:"approval_rule_id"`
	ApproverID uuid.UUID  `json:"approver_id"`
	Order      int        `json:"order"`
	Status     LogStatus  `json:"status"`
	Comments   string     `json:"comments"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	RejectedAt *time.Time `json:"rejected_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PendingItem is one row of an approver's pending queue, the log joined
// with enough expense context to act on it.
type PendingItem struct {
	Log         ApprovalLog  `json:"log"`
	RequesterID uuid.UUID    `json:"requester_id"`
	Description string       `json:"description"`
	Amount      float64      `json:"amount"`
	Currency    string       `json:"currency"`
	AmountBase  float64      `json:"amount_in_base_currency"`
	ExpenseDate time.Time    `json:"expense_date"`
	RuleType    ApprovalType `json:"approval_type"`
}

var (
	// ErrNotFound indicates a missing rule, assignment or log, or a log that
	// does not belong to the acting approver.
	ErrNotFound = errors.New("approvals: not found")
	// ErrAlreadyProcessed occurs when acting on a log that left PENDING.
	ErrAlreadyProcessed = errors.New("approvals: log already processed")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("approvals: invalid input")
	// ErrInvariant flags a log set in a state the workflow should never
	// produce; evaluation becomes a no-op instead of corrupting state.
	ErrInvariant = errors.New("approvals: invariant violation")
)

package approvals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/expensio/expensio/internal/shared"
	"github.com/expensio/expensio/internal/users"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	CreateRule(ctx context.Context, rule ApprovalRule, assignments []ApproverAssignment) error
	GetRule(ctx context.Context, id, companyID uuid.UUID) (ApprovalRule, error)
	ListRules(ctx context.Context, companyID uuid.UUID) ([]ApprovalRule, error)
	UpdateRule(ctx context.Context, rule ApprovalRule) error
	DeactivateRule(ctx context.Context, id, companyID uuid.UUID) error
	ReplaceAssignments(ctx context.Context, ruleID uuid.UUID, assignments []ApproverAssignment) error
	FindCandidates(ctx context.Context, companyID, categoryID uuid.UUID, amountBase float64) ([]ApprovalRule, error)
	ActiveAssignments(ctx context.Context, ruleID uuid.UUID) ([]ApproverAssignment, error)
	GetLog(ctx context.Context, id uuid.UUID) (ApprovalLog, error)
	PendingForApprover(ctx context.Context, approverID uuid.UUID, limit, offset int) ([]PendingItem, int, error)
	HistoryByExpense(ctx context.Context, expenseID uuid.UUID) ([]ApprovalLog, error)
	HistoryByApprover(ctx context.Context, approverID uuid.UUID, limit, offset int) ([]ApprovalLog, int, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// ApproverDirectory resolves users when validating rule approvers.
// Satisfied by users.Service.
type ApproverDirectory interface {
	Get(ctx context.Context, id, companyID uuid.UUID) (users.User, error)
}

// Service owns the approval workflow.
type Service struct {
	logger    *slog.Logger
	repo      RepositoryPort
	directory ApproverDirectory
}

// NewService constructs an approvals service.
func NewService(logger *slog.Logger, repo RepositoryPort, directory ApproverDirectory) *Service {
	return &Service{logger: logger, repo: repo, directory: directory}
}

// ApproverInput names one approver and their sequence position.
type ApproverInput struct {
	UserID uuid.UUID `json:"user_id"`
	Order  int       `json:"order"`
}

// RuleInput carries the configurable fields of a rule.
type RuleInput struct {
	Name        string          `json:"name"`
	MinAmount   float64         `json:"min_amount"`
	MaxAmount   *float64        `json:"max_amount"`
	CategoryIDs []uuid.UUID     `json:"category_ids"`
	Type        ApprovalType    `json:"approval_type"`
	Approvers   []ApproverInput `json:"approvers"`
}

// RuleDetail is a rule together with its active approvers.
type RuleDetail struct {
	Rule        ApprovalRule         `json:"rule"`
	CategoryIDs []uuid.UUID          `json:"category_ids"`
	Approvers   []ApproverAssignment `json:"approvers"`
}

func (s *Service) validateRuleFields(in RuleInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > 120 {
		return fmt.Errorf("%w: name must be 1-120 characters", ErrValidation)
	}
	if in.MinAmount < 0 {
		return fmt.Errorf("%w: min_amount must not be negative", ErrValidation)
	}
	if in.MaxAmount != nil && *in.MaxAmount < in.MinAmount {
		return fmt.Errorf("%w: max_amount must not be below min_amount", ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: approval_type must be SEQUENTIAL or PARALLEL", ErrValidation)
	}
	return nil
}

// validateApprovers checks existence, role and uniqueness of the approver
// set. Only managers and admins may be assigned as approvers.
func (s *Service) validateApprovers(ctx context.Context, companyID uuid.UUID, typ ApprovalType, approvers []ApproverInput) error {
	if len(approvers) == 0 {
		return fmt.Errorf("%w: at least one approver is required", ErrValidation)
	}
	seenUsers := make(map[uuid.UUID]bool, len(approvers))
	seenOrders := make(map[int]bool, len(approvers))
	for _, a := range approvers {
		if a.Order < 1 {
			return fmt.Errorf("%w: approver order must be at least 1", ErrValidation)
		}
		if seenUsers[a.UserID] {
			return fmt.Errorf("%w: duplicate approver %s", ErrValidation, a.UserID)
		}
		seenUsers[a.UserID] = true
		if typ == TypeSequential {
			if seenOrders[a.Order] {
				return fmt.Errorf("%w: duplicate sequence position %d", ErrValidation, a.Order)
			}
			seenOrders[a.Order] = true
		}
		user, err := s.directory.Get(ctx, a.UserID, companyID)
		if err != nil {
			return fmt.Errorf("%w: approver %s not found", ErrValidation, a.UserID)
		}
		if !user.Role.CanApprove() {
			return fmt.Errorf("%w: user %s cannot approve expenses", ErrValidation, a.UserID)
		}
	}
	return nil
}

func buildAssignments(ruleID uuid.UUID, approvers []ApproverInput) []ApproverAssignment {
	assignments := make([]ApproverAssignment, 0, len(approvers))
	for _, a := range approvers {
		assignments = append(assignments, ApproverAssignment{
			ID:       uuid.New(),
			RuleID:   ruleID,
			UserID:   a.UserID,
			Order:    a.Order,
			IsActive: true,
		})
	}
	return assignments
}

// CreateRule validates and stores a rule with its approver set.
func (s *Service) CreateRule(ctx context.Context, companyID uuid.UUID, in RuleInput) (RuleDetail, error) {
	if err := s.validateRuleFields(in); err != nil {
		return RuleDetail{}, err
	}
	if err := s.validateApprovers(ctx, companyID, in.Type, in.Approvers); err != nil {
		return RuleDetail{}, err
	}
	now := time.Now()
	rule := ApprovalRule{
		ID:         uuid.New(),
		CompanyID:  companyID,
		Name:       strings.TrimSpace(in.Name),
		MinAmount:  in.MinAmount,
		MaxAmount:  in.MaxAmount,
		Categories: SpecificCategories(in.CategoryIDs),
		Type:       in.Type,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	assignments := buildAssignments(rule.ID, in.Approvers)
	if err := s.repo.CreateRule(ctx, rule, assignments); err != nil {
		return RuleDetail{}, err
	}
	return RuleDetail{Rule: rule, CategoryIDs: rule.Categories.IDs(), Approvers: assignments}, nil
}

// UpdateRule changes rule fields. Approvers are managed separately via
// ReplaceApprovers so a field edit cannot silently reset the approver set.
func (s *Service) UpdateRule(ctx context.Context, companyID, ruleID uuid.UUID, in RuleInput) (ApprovalRule, error) {
	if err := s.validateRuleFields(in); err != nil {
		return ApprovalRule{}, err
	}
	rule, err := s.repo.GetRule(ctx, ruleID, companyID)
	if err != nil {
		return ApprovalRule{}, err
	}
	rule.Name = strings.TrimSpace(in.Name)
	rule.MinAmount = in.MinAmount
	rule.MaxAmount = in.MaxAmount
	rule.Categories = SpecificCategories(in.CategoryIDs)
	rule.Type = in.Type
	rule.UpdatedAt = time.Now()
	if err := s.repo.UpdateRule(ctx, rule); err != nil {
		return ApprovalRule{}, err
	}
	return rule, nil
}

// DeactivateRule retires a rule from selection.
func (s *Service) DeactivateRule(ctx context.Context, companyID, ruleID uuid.UUID) error {
	return s.repo.DeactivateRule(ctx, ruleID, companyID)
}

// GetRule returns a rule with its active approvers.
func (s *Service) GetRule(ctx context.Context, companyID, ruleID uuid.UUID) (RuleDetail, error) {
	rule, err := s.repo.GetRule(ctx, ruleID, companyID)
	if err != nil {
		return RuleDetail{}, err
	}
	assignments, err := s.repo.ActiveAssignments(ctx, ruleID)
	if err != nil {
		return RuleDetail{}, err
	}
	return RuleDetail{Rule: rule, CategoryIDs: rule.Categories.IDs(), Approvers: assignments}, nil
}

// ListRules returns the company's rules.
func (s *Service) ListRules(ctx context.Context, companyID uuid.UUID) ([]ApprovalRule, error) {
	return s.repo.ListRules(ctx, companyID)
}

// ReplaceApprovers swaps the approver set of a rule. Expenses already in
// flight keep their materialized logs.
func (s *Service) ReplaceApprovers(ctx context.Context, companyID, ruleID uuid.UUID, approvers []ApproverInput) ([]ApproverAssignment, error) {
	rule, err := s.repo.GetRule(ctx, ruleID, companyID)
	if err != nil {
		return nil, err
	}
	if err := s.validateApprovers(ctx, companyID, rule.Type, approvers); err != nil {
		return nil, err
	}
	assignments := buildAssignments(ruleID, approvers)
	if err := s.repo.ReplaceAssignments(ctx, ruleID, assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

// SelectRule picks the applicable rule for an expense, or nil when no rule
// matches and the expense auto-approves.
func (s *Service) SelectRule(ctx context.Context, companyID, categoryID uuid.UUID, amountBase float64) (*ApprovalRule, error) {
	candidates, err := s.repo.FindCandidates(ctx, companyID, categoryID, amountBase)
	if err != nil {
		return nil, err
	}
	return PickRule(candidates), nil
}

// ActiveAssignments exposes the current approver set of a rule, used at
// submission time to materialize logs.
func (s *Service) ActiveAssignments(ctx context.Context, ruleID uuid.UUID) ([]ApproverAssignment, error) {
	return s.repo.ActiveAssignments(ctx, ruleID)
}

// ActResult reports the log and the expense status after an action.
type ActResult struct {
	Log           ApprovalLog `json:"log"`
	ExpenseStatus string      `json:"expense_status"`
}

// Act records an approver decision on a pending log and, in the same
// transaction, applies the workflow consequences: completion evaluation on
// approve, expense rejection plus pending-log sweep on reject.
func (s *Service) Act(ctx context.Context, principal shared.Principal, logID uuid.UUID, decision Decision, comments string) (ActResult, error) {
	if !principal.Role.CanApprove() {
		return ActResult{}, fmt.Errorf("%w: role cannot approve expenses", ErrValidation)
	}
	comments = strings.TrimSpace(comments)
	if decision == DecisionReject && comments == "" {
		return ActResult{}, fmt.Errorf("%w: rejection requires a comment", ErrValidation)
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return ActResult{}, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}

	var result ActResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		log, err := tx.GetLog(ctx, logID)
		if err != nil {
			return err
		}
		// Approvers only ever see their own logs; a foreign log id is
		// indistinguishable from a missing one.
		if log.ApproverID != principal.UserID {
			return ErrNotFound
		}
		if log.Status != StatusPending {
			return ErrAlreadyProcessed
		}
		now := time.Now()

		switch decision {
		case DecisionApprove:
			ok, err := tx.ResolveLog(ctx, logID, StatusApproved, comments, now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrAlreadyProcessed
			}
			if err := s.evaluateCompletion(ctx, tx, log, now); err != nil {
				return err
			}
		case DecisionReject:
			ok, err := tx.ResolveLog(ctx, logID, StatusRejected, comments, now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrAlreadyProcessed
			}
			// The guard on SUBMITTED makes rejection idempotent against a
			// racing completion: whichever transaction commits first wins.
			if _, err := tx.RejectExpense(ctx, log.ExpenseID, comments, now); err != nil {
				return err
			}
			if _, err := tx.SweepPendingLogs(ctx, log.ExpenseID, logID, SweptComment, now); err != nil {
				return err
			}
		}

		updated, err := tx.GetLog(ctx, logID)
		if err != nil {
			return err
		}
		status, err := tx.ExpenseStatus(ctx, log.ExpenseID)
		if err != nil {
			return err
		}
		result = ActResult{Log: updated, ExpenseStatus: status}
		return nil
	})
	if err != nil {
		return ActResult{}, err
	}
	return result, nil
}

// evaluateCompletion re-derives the expense outcome from the full log set
// after an approval landed.
func (s *Service) evaluateCompletion(ctx context.Context, tx TxRepository, log ApprovalLog, now time.Time) error {
	typ, err := tx.GetRuleType(ctx, log.RuleID)
	if err != nil {
		return err
	}
	logs, err := tx.ListLogsByExpense(ctx, log.ExpenseID)
	if err != nil {
		return err
	}
	completion, err := Evaluate(logs, typ, log.Order)
	if err != nil {
		// Leave the expense untouched; the log itself stays recorded.
		s.logger.Warn("approval evaluation skipped",
			slog.String("expense_id", log.ExpenseID.String()),
			slog.Any("error", err))
		return nil
	}
	if completion != CompletionApproved {
		return nil
	}
	if _, err := tx.ApproveExpense(ctx, log.ExpenseID, now); err != nil {
		return err
	}
	return nil
}

// Pending returns the approver's queue.
func (s *Service) Pending(ctx context.Context, approverID uuid.UUID, page, perPage int) ([]PendingItem, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	items, total, err := s.repo.PendingForApprover(ctx, approverID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// History returns the full log set of an expense.
func (s *Service) History(ctx context.Context, expenseID uuid.UUID) ([]ApprovalLog, error) {
	return s.repo.HistoryByExpense(ctx, expenseID)
}

// ApproverHistory returns logs the approver already acted on.
func (s *Service) ApproverHistory(ctx context.Context, approverID uuid.UUID, page, perPage int) ([]ApprovalLog, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	logs, total, err := s.repo.HistoryByApprover(ctx, approverID, p.PerPage, p.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return logs, shared.NewPagination(page, perPage, total), nil
}

// GetLog returns one log for display.
func (s *Service) GetLog(ctx context.Context, id uuid.UUID) (ApprovalLog, error) {
	return s.repo.GetLog(ctx, id)
}

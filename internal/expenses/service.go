package expenses

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/expensio/expensio/internal/approvals"
	"github.com/expensio/expensio/internal/fx"
	"github.com/expensio/expensio/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, e Expense) error
	Get(ctx context.Context, id, companyID uuid.UUID) (Expense, error)
	UpdateDraft(ctx context.Context, e Expense) error
	DeleteDraft(ctx context.Context, id, userID uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]Expense, int, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID, f ListFilter, limit, offset int) ([]Expense, int, error)
	StatsByUser(ctx context.Context, userID uuid.UUID) (Stats, error)
	StatsByCompany(ctx context.Context, companyID uuid.UUID) (Stats, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// ConverterPort converts amounts between currencies. Satisfied by
// fx.Converter.
type ConverterPort interface {
	Convert(ctx context.Context, amount float64, from, to string) (float64, error)
}

// CompanyPort resolves the company base currency. Satisfied by
// companies.Service.
type CompanyPort interface {
	BaseCurrency(ctx context.Context, id uuid.UUID) (string, error)
}

// CategoryPort checks category existence. Satisfied by categories.Service.
type CategoryPort interface {
	Exists(ctx context.Context, id, companyID uuid.UUID) (bool, error)
}

// WorkflowPort is the approval-engine surface the submission step needs.
// Satisfied by approvals.Service.
type WorkflowPort interface {
	SelectRule(ctx context.Context, companyID, categoryID uuid.UUID, amountBase float64) (*approvals.ApprovalRule, error)
	ActiveAssignments(ctx context.Context, ruleID uuid.UUID) ([]approvals.ApproverAssignment, error)
	History(ctx context.Context, expenseID uuid.UUID) ([]approvals.ApprovalLog, error)
}

// Service owns the expense lifecycle.
type Service struct {
	logger     *slog.Logger
	repo       RepositoryPort
	converter  ConverterPort
	companies  CompanyPort
	categories CategoryPort
	workflow   WorkflowPort
}

// NewService constructs an expense service.
func NewService(logger *slog.Logger, repo RepositoryPort, converter ConverterPort,
	companies CompanyPort, categories CategoryPort, workflow WorkflowPort) *Service {
	return &Service{
		logger:     logger,
		repo:       repo,
		converter:  converter,
		companies:  companies,
		categories: categories,
		workflow:   workflow,
	}
}

// Input carries the user-editable fields of an expense.
type Input struct {
	CategoryID  uuid.UUID
	Description string
	Amount      float64
	Currency    string
	ExpenseDate time.Time
	ReceiptURL  string
}

func (s *Service) validate(ctx context.Context, companyID uuid.UUID, in Input) error {
	description := strings.TrimSpace(in.Description)
	if description == "" || len(description) > 500 {
		return fmt.Errorf("%w: description must be 1-500 characters", ErrValidation)
	}
	if in.Amount <= 0 || math.IsInf(in.Amount, 0) || math.IsNaN(in.Amount) {
		return fmt.Errorf("%w: amount must be a positive number", ErrValidation)
	}
	if _, err := fx.ValidateCode(in.Currency); err != nil {
		return fmt.Errorf("%w: unknown currency %q", ErrValidation, in.Currency)
	}
	if !CurrencySupported(in.Currency) {
		return fmt.Errorf("%w: currency %s is not supported", ErrValidation, in.Currency)
	}
	// Dates arrive as UTC midnight values; anything at or past the next
	// midnight is a future date.
	nextMidnight := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	if !in.ExpenseDate.Before(nextMidnight) {
		return fmt.Errorf("%w: expense_date must not be in the future", ErrValidation)
	}
	ok, err := s.categories.Exists(ctx, in.CategoryID, companyID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown category", ErrValidation)
	}
	return nil
}

// Create files a new draft expense.
func (s *Service) Create(ctx context.Context, principal shared.Principal, in Input) (Expense, error) {
	if err := s.validate(ctx, principal.CompanyID, in); err != nil {
		return Expense{}, err
	}
	now := time.Now()
	e := Expense{
		ID:          uuid.New(),
		CompanyID:   principal.CompanyID,
		UserID:      principal.UserID,
		CategoryID:  in.CategoryID,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		Currency:    in.Currency,
		ExpenseDate: in.ExpenseDate,
		Status:      StatusDraft,
		ReceiptURL:  in.ReceiptURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return Expense{}, err
	}
	return e, nil
}

// Get returns an expense visible to the principal: owners see their own,
// managers and admins see any company expense.
func (s *Service) Get(ctx context.Context, principal shared.Principal, id uuid.UUID) (Expense, error) {
	e, err := s.repo.Get(ctx, id, principal.CompanyID)
	if err != nil {
		return Expense{}, err
	}
	if e.UserID != principal.UserID && !principal.Role.CanApprove() {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

// Update edits a draft owned by the principal.
func (s *Service) Update(ctx context.Context, principal shared.Principal, id uuid.UUID, in Input) (Expense, error) {
	e, err := s.repo.Get(ctx, id, principal.CompanyID)
	if err != nil {
		return Expense{}, err
	}
	if e.UserID != principal.UserID {
		return Expense{}, ErrNotFound
	}
	if e.Status != StatusDraft {
		return Expense{}, fmt.Errorf("%w: only drafts can be edited", ErrInvalidState)
	}
	if err := s.validate(ctx, principal.CompanyID, in); err != nil {
		return Expense{}, err
	}
	e.CategoryID = in.CategoryID
	e.Description = strings.TrimSpace(in.Description)
	e.Amount = in.Amount
	e.Currency = in.Currency
	e.ExpenseDate = in.ExpenseDate
	e.ReceiptURL = in.ReceiptURL
	e.UpdatedAt = time.Now()
	if err := s.repo.UpdateDraft(ctx, e); err != nil {
		return Expense{}, err
	}
	return e, nil
}

// Delete removes a draft owned by the principal.
func (s *Service) Delete(ctx context.Context, principal shared.Principal, id uuid.UUID) error {
	e, err := s.repo.Get(ctx, id, principal.CompanyID)
	if err != nil {
		return err
	}
	if e.UserID != principal.UserID {
		return ErrNotFound
	}
	if e.Status != StatusDraft {
		return fmt.Errorf("%w: only drafts can be deleted", ErrInvalidState)
	}
	return s.repo.DeleteDraft(ctx, id, principal.UserID)
}

// Submit moves a draft into the approval workflow. Currency conversion and
// rule selection happen before the transaction; the status flip and the
// approval-log batch commit atomically. When no rule matches, or the
// selected rule has no active approver, the expense auto-approves.
func (s *Service) Submit(ctx context.Context, principal shared.Principal, id uuid.UUID) (Expense, error) {
	e, err := s.repo.Get(ctx, id, principal.CompanyID)
	if err != nil {
		return Expense{}, err
	}
	if e.UserID != principal.UserID {
		return Expense{}, ErrNotFound
	}
	if e.Status != StatusDraft {
		return Expense{}, fmt.Errorf("%w: expense is %s", ErrInvalidState, e.Status)
	}

	baseCurrency, err := s.companies.BaseCurrency(ctx, principal.CompanyID)
	if err != nil {
		return Expense{}, err
	}
	amountBase, err := s.converter.Convert(ctx, e.Amount, e.Currency, baseCurrency)
	if err != nil {
		// The draft is left untouched; submission can be retried once the
		// rate source recovers.
		return Expense{}, err
	}
	exchangeRate := amountBase / e.Amount

	rule, err := s.workflow.SelectRule(ctx, principal.CompanyID, e.CategoryID, amountBase)
	if err != nil {
		return Expense{}, err
	}

	var logs []approvals.ApprovalLog
	now := time.Now()
	if rule != nil {
		assignments, err := s.workflow.ActiveAssignments(ctx, rule.ID)
		if err != nil {
			return Expense{}, err
		}
		logs = approvals.MaterializeLogs(e.ID, *rule, assignments, now)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if rule == nil || len(logs) == 0 {
			ok, err := tx.MarkAutoApproved(ctx, e.ID, amountBase, exchangeRate, now)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: expense already submitted", ErrInvalidState)
			}
			return nil
		}
		ok, err := tx.MarkSubmitted(ctx, e.ID, rule.ID, amountBase, exchangeRate, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: expense already submitted", ErrInvalidState)
		}
		return tx.InsertApprovalLogs(ctx, logs)
	})
	if err != nil {
		return Expense{}, err
	}

	if rule != nil && len(logs) == 0 {
		s.logger.Info("expense auto-approved, rule has no active approvers",
			slog.String("expense_id", e.ID.String()),
			slog.String("rule_id", rule.ID.String()))
	}
	return s.repo.Get(ctx, id, principal.CompanyID)
}

// List returns expenses visible to the principal. Managers and admins may
// request the whole company with companyWide.
func (s *Service) List(ctx context.Context, principal shared.Principal, f ListFilter, companyWide bool) ([]Expense, shared.Pagination, error) {
	p := shared.NewPagination(f.Page, f.PerPage, 0)
	var (
		list  []Expense
		total int
		err   error
	)
	if companyWide && principal.Role.CanApprove() {
		list, total, err = s.repo.ListByCompany(ctx, principal.CompanyID, f, p.PerPage, p.Offset())
	} else {
		list, total, err = s.repo.ListByUser(ctx, principal.UserID, f, p.PerPage, p.Offset())
	}
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// GetStats aggregates expenses per status, company-wide for managers and
// admins, own expenses otherwise.
func (s *Service) GetStats(ctx context.Context, principal shared.Principal, companyWide bool) (Stats, error) {
	if companyWide && principal.Role.CanApprove() {
		return s.repo.StatsByCompany(ctx, principal.CompanyID)
	}
	return s.repo.StatsByUser(ctx, principal.UserID)
}

// History returns the approval log set of an expense the principal may see.
func (s *Service) History(ctx context.Context, principal shared.Principal, id uuid.UUID) ([]approvals.ApprovalLog, error) {
	if _, err := s.Get(ctx, principal, id); err != nil {
		return nil, err
	}
	return s.workflow.History(ctx, id)
}

package expenses

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/expensio/expensio/internal/approvals"
	"github.com/expensio/expensio/internal/fx"
	"github.com/expensio/expensio/internal/shared"
)

type memoryExpenseRepo struct {
	expenses map[uuid.UUID]Expense
	logs     []approvals.ApprovalLog
}

func newMemoryExpenseRepo() *memoryExpenseRepo {
	return &memoryExpenseRepo{expenses: make(map[uuid.UUID]Expense)}
}

func (r *memoryExpenseRepo) Create(ctx context.Context, e Expense) error {
	r.expenses[e.ID] = e
	return nil
}

func (r *memoryExpenseRepo) Get(ctx context.Context, id, companyID uuid.UUID) (Expense, error) {
	e, ok := r.expenses[id]
	if !ok || e.CompanyID != companyID {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

func (r *memoryExpenseRepo) UpdateDraft(ctx context.Context, e Expense) error {
	current, ok := r.expenses[e.ID]
	if !ok || current.Status != StatusDraft {
		return ErrInvalidState
	}
	r.expenses[e.ID] = e
	return nil
}

func (r *memoryExpenseRepo) DeleteDraft(ctx context.Context, id, userID uuid.UUID) error {
	e, ok := r.expenses[id]
	if !ok || e.UserID != userID || e.Status != StatusDraft {
		return ErrInvalidState
	}
	delete(r.expenses, id)
	return nil
}

func (r *memoryExpenseRepo) ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]Expense, int, error) {
	var list []Expense
	for _, e := range r.expenses {
		if e.UserID == userID && (f.Status == "" || e.Status == f.Status) {
			list = append(list, e)
		}
	}
	return list, len(list), nil
}

func (r *memoryExpenseRepo) ListByCompany(ctx context.Context, companyID uuid.UUID, f ListFilter, limit, offset int) ([]Expense, int, error) {
	var list []Expense
	for _, e := range r.expenses {
		if e.CompanyID == companyID && (f.Status == "" || e.Status == f.Status) {
			list = append(list, e)
		}
	}
	return list, len(list), nil
}

func (r *memoryExpenseRepo) StatsByUser(ctx context.Context, userID uuid.UUID) (Stats, error) {
	stats := Stats{ByStatus: make(map[ExpenseStatus]StatusStat)}
	for _, e := range r.expenses {
		if e.UserID != userID {
			continue
		}
		s := stats.ByStatus[e.Status]
		s.Count++
		s.Amount += e.AmountBase
		stats.ByStatus[e.Status] = s
		stats.TotalCount++
		stats.TotalAmount += e.AmountBase
	}
	return stats, nil
}

func (r *memoryExpenseRepo) StatsByCompany(ctx context.Context, companyID uuid.UUID) (Stats, error) {
	stats := Stats{ByStatus: make(map[ExpenseStatus]StatusStat)}
	for _, e := range r.expenses {
		if e.CompanyID != companyID {
			continue
		}
		s := stats.ByStatus[e.Status]
		s.Count++
		stats.ByStatus[e.Status] = s
		stats.TotalCount++
	}
	return stats, nil
}

func (r *memoryExpenseRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryExpenseTx{repo: r})
}

type memoryExpenseTx struct {
	repo *memoryExpenseRepo
}

func (t *memoryExpenseTx) MarkSubmitted(ctx context.Context, id, ruleID uuid.UUID, amountBase, exchangeRate float64, now time.Time) (bool, error) {
	e, ok := t.repo.expenses[id]
	if !ok || e.Status != StatusDraft {
		return false, nil
	}
	e.Status = StatusSubmitted
	e.RuleID = &ruleID
	e.AmountBase = amountBase
	e.ExchangeRate = exchangeRate
	e.SubmittedAt = &now
	t.repo.expenses[id] = e
	return true, nil
}

func (t *memoryExpenseTx) MarkAutoApproved(ctx context.Context, id uuid.UUID, amountBase, exchangeRate float64, now time.Time) (bool, error) {
	e, ok := t.repo.expenses[id]
	if !ok || e.Status != StatusDraft {
		return false, nil
	}
	e.Status = StatusApproved
	e.AmountBase = amountBase
	e.ExchangeRate = exchangeRate
	e.SubmittedAt = &now
	e.ApprovedAt = &now
	t.repo.expenses[id] = e
	return true, nil
}

func (t *memoryExpenseTx) InsertApprovalLogs(ctx context.Context, logs []approvals.ApprovalLog) error {
	t.repo.logs = append(t.repo.logs, logs...)
	return nil
}

type stubConverter struct {
	rate float64
	err  error
}

func (c stubConverter) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if from == to {
		return amount, nil
	}
	return amount * c.rate, nil
}

type stubCompanies struct {
	baseCurrency string
}

func (c stubCompanies) BaseCurrency(ctx context.Context, id uuid.UUID) (string, error) {
	return c.baseCurrency, nil
}

type stubCategories struct {
	known map[uuid.UUID]bool
}

func (c stubCategories) Exists(ctx context.Context, id, companyID uuid.UUID) (bool, error) {
	return c.known[id], nil
}

type stubWorkflow struct {
	rule        *approvals.ApprovalRule
	assignments []approvals.ApproverAssignment
	history     []approvals.ApprovalLog
}

func (w stubWorkflow) SelectRule(ctx context.Context, companyID, categoryID uuid.UUID, amountBase float64) (*approvals.ApprovalRule, error) {
	return w.rule, nil
}

func (w stubWorkflow) ActiveAssignments(ctx context.Context, ruleID uuid.UUID) ([]approvals.ApproverAssignment, error) {
	return w.assignments, nil
}

func (w stubWorkflow) History(ctx context.Context, expenseID uuid.UUID) ([]approvals.ApprovalLog, error) {
	return w.history, nil
}

type fixture struct {
	repo      *memoryExpenseRepo
	service   *Service
	principal shared.Principal
	category  uuid.UUID
}

type fixtureOpts struct {
	converter ConverterPort
	workflow  WorkflowPort
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	repo := newMemoryExpenseRepo()
	category := uuid.New()
	principal := shared.Principal{UserID: uuid.New(), CompanyID: uuid.New(), Role: shared.RoleEmployee}

	converter := opts.converter
	if converter == nil {
		converter = stubConverter{rate: 1}
	}
	workflow := opts.workflow
	if workflow == nil {
		workflow = stubWorkflow{}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(logger, repo, converter,
		stubCompanies{baseCurrency: "USD"},
		stubCategories{known: map[uuid.UUID]bool{category: true}},
		workflow)

	return &fixture{repo: repo, service: service, principal: principal, category: category}
}

func validInput(category uuid.UUID) Input {
	return Input{
		CategoryID:  category,
		Description: "Team lunch",
		Amount:      120,
		Currency:    "EUR",
		ExpenseDate: time.Now().AddDate(0, 0, -1),
	}
}

func TestCreateDraft(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	e, err := f.service.Create(context.Background(), f.principal, validInput(f.category))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, e.Status)
	require.Equal(t, f.principal.UserID, e.UserID)
	require.Zero(t, e.AmountBase)
	require.Nil(t, e.RuleID)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	in := validInput(f.category)
	in.Description = ""
	_, err := f.service.Create(ctx, f.principal, in)
	require.ErrorIs(t, err, ErrValidation)

	in = validInput(f.category)
	in.Amount = 0
	_, err = f.service.Create(ctx, f.principal, in)
	require.ErrorIs(t, err, ErrValidation)

	in = validInput(f.category)
	in.Currency = "BTC"
	_, err = f.service.Create(ctx, f.principal, in)
	require.ErrorIs(t, err, ErrValidation)

	in = validInput(f.category)
	in.ExpenseDate = time.Now().AddDate(0, 0, 7)
	_, err = f.service.Create(ctx, f.principal, in)
	require.ErrorIs(t, err, ErrValidation)

	// Tomorrow's midnight is already a future date; today's is not.
	in = validInput(f.category)
	in.ExpenseDate = time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	_, err = f.service.Create(ctx, f.principal, in)
	require.ErrorIs(t, err, ErrValidation)

	in = validInput(f.category)
	in.ExpenseDate = time.Now().UTC().Truncate(24 * time.Hour)
	_, err = f.service.Create(ctx, f.principal, in)
	require.NoError(t, err)

	// Length is measured after trimming.
	in = validInput(f.category)
	in.Description = "  " + strings.Repeat("a", 500) + "  "
	_, err = f.service.Create(ctx, f.principal, in)
	require.NoError(t, err)

	in = validInput(f.category)
	in.CategoryID = uuid.New()
	_, err = f.service.Create(ctx, f.principal, in)
	require.ErrorIs(t, err, ErrValidation)
}

func TestSubmitMaterializesWorkflow(t *testing.T) {
	ctx := context.Background()
	rule := &approvals.ApprovalRule{ID: uuid.New(), Type: approvals.TypeSequential, IsActive: true}
	assignments := []approvals.ApproverAssignment{
		{ID: uuid.New(), RuleID: rule.ID, UserID: uuid.New(), Order: 1, IsActive: true},
		{ID: uuid.New(), RuleID: rule.ID, UserID: uuid.New(), Order: 2, IsActive: true},
	}
	f := newFixture(t, fixtureOpts{
		converter: stubConverter{rate: 1.1},
		workflow:  stubWorkflow{rule: rule, assignments: assignments},
	})

	e, err := f.service.Create(ctx, f.principal, validInput(f.category))
	require.NoError(t, err)

	submitted, err := f.service.Submit(ctx, f.principal, e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.RuleID)
	require.Equal(t, rule.ID, *submitted.RuleID)
	require.InDelta(t, 132, submitted.AmountBase, 1e-9)
	require.InDelta(t, 1.1, submitted.ExchangeRate, 1e-9)
	require.NotNil(t, submitted.SubmittedAt)

	require.Len(t, f.repo.logs, 2)
	require.Equal(t, 1, f.repo.logs[0].Order)
	require.Equal(t, 2, f.repo.logs[1].Order)
	require.Equal(t, assignments[0].UserID, f.repo.logs[0].ApproverID)
	for _, l := range f.repo.logs {
		require.Equal(t, approvals.StatusPending, l.Status)
		require.Equal(t, e.ID, l.ExpenseID)
	}
}

func TestSubmitAutoApprovesWithoutRule(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{})

	e, err := f.service.Create(ctx, f.principal, validInput(f.category))
	require.NoError(t, err)

	submitted, err := f.service.Submit(ctx, f.principal, e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, submitted.Status)
	require.NotNil(t, submitted.ApprovedAt)
	require.Nil(t, submitted.RuleID)
	require.Empty(t, f.repo.logs)
}

func TestSubmitAutoApprovesWhenRuleHasNoActiveApprovers(t *testing.T) {
	ctx := context.Background()
	rule := &approvals.ApprovalRule{ID: uuid.New(), Type: approvals.TypeParallel, IsActive: true}
	f := newFixture(t, fixtureOpts{
		workflow: stubWorkflow{rule: rule, assignments: []approvals.ApproverAssignment{
			{UserID: uuid.New(), Order: 1, IsActive: false},
		}},
	})

	e, err := f.service.Create(ctx, f.principal, validInput(f.category))
	require.NoError(t, err)

	submitted, err := f.service.Submit(ctx, f.principal, e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, submitted.Status)
	require.Empty(t, f.repo.logs)
}

func TestSubmitIdentityCurrencySkipsConversion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{converter: stubConverter{rate: 99}})

	in := validInput(f.category)
	in.Currency = "USD"
	in.Amount = 250
	e, err := f.service.Create(ctx, f.principal, in)
	require.NoError(t, err)

	submitted, err := f.service.Submit(ctx, f.principal, e.ID)
	require.NoError(t, err)
	require.Equal(t, 250.0, submitted.AmountBase)
	require.Equal(t, 1.0, submitted.ExchangeRate)
}

func TestSubmitConversionFailureLeavesDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{
		converter: stubConverter{err: fmt.Errorf("%w: upstream down", fx.ErrConversion)},
	})

	e, err := f.service.Create(ctx, f.principal, validInput(f.category))
	require.NoError(t, err)

	_, err = f.service.Submit(ctx, f.principal, e.ID)
	require.ErrorIs(t, err, fx.ErrConversion)

	current := f.repo.expenses[e.ID]
	require.Equal(t, StatusDraft, current.Status)
	require.Empty(t, f.repo.logs)
	require.Nil(t, current.SubmittedAt)

	// Retry succeeds once the rate source recovers.
	f2 := newFixture(t, fixtureOpts{})
	e2, err := f2.service.Create(ctx, f2.principal, validInput(f2.category))
	require.NoError(t, err)
	_, err = f2.service.Submit(ctx, f2.principal, e2.ID)
	require.NoError(t, err)
}

func TestSubmitRequiresDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{})

	e, err := f.service.Create(ctx, f.principal, validInput(f.category))
	require.NoError(t, err)

	_, err = f.service.Submit(ctx, f.principal, e.ID)
	require.NoError(t, err)

	_, err = f.service.Submit(ctx, f.principal, e.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitOnlyByOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{})

	e, err := f.service.Create(ctx, f.principal, validInput(f.category))
	require.NoError(t, err)

	other := shared.Principal{UserID: uuid.New(), CompanyID: f.principal.CompanyID, Role: shared.RoleEmployee}
	_, err = f.service.Submit(ctx, other, e.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAndDeleteDraftOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{})

	e, err := f.service.Create(ctx, f.principal, validInput(f.category))
	require.NoError(t, err)

	in := validInput(f.category)
	in.Description = "Team dinner"
	updated, err := f.service.Update(ctx, f.principal, e.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Team dinner", updated.Description)

	_, err = f.service.Submit(ctx, f.principal, e.ID)
	require.NoError(t, err)

	_, err = f.service.Update(ctx, f.principal, e.ID, in)
	require.ErrorIs(t, err, ErrInvalidState)

	err = f.service.Delete(ctx, f.principal, e.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestGetVisibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixtureOpts{})

	e, err := f.service.Create(ctx, f.principal, validInput(f.category))
	require.NoError(t, err)

	// Another employee in the same company cannot see it.
	other := shared.Principal{UserID: uuid.New(), CompanyID: f.principal.CompanyID, Role: shared.RoleEmployee}
	_, err = f.service.Get(ctx, other, e.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// A manager can.
	manager := shared.Principal{UserID: uuid.New(), CompanyID: f.principal.CompanyID, Role: shared.RoleManager}
	got, err := f.service.Get(ctx, manager, e.ID)
	require.NoError(t, err)
	require.Equal(t, e.ID, got.ID)
}

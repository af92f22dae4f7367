package expenses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/expensio/expensio/internal/approvals"
	"github.com/expensio/expensio/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the slice of the repository available inside WithTx. The
// submission transaction flips the expense status and inserts the approval
// logs as one atomic unit.
type TxRepository interface {
	MarkSubmitted(ctx context.Context, id, ruleID uuid.UUID, amountBase, exchangeRate float64, now time.Time) (bool, error)
	MarkAutoApproved(ctx context.Context, id uuid.UUID, amountBase, exchangeRate float64, now time.Time) (bool, error)
	InsertApprovalLogs(ctx context.Context, logs []approvals.ApprovalLog) error
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const expenseColumns = `id, company_id, user_id, category_id, description, amount, currency,
amount_in_base_currency, exchange_rate, expense_date, status, receipt_url, rejection_reason,
approval_rule_id, submitted_at, approved_at, rejected_at, created_at, updated_at`

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	var status string
	err := row.Scan(&e.ID, &e.CompanyID, &e.UserID, &e.CategoryID, &e.Description, &e.Amount, &e.Currency,
		&e.AmountBase, &e.ExchangeRate, &e.ExpenseDate, &status, &e.ReceiptURL, &e.RejectionReason,
		&e.RuleID, &e.SubmittedAt, &e.ApprovedAt, &e.RejectedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Expense{}, err
	}
	e.Status = ExpenseStatus(status)
	return e, nil
}

// Create inserts a draft expense.
func (r *Repository) Create(ctx context.Context, e Expense) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO expenses (`+expenseColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		e.ID, e.CompanyID, e.UserID, e.CategoryID, e.Description, e.Amount, e.Currency,
		e.AmountBase, e.ExchangeRate, e.ExpenseDate, string(e.Status), e.ReceiptURL, e.RejectionReason,
		e.RuleID, e.SubmittedAt, e.ApprovedAt, e.RejectedAt, e.CreatedAt, e.UpdatedAt)
	return err
}

// Get returns an expense scoped to the company.
func (r *Repository) Get(ctx context.Context, id, companyID uuid.UUID) (Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses
WHERE id=$1 AND company_id=$2`, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, err
	}
	return e, nil
}

// UpdateDraft changes the editable fields of a draft. The status guard keeps
// a concurrent submit from being silently overwritten.
func (r *Repository) UpdateDraft(ctx context.Context, e Expense) error {
	tag, err := r.pool.Exec(ctx, `UPDATE expenses
SET category_id=$1, description=$2, amount=$3, currency=$4, expense_date=$5, receipt_url=$6, updated_at=$7
WHERE id=$8 AND user_id=$9 AND status='DRAFT'`,
		e.CategoryID, e.Description, e.Amount, e.Currency, e.ExpenseDate, e.ReceiptURL, e.UpdatedAt,
		e.ID, e.UserID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// DeleteDraft removes a draft owned by the user.
func (r *Repository) DeleteDraft(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id=$1 AND user_id=$2 AND status='DRAFT'`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (f ListFilter) where(args *[]any, base string) string {
	clause := base
	if f.Status != "" {
		*args = append(*args, string(f.Status))
		clause += fmt.Sprintf(" AND status=$%d", len(*args))
	}
	if f.CategoryID != nil {
		*args = append(*args, *f.CategoryID)
		clause += fmt.Sprintf(" AND category_id=$%d", len(*args))
	}
	return clause
}

// ListByUser returns the user's expenses, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, f ListFilter, limit, offset int) ([]Expense, int, error) {
	args := []any{userID}
	where := f.where(&args, `WHERE user_id=$1`)
	return r.list(ctx, where, args, limit, offset)
}

// ListByCompany returns all company expenses, newest first.
func (r *Repository) ListByCompany(ctx context.Context, companyID uuid.UUID, f ListFilter, limit, offset int) ([]Expense, int, error) {
	args := []any{companyID}
	where := f.where(&args, `WHERE company_id=$1`)
	return r.list(ctx, where, args, limit, offset)
}

func (r *Repository) list(ctx context.Context, where string, args []any, limit, offset int) ([]Expense, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM expenses `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT `+expenseColumns+` FROM expenses %s
ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, e)
	}
	return list, total, rows.Err()
}

// StatsByUser aggregates the user's expenses per status.
func (r *Repository) StatsByUser(ctx context.Context, userID uuid.UUID) (Stats, error) {
	return r.stats(ctx, `WHERE user_id=$1`, userID)
}

// StatsByCompany aggregates all company expenses per status.
func (r *Repository) StatsByCompany(ctx context.Context, companyID uuid.UUID) (Stats, error) {
	return r.stats(ctx, `WHERE company_id=$1`, companyID)
}

func (r *Repository) stats(ctx context.Context, where string, arg any) (Stats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(amount_in_base_currency),0)
FROM expenses `+where+` GROUP BY status`, arg)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	stats := Stats{ByStatus: make(map[ExpenseStatus]StatusStat)}
	for rows.Next() {
		var status string
		var s StatusStat
		if err := rows.Scan(&status, &s.Count, &s.Amount); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[ExpenseStatus(status)] = s
		stats.TotalCount += s.Count
		stats.TotalAmount += s.Amount
	}
	return stats, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// MarkSubmitted flips a draft into review and freezes the conversion result
// and selected rule. The DRAFT guard makes concurrent submits race-safe:
// only one transaction sees an affected row.
func (t *txRepository) MarkSubmitted(ctx context.Context, id, ruleID uuid.UUID, amountBase, exchangeRate float64, now time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE expenses
SET status='SUBMITTED', approval_rule_id=$1, amount_in_base_currency=$2, exchange_rate=$3, submitted_at=$4, updated_at=$4
WHERE id=$5 AND status='DRAFT'`, ruleID, amountBase, exchangeRate, now, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAutoApproved finalizes a draft that needs no approval.
func (t *txRepository) MarkAutoApproved(ctx context.Context, id uuid.UUID, amountBase, exchangeRate float64, now time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE expenses
SET status='APPROVED', amount_in_base_currency=$1, exchange_rate=$2, submitted_at=$3, approved_at=$3, updated_at=$3
WHERE id=$4 AND status='DRAFT'`, amountBase, exchangeRate, now, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertApprovalLogs persists the materialized log set in one batch.
func (t *txRepository) InsertApprovalLogs(ctx context.Context, logs []approvals.ApprovalLog) error {
	batch := &pgx.Batch{}
	for _, l := range logs {
		batch.Queue(`INSERT INTO expense_approval_logs
(id, expense_id, approval_rule_id, approver_id, order_index, status, comments, approved_at, rejected_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			l.ID, l.ExpenseID, l.RuleID, l.ApproverID, l.Order, string(l.Status), l.Comments,
			l.ApprovedAt, l.RejectedAt, l.CreatedAt)
	}
	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()
	for range logs {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

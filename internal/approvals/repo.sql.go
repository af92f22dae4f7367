package approvals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/expensio/expensio/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for rules, assignments
// and approval logs. Expense status transitions that must commit atomically
// with log updates live here as conditional updates on the expenses table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository is the slice of the repository available inside WithTx.
type TxRepository interface {
	GetLog(ctx context.Context, id uuid.UUID) (ApprovalLog, error)
	GetRuleType(ctx context.Context, ruleID uuid.UUID) (ApprovalType, error)
	ResolveLog(ctx context.Context, id uuid.UUID, status LogStatus, comments string, now time.Time) (bool, error)
	ListLogsByExpense(ctx context.Context, expenseID uuid.UUID) ([]ApprovalLog, error)
	SweepPendingLogs(ctx context.Context, expenseID, excludeLogID uuid.UUID, comment string, now time.Time) (int64, error)
	ApproveExpense(ctx context.Context, expenseID uuid.UUID, now time.Time) (bool, error)
	RejectExpense(ctx context.Context, expenseID uuid.UUID, reason string, now time.Time) (bool, error)
	ExpenseStatus(ctx context.Context, expenseID uuid.UUID) (string, error)
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const ruleColumns = `id, company_id, name, min_amount, max_amount, category_ids, approval_type, is_active, created_at, updated_at`

func scanRule(row pgx.Row) (ApprovalRule, error) {
	var rule ApprovalRule
	var typ string
	var categoryIDs []uuid.UUID
	err := row.Scan(&rule.ID, &rule.CompanyID, &rule.Name, &rule.MinAmount, &rule.MaxAmount,
		&categoryIDs, &typ, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return ApprovalRule{}, err
	}
	rule.Type = ApprovalType(typ)
	if categoryIDs == nil {
		rule.Categories = AllCategories()
	} else {
		rule.Categories = SpecificCategories(categoryIDs)
	}
	return rule, nil
}

// categoryIDsParam maps the scope to the nullable array column.
func categoryIDsParam(scope CategoryScope) any {
	if scope.All() {
		return nil
	}
	return scope.IDs()
}

// CreateRule inserts a rule together with its approver assignments.
func (r *Repository) CreateRule(ctx context.Context, rule ApprovalRule, assignments []ApproverAssignment) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO approval_rules (`+ruleColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			rule.ID, rule.CompanyID, rule.Name, rule.MinAmount, rule.MaxAmount,
			categoryIDsParam(rule.Categories), string(rule.Type), rule.IsActive, rule.CreatedAt, rule.UpdatedAt)
		if err != nil {
			return translateRuleError(err)
		}
		return insertAssignments(ctx, tx, assignments)
	})
}

func insertAssignments(ctx context.Context, tx pgx.Tx, assignments []ApproverAssignment) error {
	for _, a := range assignments {
		_, err := tx.Exec(ctx, `INSERT INTO approver_assignments (id, approval_rule_id, user_id, order_index, is_active)
VALUES ($1,$2,$3,$4,$5)`, a.ID, a.RuleID, a.UserID, a.Order, a.IsActive)
		if err != nil {
			return translateRuleError(err)
		}
	}
	return nil
}

func translateRuleError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrValidation
	}
	return err
}

// GetRule returns a rule scoped to the company.
func (r *Repository) GetRule(ctx context.Context, id, companyID uuid.UUID) (ApprovalRule, error) {
	rule, err := scanRule(r.pool.QueryRow(ctx, `SELECT `+ruleColumns+` FROM approval_rules WHERE id=$1 AND company_id=$2`, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApprovalRule{}, ErrNotFound
		}
		return ApprovalRule{}, err
	}
	return rule, nil
}

// ListRules returns all rules of a company, active first.
func (r *Repository) ListRules(ctx context.Context, companyID uuid.UUID) ([]ApprovalRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM approval_rules
WHERE company_id=$1 ORDER BY is_active DESC, min_amount, name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// UpdateRule changes the configurable fields of a rule.
func (r *Repository) UpdateRule(ctx context.Context, rule ApprovalRule) error {
	tag, err := r.pool.Exec(ctx, `UPDATE approval_rules
SET name=$1, min_amount=$2, max_amount=$3, category_ids=$4, approval_type=$5, updated_at=$6
WHERE id=$7 AND company_id=$8`,
		rule.Name, rule.MinAmount, rule.MaxAmount, categoryIDsParam(rule.Categories),
		string(rule.Type), rule.UpdatedAt, rule.ID, rule.CompanyID)
	if err != nil {
		return translateRuleError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateRule soft-deletes a rule. Historical logs keep referencing it.
func (r *Repository) DeactivateRule(ctx context.Context, id, companyID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE approval_rules SET is_active=false, updated_at=NOW()
WHERE id=$1 AND company_id=$2`, id, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceAssignments swaps the active approver set of a rule. Old rows are
// deactivated rather than deleted; in-flight logs already carry their own
// copy of the ordering and are unaffected either way.
func (r *Repository) ReplaceAssignments(ctx context.Context, ruleID uuid.UUID, assignments []ApproverAssignment) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE approver_assignments SET is_active=false WHERE approval_rule_id=$1 AND is_active`, ruleID); err != nil {
			return err
		}
		return insertAssignments(ctx, tx, assignments)
	})
}

// FindCandidates returns the active rules matching the company, base-currency
// amount and category, best candidate first.
func (r *Repository) FindCandidates(ctx context.Context, companyID, categoryID uuid.UUID, amountBase float64) ([]ApprovalRule, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+ruleColumns+` FROM approval_rules
WHERE company_id=$1 AND is_active
  AND min_amount <= $2
  AND (max_amount IS NULL OR max_amount >= $2)
  AND (category_ids IS NULL OR $3 = ANY(category_ids))
ORDER BY min_amount DESC, id`, companyID, amountBase, categoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rules []ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ActiveAssignments returns the active approver assignments of a rule in
// sequence order.
func (r *Repository) ActiveAssignments(ctx context.Context, ruleID uuid.UUID) ([]ApproverAssignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, approval_rule_id, user_id, order_index, is_active
FROM approver_assignments WHERE approval_rule_id=$1 AND is_active ORDER BY order_index`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignments []ApproverAssignment
	for rows.Next() {
		var a ApproverAssignment
		if err := rows.Scan(&a.ID, &a.RuleID, &a.UserID, &a.Order, &a.IsActive); err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

const logColumns = `id, expense_id, approval_rule_id, approver_id, order_index, status, comments, approved_at, rejected_at, created_at`

func scanLog(row pgx.Row) (ApprovalLog, error) {
	var l ApprovalLog
	var status string
	err := row.Scan(&l.ID, &l.ExpenseID, &l.RuleID, &l.ApproverID, &l.Order, &status,
		&l.Comments, &l.ApprovedAt, &l.RejectedAt, &l.CreatedAt)
	if err != nil {
		return ApprovalLog{}, err
	}
	l.Status = LogStatus(status)
	return l, nil
}

// GetLog returns one approval log.
func (r *Repository) GetLog(ctx context.Context, id uuid.UUID) (ApprovalLog, error) {
	l, err := scanLog(r.pool.QueryRow(ctx, `SELECT `+logColumns+` FROM expense_approval_logs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApprovalLog{}, ErrNotFound
		}
		return ApprovalLog{}, err
	}
	return l, nil
}

// PendingForApprover returns the approver's pending queue joined with the
// expense context, oldest submission first.
func (r *Repository) PendingForApprover(ctx context.Context, approverID uuid.UUID, limit, offset int) ([]PendingItem, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM expense_approval_logs WHERE approver_id=$1 AND status='PENDING'`,
		approverID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.expense_id, l.approval_rule_id, l.approver_id, l.order_index, l.status, l.comments,
       l.approved_at, l.rejected_at, l.created_at,
       e.description, e.amount, e.currency, e.amount_in_base_currency, e.expense_date, e.user_id,
       r.approval_type
FROM expense_approval_logs l
JOIN expenses e ON e.id = l.expense_id
JOIN approval_rules r ON r.id = l.approval_rule_id
WHERE l.approver_id=$1 AND l.status='PENDING'
ORDER BY l.created_at, l.order_index
LIMIT $2 OFFSET $3`, approverID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []PendingItem
	for rows.Next() {
		var it PendingItem
		var status, typ string
		err := rows.Scan(&it.Log.ID, &it.Log.ExpenseID, &it.Log.RuleID, &it.Log.ApproverID, &it.Log.Order, &status,
			&it.Log.Comments, &it.Log.ApprovedAt, &it.Log.RejectedAt, &it.Log.CreatedAt,
			&it.Description, &it.Amount, &it.Currency, &it.AmountBase, &it.ExpenseDate, &it.RequesterID, &typ)
		if err != nil {
			return nil, 0, err
		}
		it.Log.Status = LogStatus(status)
		it.RuleType = ApprovalType(typ)
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// HistoryByExpense returns the full log set of an expense in sequence order.
func (r *Repository) HistoryByExpense(ctx context.Context, expenseID uuid.UUID) ([]ApprovalLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+logColumns+` FROM expense_approval_logs
WHERE expense_id=$1 ORDER BY order_index, created_at`, expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

// HistoryByApprover returns logs the approver has acted on, newest first.
func (r *Repository) HistoryByApprover(ctx context.Context, approverID uuid.UUID, limit, offset int) ([]ApprovalLog, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM expense_approval_logs WHERE approver_id=$1 AND status<>'PENDING'`,
		approverID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+logColumns+` FROM expense_approval_logs
WHERE approver_id=$1 AND status<>'PENDING'
ORDER BY COALESCE(approved_at, rejected_at) DESC
LIMIT $2 OFFSET $3`, approverID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	logs, err := collectLogs(rows)
	return logs, total, err
}

func collectLogs(rows pgx.Rows) ([]ApprovalLog, error) {
	var logs []ApprovalLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetLog(ctx context.Context, id uuid.UUID) (ApprovalLog, error) {
	l, err := scanLog(t.tx.QueryRow(ctx, `SELECT `+logColumns+` FROM expense_approval_logs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ApprovalLog{}, ErrNotFound
		}
		return ApprovalLog{}, err
	}
	return l, nil
}

func (t *txRepository) GetRuleType(ctx context.Context, ruleID uuid.UUID) (ApprovalType, error) {
	var typ string
	err := t.tx.QueryRow(ctx, `SELECT approval_type FROM approval_rules WHERE id=$1`, ruleID).Scan(&typ)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return ApprovalType(typ), nil
}

// ResolveLog moves a PENDING log to a terminal status. The status guard in
// the WHERE clause is what makes concurrent actions on the same log safe:
// exactly one update reports an affected row.
func (t *txRepository) ResolveLog(ctx context.Context, id uuid.UUID, status LogStatus, comments string, now time.Time) (bool, error) {
	var stampCol string
	switch status {
	case StatusApproved:
		stampCol = "approved_at"
	case StatusRejected:
		stampCol = "rejected_at"
	default:
		return false, ErrValidation
	}
	tag, err := t.tx.Exec(ctx, `UPDATE expense_approval_logs SET status=$1, comments=$2, `+stampCol+`=$3
WHERE id=$4 AND status='PENDING'`, string(status), comments, now, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) ListLogsByExpense(ctx context.Context, expenseID uuid.UUID) ([]ApprovalLog, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+logColumns+` FROM expense_approval_logs
WHERE expense_id=$1 ORDER BY order_index, created_at`, expenseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLogs(rows)
}

func (t *txRepository) SweepPendingLogs(ctx context.Context, expenseID, excludeLogID uuid.UUID, comment string, now time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE expense_approval_logs SET status='REJECTED', comments=$1, rejected_at=$2
WHERE expense_id=$3 AND id<>$4 AND status='PENDING'`, comment, now, expenseID, excludeLogID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ApproveExpense finalizes an expense if it is still under review. A false
// return means another transaction already moved it to a terminal status.
func (t *txRepository) ApproveExpense(ctx context.Context, expenseID uuid.UUID, now time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE expenses SET status='APPROVED', approved_at=$1, updated_at=$1
WHERE id=$2 AND status='SUBMITTED'`, now, expenseID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) RejectExpense(ctx context.Context, expenseID uuid.UUID, reason string, now time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE expenses SET status='REJECTED', rejection_reason=$1, rejected_at=$2, updated_at=$2
WHERE id=$3 AND status='SUBMITTED'`, reason, now, expenseID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) ExpenseStatus(ctx context.Context, expenseID uuid.UUID) (string, error) {
	var status string
	err := t.tx.QueryRow(ctx, `SELECT status FROM expenses WHERE id=$1`, expenseID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return status, nil
}

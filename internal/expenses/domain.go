// Package expenses manages the expense lifecycle from draft to payout,
// including the submission step that converts currency, selects the approval
// rule and materializes the approval workflow.
package expenses

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExpenseStatus is the expense lifecycle state.
type ExpenseStatus string

const (
	StatusDraft     ExpenseStatus = "DRAFT"
	StatusSubmitted ExpenseStatus = "SUBMITTED"
	StatusApproved  ExpenseStatus = "APPROVED"
	StatusRejected  ExpenseStatus = "REJECTED"
	StatusPaid      ExpenseStatus = "PAID"
)

// Valid reports whether the status is known.
func (s ExpenseStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusPaid:
		return true
	}
	return false
}

// SupportedCurrencies are the currencies expenses may be filed in.
var SupportedCurrencies = []string{"USD", "EUR", "GBP", "INR", "JPY", "AUD", "CAD", "CHF", "CNY"}

// CurrencySupported reports whether the code is accepted for new expenses.
func CurrencySupported(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}

// Expense is a filed expense. AmountBase, ExchangeRate and RuleID are set
// at submission time and frozen from then on; re-approving never re-converts.
type Expense struct {
	ID              uuid.UUID     `json:"id"`
	CompanyID       uuid.UUID     `json:"company_id"`
	UserID          uuid.UUID     `json:"user_id"`
	CategoryID      uuid.UUID     `json:"category_id"`
	Description     string        `json:"description"`
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency"`
	AmountBase      float64       `json:"amount_in_base_currency"`
	ExchangeRate    float64       `json:"exchange_rate"`
	ExpenseDate     time.Time     `json:"expense_date"`
	Status          ExpenseStatus `json:"status"`
	ReceiptURL      string        `json:"receipt_url,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	RuleID          *uuid.UUID    `json:"approval_rule_id,omitempty"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	RejectedAt      *time.Time    `json:"rejected_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// StatusStat aggregates count and base-currency volume per status.
type StatusStat struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// Stats summarizes a set of expenses.
type Stats struct {
	TotalCount  int                          `json:"total_count"`
	TotalAmount float64                      `json:"total_amount"`
	ByStatus    map[ExpenseStatus]StatusStat `json:"by_status"`
}

// ListFilter narrows expense listings.
type ListFilter struct {
	Status     ExpenseStatus
	CategoryID *uuid.UUID
	Page       int
	PerPage    int
}

var (
	// ErrNotFound indicates a missing expense or one outside the caller's
	// visibility.
	ErrNotFound = errors.New("expenses: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("expenses: invalid input")
	// ErrInvalidState occurs on a lifecycle action the current status does
	// not permit, such as submitting a non-draft expense.
	ErrInvalidState = errors.New("expenses: invalid state transition")
)

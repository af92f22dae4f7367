package categories

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Category classifies expenses within a company. Approval rules may restrict
// themselves to a subset of categories.
type Category struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   uuid.UUID `json:"company_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates the category does not exist in the company.
	ErrNotFound = errors.New("categories: not found")
	// ErrDuplicate indicates a category with the same name already exists.
	ErrDuplicate = errors.New("categories: duplicate name")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("categories: invalid input")
)

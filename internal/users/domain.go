package users

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/expensio/expensio/internal/shared"
)

// User represents a directory entry. Account creation, credentials and
// sessions are owned by the upstream identity service; this module only
// reads the directory for listings and approver validation.
type User struct {
	ID        uuid.UUID   `json:"id"`
	CompanyID uuid.UUID   `json:"company_id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      shared.Role `json:"role"`
	ManagerID *uuid.UUID  `json:"manager_id,omitempty"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
}

// ErrNotFound indicates the user does not exist in the company.
var ErrNotFound = errors.New("users: not found")

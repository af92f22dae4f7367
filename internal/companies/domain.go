package companies

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Company is the tenant root. Its base currency is the unit every approval
// threshold and converted amount is expressed in.
type Company struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Country      string    `json:"country"`
	BaseCurrency string    `json:"base_currency"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ErrNotFound indicates the company does not exist.
var ErrNotFound = errors.New("companies: not found")

package companies

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns a company by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `SELECT id, name, country, base_currency, created_at, updated_at
FROM companies WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Country, &c.BaseCurrency, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, err
	}
	return c, nil
}

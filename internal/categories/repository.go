package categories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// List returns the company categories, active first, then by name.
func (r *Repository) List(ctx context.Context, companyID uuid.UUID) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, name, description, is_active, created_at, updated_at
FROM categories WHERE company_id=$1 ORDER BY is_active DESC, name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Get returns a category scoped to the company.
func (r *Repository) Get(ctx context.Context, id, companyID uuid.UUID) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, description, is_active, created_at, updated_at
FROM categories WHERE id=$1 AND company_id=$2`, id, companyID).
		Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrNotFound
		}
		return Category{}, err
	}
	return c, nil
}

// Exists reports whether an active category belongs to the company.
func (r *Repository) Exists(ctx context.Context, id, companyID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM categories WHERE id=$1 AND company_id=$2 AND is_active)`,
		id, companyID).Scan(&exists)
	return exists, err
}

// Create inserts a category.
func (r *Repository) Create(ctx context.Context, c Category) (Category, error) {
	now := time.Now()
	c.ID = uuid.New()
	c.IsActive = true
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `INSERT INTO categories (id, company_id, name, description, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, c.ID, c.CompanyID, c.Name, c.Description, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Category{}, ErrDuplicate
		}
		return Category{}, err
	}
	return c, nil
}

// Update changes name/description of a category.
func (r *Repository) Update(ctx context.Context, id, companyID uuid.UUID, name, description string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET name=$1, description=$2, updated_at=NOW()
WHERE id=$3 AND company_id=$4`, name, description, id, companyID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a category. Categories are never removed so
// historical expenses keep a valid reference.
func (r *Repository) Deactivate(ctx context.Context, id, companyID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET is_active=false, updated_at=NOW()
WHERE id=$1 AND company_id=$2`, id, companyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

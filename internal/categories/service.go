package categories

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	List(ctx context.Context, companyID uuid.UUID) ([]Category, error)
	Get(ctx context.Context, id, companyID uuid.UUID) (Category, error)
	Exists(ctx context.Context, id, companyID uuid.UUID) (bool, error)
	Create(ctx context.Context, c Category) (Category, error)
	Update(ctx context.Context, id, companyID uuid.UUID, name, description string) error
	Deactivate(ctx context.Context, id, companyID uuid.UUID) error
}

// Service wraps category business rules.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a category service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns the categories of a company.
func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]Category, error) {
	return s.repo.List(ctx, companyID)
}

// Get returns one category.
func (s *Service) Get(ctx context.Context, id, companyID uuid.UUID) (Category, error) {
	return s.repo.Get(ctx, id, companyID)
}

// Exists reports whether the active category belongs to the company.
func (s *Service) Exists(ctx context.Context, id, companyID uuid.UUID) (bool, error) {
	return s.repo.Exists(ctx, id, companyID)
}

// Create validates and stores a new category.
func (s *Service) Create(ctx context.Context, c Category) (Category, error) {
	if err := validate(c.Name); err != nil {
		return Category{}, err
	}
	return s.repo.Create(ctx, c)
}

// Update validates and applies category changes.
func (s *Service) Update(ctx context.Context, id, companyID uuid.UUID, name, description string) error {
	if err := validate(name); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, companyID, name, description)
}

// Deactivate retires a category.
func (s *Service) Deactivate(ctx context.Context, id, companyID uuid.UUID) error {
	return s.repo.Deactivate(ctx, id, companyID)
}

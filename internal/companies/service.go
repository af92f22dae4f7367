package companies

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id uuid.UUID) (Company, error)
}

// Service exposes company reads.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a company service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns the company.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Company, error) {
	return s.repo.Get(ctx, id)
}

// BaseCurrency returns the company base currency code.
func (s *Service) BaseCurrency(ctx context.Context, id uuid.UUID) (string, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return c.BaseCurrency, nil
}

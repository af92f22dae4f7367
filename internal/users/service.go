package users

import (
	"context"

	"github.com/google/uuid"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Get(ctx context.Context, id, companyID uuid.UUID) (User, error)
	List(ctx context.Context, companyID uuid.UUID) ([]User, error)
}

// Service exposes directory reads.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a user service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get returns one directory entry.
func (s *Service) Get(ctx context.Context, id, companyID uuid.UUID) (User, error) {
	return s.repo.Get(ctx, id, companyID)
}

// List returns the active company directory.
func (s *Service) List(ctx context.Context, companyID uuid.UUID) ([]User, error) {
	return s.repo.List(ctx, companyID)
}

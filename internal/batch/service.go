package batch

import (
	"context"
	"errors"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Batch, error)
	ListByProduct(ctx context.Context, productID int64) ([]Batch, error)
}

// Service exposes batch reads. Mutations only happen through orchestrators
// holding a transaction-scoped TxStore.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Get loads one batch.
func (s *Service) Get(ctx context.Context, id int64) (Batch, error) {
	return s.repo.Get(ctx, id)
}

// ListByProduct lists a product's batches oldest received first.
func (s *Service) ListByProduct(ctx context.Context, productID int64) ([]Batch, error) {
	if productID == 0 {
		return nil, errors.New("batch: product required")
	}
	return s.repo.ListByProduct(ctx, productID)
}

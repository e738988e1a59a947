package ledger

import (
	"context"
	"errors"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error
	GetBalance(ctx context.Context, productID int64, loc shared.Location) (Balance, error)
	ReplayOnHand(ctx context.Context, productID int64, loc shared.Location) (float64, error)
	ListTransactions(ctx context.Context, filter Filter) ([]Transaction, int, error)
}

// Service exposes read access to the ledger and its derived on-hand.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// OnHand returns the materialized on-hand for one (product, location). A
// missing balance row means no movement was ever recorded there.
func (s *Service) OnHand(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	if productID == 0 {
		return 0, errors.New("ledger: product required")
	}
	if err := loc.Validate(); err != nil {
		return 0, err
	}
	bal, err := s.repo.GetBalance(ctx, productID, loc)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return bal.OnHand, nil
}

// ReplayOnHand derives on-hand by folding the transaction log, bypassing the
// materialized balance. The two must agree; the integrity job checks it.
func (s *Service) ReplayOnHand(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	if productID == 0 {
		return 0, errors.New("ledger: product required")
	}
	if err := loc.Validate(); err != nil {
		return 0, err
	}
	return s.repo.ReplayOnHand(ctx, productID, loc)
}

// History lists transactions matching the filter, newest first.
func (s *Service) History(ctx context.Context, filter Filter) ([]Transaction, shared.Pagination, error) {
	if filter.Direction != "" && filter.Direction != DirectionIn && filter.Direction != DirectionOut {
		return nil, shared.Pagination{}, ErrInvalidDirection
	}
	if !filter.Location.IsZero() {
		if err := filter.Location.Validate(); err != nil {
			return nil, shared.Pagination{}, err
		}
	}
	txs, total, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return txs, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

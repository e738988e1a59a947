package summary

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// LedgerPort reads the materialized on-hand balance.
type LedgerPort interface {
	OnHand(ctx context.Context, productID int64, loc shared.Location) (float64, error)
}

// ReservationPort sums active reservation quantity.
type ReservationPort interface {
	Reserved(ctx context.Context, productID int64, loc shared.Location) (float64, error)
}

// StockSummary is the availability read model for one (product, location).
type StockSummary struct {
	ProductID int64           `json:"product_id"`
	Location  shared.Location `json:"location"`
	OnHand    float64         `json:"on_hand"`
	Reserved  float64         `json:"reserved"`
	Available float64         `json:"available"`
}

// Service assembles stock summaries from the ledger and reservation ports,
// caching results behind a versioned Redis key. Concurrent cache misses for
// the same key collapse into one load.
type Service struct {
	ledger       LedgerPort
	reservations ReservationPort
	cache        *Cache
	group        singleflight.Group
}

// NewService builds Service.
func NewService(ledger LedgerPort, reservations ReservationPort, cache *Cache) *Service {
	return &Service{ledger: ledger, reservations: reservations, cache: cache}
}

// Summary returns on-hand, reserved, and available quantity for one product
// at one location. Available = on-hand minus active reservations.
func (s *Service) Summary(ctx context.Context, productID int64, loc shared.Location) (StockSummary, error) {
	if productID == 0 {
		return StockSummary{}, errors.New("summary: product required")
	}
	if err := loc.Validate(); err != nil {
		return StockSummary{}, err
	}
	key, err := s.cache.BuildKey(ctx, keySummary(productID, loc))
	if err != nil {
		return StockSummary{}, err
	}
	var out StockSummary
	err = s.fetchShared(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.build(ctx, productID, loc)
	})
	if err != nil {
		return StockSummary{}, err
	}
	return out, nil
}

func (s *Service) build(ctx context.Context, productID int64, loc shared.Location) (StockSummary, error) {
	onHand, err := s.ledger.OnHand(ctx, productID, loc)
	if err != nil {
		return StockSummary{}, err
	}
	reserved, err := s.reservations.Reserved(ctx, productID, loc)
	if err != nil {
		return StockSummary{}, err
	}
	return StockSummary{
		ProductID: productID,
		Location:  loc,
		OnHand:    onHand,
		Reserved:  reserved,
		Available: onHand - reserved,
	}, nil
}

func (s *Service) fetchShared(ctx context.Context, key string, dest *StockSummary, loader func(context.Context) (interface{}, error)) error {
	resultChan := s.group.DoChan(key, func() (interface{}, error) {
		var value StockSummary
		err := s.cache.FetchJSON(ctx, key, &value, loader)
		return value, err
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return res.Err
		}
		*dest = res.Val.(StockSummary)
		return nil
	}
}

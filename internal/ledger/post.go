package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxLedger exposes the transactional ledger operations. The ledger is the
// sole writer of balances and before/after snapshots; all other components
// read on-hand through it.
type TxLedger interface {
	GetBalanceForUpdate(ctx context.Context, productID int64, loc shared.Location) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertTransaction(ctx context.Context, tx Transaction) (int64, error)
}

// PostParams describes one movement to record.
type PostParams struct {
	ProductID  int64
	Direction  Direction
	Location   shared.Location
	BatchID    int64
	Qty        float64
	Reason     string
	TransferID string
	ActorID    int64
	PostedAt   time.Time
}

// Post records one movement: locks the affected balance row, takes the
// before/after snapshot, appends the transaction, and writes the new balance.
// Two concurrent posts against the same (product, location) serialize on the
// balance row lock.
func Post(ctx context.Context, tx TxLedger, params PostParams) (Transaction, error) {
	if params.Qty <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	if params.Direction != DirectionIn && params.Direction != DirectionOut {
		return Transaction{}, ErrInvalidDirection
	}
	if err := params.Location.Validate(); err != nil {
		return Transaction{}, err
	}

	balance, err := lockBalance(ctx, tx, params.ProductID, params.Location)
	if err != nil {
		return Transaction{}, err
	}

	before := balance.OnHand
	after := before
	if params.Direction == DirectionIn {
		after = before + params.Qty
	} else {
		after = before - params.Qty
		if after < -quantityEpsilon {
			return Transaction{}, ErrInsufficientStock
		}
		if after < 0 {
			after = 0
		}
	}

	postedAt := params.PostedAt
	if postedAt.IsZero() {
		postedAt = time.Now().UTC()
	}
	record := Transaction{
		ProductID:  params.ProductID,
		Direction:  params.Direction,
		Location:   params.Location,
		BatchID:    params.BatchID,
		Qty:        params.Qty,
		Before:     before,
		After:      after,
		Reason:     params.Reason,
		TransferID: params.TransferID,
		ActorID:    params.ActorID,
		CreatedAt:  postedAt,
	}
	id, err := tx.InsertTransaction(ctx, record)
	if err != nil {
		return Transaction{}, err
	}
	record.ID = id

	balance.OnHand = after
	balance.UpdatedAt = postedAt
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return Transaction{}, err
	}
	return record, nil
}

func lockBalance(ctx context.Context, tx TxLedger, productID int64, loc shared.Location) (Balance, error) {
	balance, err := tx.GetBalanceForUpdate(ctx, productID, loc)
	if err != nil {
		if errors.Is(err, ErrBalanceNotFound) {
			return Balance{ProductID: productID, Location: loc}, nil
		}
		return Balance{}, err
	}
	return balance, nil
}

const quantityEpsilon = 1e-9

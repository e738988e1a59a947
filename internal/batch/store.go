package batch

import (
	"context"
	"time"
)

// TxStore exposes the transactional batch operations. Implementations are
// scoped to one open database transaction so orchestrators can mutate batches
// atomically with ledger postings.
type TxStore interface {
	InsertBatch(ctx context.Context, b Batch) (int64, error)
	GetBatchForUpdate(ctx context.Context, id int64) (Batch, error)
	UpdateQtyRemaining(ctx context.Context, id int64, qtyRemaining float64) error
	SetLandedUnitCost(ctx context.Context, id int64, landed float64) error
	ListOpenForUpdate(ctx context.Context, productID int64) ([]Batch, error)
	ListByShipmentForUpdate(ctx context.Context, shipmentID int64) ([]Batch, error)
}

// CreateInput describes a batch to create.
type CreateInput struct {
	ProductID    int64
	Source       Source
	Qty          float64
	BaseUnitCost float64
	ReceivedAt   time.Time
}

// Create inserts a new lot. QtyRemaining starts at QtyReceived and
// LandedUnitCost at BaseUnitCost.
func Create(ctx context.Context, tx TxStore, input CreateInput) (Batch, error) {
	if input.Qty <= 0 {
		return Batch{}, ErrInvalidQuantity
	}
	if input.BaseUnitCost < 0 {
		return Batch{}, ErrInvalidCost
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	source := input.Source
	if source.Kind == "" {
		source = NoSource
	}
	b := Batch{
		ProductID:      input.ProductID,
		Source:         source,
		QtyReceived:    input.Qty,
		QtyRemaining:   input.Qty,
		BaseUnitCost:   input.BaseUnitCost,
		LandedUnitCost: input.BaseUnitCost,
		ReceivedAt:     receivedAt,
	}
	id, err := tx.InsertBatch(ctx, b)
	if err != nil {
		return Batch{}, err
	}
	b.ID = id
	return b, nil
}

// Consume decrements QtyRemaining on one batch under a row lock.
func Consume(ctx context.Context, tx TxStore, batchID int64, qty float64) (Batch, error) {
	if qty <= 0 {
		return Batch{}, ErrInvalidQuantity
	}
	b, err := tx.GetBatchForUpdate(ctx, batchID)
	if err != nil {
		return Batch{}, err
	}
	if qty > b.QtyRemaining+quantityEpsilon {
		return Batch{}, ErrInsufficientQuantity
	}
	b.QtyRemaining -= qty
	if b.QtyRemaining < quantityEpsilon {
		b.QtyRemaining = 0
	}
	if err := tx.UpdateQtyRemaining(ctx, b.ID, b.QtyRemaining); err != nil {
		return Batch{}, err
	}
	return b, nil
}

// DrainFIFO consumes qty across the product's open batches, oldest received
// first. Fails with ErrInsufficientQuantity when the open batches cannot cover
// the full quantity; no partial drain is committed because callers run inside
// one transaction.
func DrainFIFO(ctx context.Context, tx TxStore, productID int64, qty float64) ([]Draw, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	open, err := tx.ListOpenForUpdate(ctx, productID)
	if err != nil {
		return nil, err
	}
	remaining := qty
	var draws []Draw
	for _, b := range open {
		if remaining <= quantityEpsilon {
			break
		}
		take := b.QtyRemaining
		if take > remaining {
			take = remaining
		}
		b.QtyRemaining -= take
		if b.QtyRemaining < quantityEpsilon {
			b.QtyRemaining = 0
		}
		if err := tx.UpdateQtyRemaining(ctx, b.ID, b.QtyRemaining); err != nil {
			return nil, err
		}
		draws = append(draws, Draw{Batch: b, Qty: take})
		remaining -= take
	}
	if remaining > quantityEpsilon {
		return nil, ErrInsufficientQuantity
	}
	return draws, nil
}

const quantityEpsilon = 1e-9

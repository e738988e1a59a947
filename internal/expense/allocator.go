package expense

import (
	"context"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/batch"
)

// TxAllocator exposes the transactional expense operations.
type TxAllocator interface {
	InsertExpense(ctx context.Context, e Expense) (int64, error)
	GetExpenseForUpdate(ctx context.Context, id int64) (Expense, error)
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
	SumCapitalizableNet(ctx context.Context, scope Scope, targetID int64) (float64, error)
	MarkApplied(ctx context.Context, scope Scope, targetID int64, at time.Time) error
}

// TxRepository joins the expense operations with the batch store they
// allocate against, all inside one transaction.
type TxRepository interface {
	TxAllocator
	batch.TxStore
}

// Recalculate recomputes landed unit cost for the target from the total net
// capitalizable expense. It is idempotent: every run starts from the base
// unit cost and the full expense sum, never from the previous landed cost, so
// re-running after a new expense cannot double-count.
//
// The shipment policy is even allocation: every received unit absorbs the
// same per-unit share regardless of batch or product. The per-unit share is
// clamped at zero so expense credits can never push landed cost below base.
func Recalculate(ctx context.Context, tx TxRepository, scope Scope, targetID int64) (float64, error) {
	switch scope {
	case ScopeBatch:
		return recalculateBatch(ctx, tx, targetID)
	case ScopeShipment:
		return recalculateShipment(ctx, tx, targetID)
	default:
		return 0, ErrInvalidScope
	}
}

func recalculateBatch(ctx context.Context, tx TxRepository, batchID int64) (float64, error) {
	b, err := tx.GetBatchForUpdate(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if b.QtyReceived <= 0 {
		return 0, ErrAllocationTargetEmpty
	}
	net, err := tx.SumCapitalizableNet(ctx, ScopeBatch, batchID)
	if err != nil {
		return 0, err
	}
	perUnit := net / b.QtyReceived
	if perUnit < 0 {
		perUnit = 0
	}
	if err := tx.SetLandedUnitCost(ctx, b.ID, b.BaseUnitCost+perUnit); err != nil {
		return 0, err
	}
	if err := tx.MarkApplied(ctx, ScopeBatch, batchID, time.Now().UTC()); err != nil {
		return 0, err
	}
	return perUnit, nil
}

func recalculateShipment(ctx context.Context, tx TxRepository, shipmentID int64) (float64, error) {
	batches, err := tx.ListByShipmentForUpdate(ctx, shipmentID)
	if err != nil {
		return 0, err
	}
	var totalQty float64
	for _, b := range batches {
		totalQty += b.QtyReceived
	}
	if totalQty <= 0 {
		return 0, ErrAllocationTargetEmpty
	}
	net, err := tx.SumCapitalizableNet(ctx, ScopeShipment, shipmentID)
	if err != nil {
		return 0, err
	}
	perUnit := net / totalQty
	if perUnit < 0 {
		perUnit = 0
	}
	for _, b := range batches {
		if err := tx.SetLandedUnitCost(ctx, b.ID, b.BaseUnitCost+perUnit); err != nil {
			return 0, err
		}
	}
	if err := tx.MarkApplied(ctx, ScopeShipment, shipmentID, time.Now().UTC()); err != nil {
		return 0, err
	}
	return perUnit, nil
}

package expense

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/batch"
)

type memoryRepo struct {
	expenses    map[int64]Expense
	adjustments map[int64][]Adjustment
	batches     map[int64]batch.Batch
	// batch id -> shipment item id mapping for shipment scope
	shipmentOf  map[int64]int64
	nextExpense int64
	nextAdjust  int64
	nextBatch   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		expenses:    make(map[int64]Expense),
		adjustments: make(map[int64][]Adjustment),
		batches:     make(map[int64]batch.Batch),
		shipmentOf:  make(map[int64]int64),
	}
}

func (r *memoryRepo) addBatch(shipmentID int64, qty, baseCost float64) int64 {
	r.nextBatch++
	r.batches[r.nextBatch] = batch.Batch{
		ID:             r.nextBatch,
		ProductID:      1,
		QtyReceived:    qty,
		QtyRemaining:   qty,
		BaseUnitCost:   baseCost,
		LandedUnitCost: baseCost,
		ReceivedAt:     time.Now().UTC(),
	}
	if shipmentID != 0 {
		r.shipmentOf[r.nextBatch] = shipmentID
	}
	return r.nextBatch
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Expense, []Adjustment, error) {
	e, ok := r.expenses[id]
	if !ok {
		return Expense{}, nil, ErrNotFound
	}
	return e, r.adjustments[id], nil
}

func (r *memoryRepo) ListByTarget(ctx context.Context, scope Scope, targetID int64) ([]Expense, error) {
	var out []Expense
	for _, e := range r.expenses {
		if e.Scope == scope && e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListUnapplied(ctx context.Context, limit int) ([]Expense, error) {
	var out []Expense
	for _, e := range r.expenses {
		if e.Capitalizable && e.AppliedAt.IsZero() {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryRepo) InsertExpense(ctx context.Context, e Expense) (int64, error) {
	r.nextExpense++
	e.ID = r.nextExpense
	e.CreatedAt = time.Now().UTC()
	r.expenses[e.ID] = e
	return e.ID, nil
}

func (r *memoryRepo) GetExpenseForUpdate(ctx context.Context, id int64) (Expense, error) {
	e, ok := r.expenses[id]
	if !ok {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

func (r *memoryRepo) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	if _, ok := r.expenses[adj.ExpenseID]; !ok {
		return 0, ErrNotFound
	}
	r.nextAdjust++
	adj.ID = r.nextAdjust
	adj.CreatedAt = time.Now().UTC()
	r.adjustments[adj.ExpenseID] = append(r.adjustments[adj.ExpenseID], adj)
	return adj.ID, nil
}

func (r *memoryRepo) SumCapitalizableNet(ctx context.Context, scope Scope, targetID int64) (float64, error) {
	var net float64
	for _, e := range r.expenses {
		if e.Scope != scope || e.TargetID != targetID || !e.Capitalizable {
			continue
		}
		net += e.Amount
		for _, adj := range r.adjustments[e.ID] {
			net += adj.Amount
		}
	}
	return net, nil
}

func (r *memoryRepo) MarkApplied(ctx context.Context, scope Scope, targetID int64, at time.Time) error {
	for id, e := range r.expenses {
		if e.Scope == scope && e.TargetID == targetID && e.Capitalizable && e.AppliedAt.IsZero() {
			e.AppliedAt = at
			r.expenses[id] = e
		}
	}
	return nil
}

func (r *memoryRepo) InsertBatch(ctx context.Context, b batch.Batch) (int64, error) {
	r.nextBatch++
	b.ID = r.nextBatch
	r.batches[b.ID] = b
	return b.ID, nil
}

func (r *memoryRepo) GetBatchForUpdate(ctx context.Context, id int64) (batch.Batch, error) {
	b, ok := r.batches[id]
	if !ok {
		return batch.Batch{}, batch.ErrNotFound
	}
	return b, nil
}

func (r *memoryRepo) UpdateQtyRemaining(ctx context.Context, id int64, qtyRemaining float64) error {
	b := r.batches[id]
	b.QtyRemaining = qtyRemaining
	r.batches[id] = b
	return nil
}

func (r *memoryRepo) SetLandedUnitCost(ctx context.Context, id int64, landed float64) error {
	b := r.batches[id]
	b.LandedUnitCost = landed
	r.batches[id] = b
	return nil
}

func (r *memoryRepo) ListOpenForUpdate(ctx context.Context, productID int64) ([]batch.Batch, error) {
	return nil, nil
}

func (r *memoryRepo) ListByShipmentForUpdate(ctx context.Context, shipmentID int64) ([]batch.Batch, error) {
	var out []batch.Batch
	for id, sid := range r.shipmentOf {
		if sid == shipmentID {
			out = append(out, r.batches[id])
		}
	}
	return out, nil
}

func TestAddExpenseSpreadsEvenlyAcrossShipmentUnits(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := repo.addBatch(10, 100, 2)
	b2 := repo.addBatch(10, 50, 3)

	created, err := svc.AddExpense(ctx, AddExpenseInput{
		Scope:         ScopeShipment,
		TargetID:      10,
		Type:          "freight",
		Amount:        120,
		Capitalizable: true,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	// 120 over 150 units = 0.8 per unit on top of each batch's base cost
	require.InDelta(t, 2.8, repo.batches[b1].LandedUnitCost, 1e-9)
	require.InDelta(t, 3.8, repo.batches[b2].LandedUnitCost, 1e-9)
}

func TestRecalculateIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := repo.addBatch(10, 100, 2)

	_, err := svc.AddExpense(ctx, AddExpenseInput{Scope: ScopeShipment, TargetID: 10, Type: "freight", Amount: 50, Capitalizable: true})
	require.NoError(t, err)
	require.InDelta(t, 2.5, repo.batches[b1].LandedUnitCost, 1e-9)

	perUnit, err := svc.RecalculateLandedCost(ctx, ScopeShipment, 10)
	require.NoError(t, err)
	require.InDelta(t, 0.5, perUnit, 1e-9)
	require.InDelta(t, 2.5, repo.batches[b1].LandedUnitCost, 1e-9)

	perUnit, err = svc.RecalculateLandedCost(ctx, ScopeShipment, 10)
	require.NoError(t, err)
	require.InDelta(t, 0.5, perUnit, 1e-9)
	require.InDelta(t, 2.5, repo.batches[b1].LandedUnitCost, 1e-9)
}

func TestAdjustmentRecomputesFromNet(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := repo.addBatch(10, 100, 2)

	created, err := svc.AddExpense(ctx, AddExpenseInput{Scope: ScopeShipment, TargetID: 10, Type: "freight", Amount: 100, Capitalizable: true})
	require.NoError(t, err)
	require.InDelta(t, 3.0, repo.batches[b1].LandedUnitCost, 1e-9)

	_, err = svc.AddAdjustment(ctx, AddAdjustmentInput{ExpenseID: created.ID, Amount: -40, Reason: "partial refund"})
	require.NoError(t, err)
	require.InDelta(t, 2.6, repo.batches[b1].LandedUnitCost, 1e-9)
}

func TestNegativeNetClampsAtBaseCost(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := repo.addBatch(10, 100, 2)

	created, err := svc.AddExpense(ctx, AddExpenseInput{Scope: ScopeShipment, TargetID: 10, Type: "freight", Amount: 30, Capitalizable: true})
	require.NoError(t, err)

	_, err = svc.AddAdjustment(ctx, AddAdjustmentInput{ExpenseID: created.ID, Amount: -100, Reason: "over-credit"})
	require.NoError(t, err)
	require.InDelta(t, 2.0, repo.batches[b1].LandedUnitCost, 1e-9)
}

func TestBatchScopedExpense(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := repo.addBatch(0, 40, 5)

	_, err := svc.AddExpense(ctx, AddExpenseInput{Scope: ScopeBatch, TargetID: b1, Type: "customs", Amount: 20, Capitalizable: true})
	require.NoError(t, err)
	require.InDelta(t, 5.5, repo.batches[b1].LandedUnitCost, 1e-9)
}

func TestNonCapitalizableExpenseNeverAllocates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := repo.addBatch(10, 100, 2)

	_, err := svc.AddExpense(ctx, AddExpenseInput{Scope: ScopeShipment, TargetID: 10, Type: "insurance", Amount: 500, Capitalizable: false})
	require.NoError(t, err)
	require.InDelta(t, 2.0, repo.batches[b1].LandedUnitCost, 1e-9)
}

func TestExpenseBeforeReceiptStaysUnapplied(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	created, err := svc.AddExpense(ctx, AddExpenseInput{Scope: ScopeShipment, TargetID: 77, Type: "freight", Amount: 60, Capitalizable: true})
	require.NoError(t, err)
	require.True(t, repo.expenses[created.ID].AppliedAt.IsZero())

	// sweep still cannot apply without received units
	applied, err := svc.SweepUnapplied(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, applied)

	// once the shipment has a batch, the sweep settles it
	b1 := repo.addBatch(77, 30, 1)
	applied, err = svc.SweepUnapplied(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, applied)
	require.InDelta(t, 3.0, repo.batches[b1].LandedUnitCost, 1e-9)
	require.False(t, repo.expenses[created.ID].AppliedAt.IsZero())
}

func TestAddExpenseValidates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.AddExpense(ctx, AddExpenseInput{Scope: "order", TargetID: 1, Type: "freight", Amount: 10})
	require.ErrorIs(t, err, ErrInvalidScope)

	_, err = svc.AddExpense(ctx, AddExpenseInput{Scope: ScopeShipment, Type: "freight", Amount: 10})
	require.Error(t, err)

	_, err = svc.AddAdjustment(ctx, AddAdjustmentInput{ExpenseID: 123, Amount: 5})
	require.ErrorIs(t, err, ErrNotFound)
}

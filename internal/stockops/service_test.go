package stockops

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/batch"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type repoState struct {
	batches      map[int64]batch.Batch
	balances     map[string]ledger.Balance
	transactions []ledger.Transaction
	nextBatch    int64
	nextTx       int64
}

func newRepoState() *repoState {
	return &repoState{
		batches:  make(map[int64]batch.Batch),
		balances: make(map[string]ledger.Balance),
	}
}

func (s *repoState) clone() *repoState {
	c := newRepoState()
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	c.transactions = append(c.transactions, s.transactions...)
	c.nextBatch = s.nextBatch
	c.nextTx = s.nextTx
	return c
}

// memoryRepo commits the working copy only when the callback succeeds.
type memoryRepo struct {
	state *repoState
	bumps int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newRepoState()}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	working := r.state.clone()
	if err := fn(ctx, &memoryTx{state: working}); err != nil {
		return err
	}
	r.state = working
	return nil
}

func (r *memoryRepo) Bump(ctx context.Context) error {
	r.bumps++
	return nil
}

func (r *memoryRepo) addBatch(productID int64, qty, landed float64, receivedAt time.Time) int64 {
	r.state.nextBatch++
	id := r.state.nextBatch
	r.state.batches[id] = batch.Batch{
		ID:             id,
		ProductID:      productID,
		Source:         batch.NoSource,
		QtyReceived:    qty,
		QtyRemaining:   qty,
		BaseUnitCost:   landed,
		LandedUnitCost: landed,
		ReceivedAt:     receivedAt,
	}
	return id
}

func (r *memoryRepo) setOnHand(productID int64, loc shared.Location, qty float64) {
	r.state.balances[stockKey(productID, loc)] = ledger.Balance{ProductID: productID, Location: loc, OnHand: qty}
}

func (r *memoryRepo) onHand(productID int64, loc shared.Location) float64 {
	return r.state.balances[stockKey(productID, loc)].OnHand
}

type memoryTx struct {
	state *repoState
}

func (tx *memoryTx) InsertBatch(ctx context.Context, b batch.Batch) (int64, error) {
	tx.state.nextBatch++
	b.ID = tx.state.nextBatch
	tx.state.batches[b.ID] = b
	return b.ID, nil
}

func (tx *memoryTx) GetBatchForUpdate(ctx context.Context, id int64) (batch.Batch, error) {
	b, ok := tx.state.batches[id]
	if !ok {
		return batch.Batch{}, batch.ErrNotFound
	}
	return b, nil
}

func (tx *memoryTx) UpdateQtyRemaining(ctx context.Context, id int64, qtyRemaining float64) error {
	b := tx.state.batches[id]
	b.QtyRemaining = qtyRemaining
	tx.state.batches[id] = b
	return nil
}

func (tx *memoryTx) SetLandedUnitCost(ctx context.Context, id int64, landed float64) error {
	b := tx.state.batches[id]
	b.LandedUnitCost = landed
	tx.state.batches[id] = b
	return nil
}

func (tx *memoryTx) ListOpenForUpdate(ctx context.Context, productID int64) ([]batch.Batch, error) {
	var out []batch.Batch
	for _, b := range tx.state.batches {
		if b.ProductID == productID && b.QtyRemaining > 0 {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *memoryTx) ListByShipmentForUpdate(ctx context.Context, shipmentID int64) ([]batch.Batch, error) {
	return nil, nil
}

func stockKey(productID int64, loc shared.Location) string {
	return fmt.Sprintf("%s:%d", loc.Key(), productID)
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, productID int64, loc shared.Location) (ledger.Balance, error) {
	bal, ok := tx.state.balances[stockKey(productID, loc)]
	if !ok {
		return ledger.Balance{}, ledger.ErrBalanceNotFound
	}
	return bal, nil
}

func (tx *memoryTx) UpsertBalance(ctx context.Context, balance ledger.Balance) error {
	tx.state.balances[stockKey(balance.ProductID, balance.Location)] = balance
	return nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, record ledger.Transaction) (int64, error) {
	tx.state.nextTx++
	record.ID = tx.state.nextTx
	tx.state.transactions = append(tx.state.transactions, record)
	return record.ID, nil
}

func TestAdjustInCreatesSourcelessBatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, repo)
	loc := shared.Warehouse(1)

	result, err := svc.Adjust(context.Background(), AdjustmentInput{
		ProductID: 7,
		Location:  loc,
		Direction: AdjustIn,
		Qty:       12,
		UnitCost:  3.5,
		Reason:    "cycle count surplus",
	}, "")
	require.NoError(t, err)
	require.InDelta(t, 0.0, result.Before, 1e-9)
	require.InDelta(t, 12.0, result.After, 1e-9)
	require.Len(t, result.BatchIDs, 1)

	b := repo.state.batches[result.BatchIDs[0]]
	require.Equal(t, batch.NoSource, b.Source)
	require.InDelta(t, 3.5, b.BaseUnitCost, 1e-9)
	require.InDelta(t, 3.5, b.LandedUnitCost, 1e-9)
	require.InDelta(t, 12.0, repo.onHand(7, loc), 1e-9)
	require.Equal(t, 1, repo.bumps)

	record := repo.state.transactions[0]
	require.Equal(t, ledger.DirectionIn, record.Direction)
	require.Equal(t, ledger.ReasonAdjustmentIn, record.Reason)
}

func TestAdjustOutDrainsOldestBatchesFirst(t *testing.T) {
	repo := newMemoryRepo()
	loc := shared.Warehouse(1)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := repo.addBatch(7, 10, 2, base)
	newer := repo.addBatch(7, 20, 3, base.Add(time.Hour))
	repo.setOnHand(7, loc, 30)
	svc := NewService(repo, nil, nil, repo)

	result, err := svc.Adjust(context.Background(), AdjustmentInput{
		ProductID: 7,
		Location:  loc,
		Direction: AdjustOut,
		Qty:       15,
		Reason:    "damage",
	}, "")
	require.NoError(t, err)
	require.Equal(t, []int64{old, newer}, result.BatchIDs)
	require.InDelta(t, 30.0, result.Before, 1e-9)
	require.InDelta(t, 15.0, result.After, 1e-9)

	require.InDelta(t, 0.0, repo.state.batches[old].QtyRemaining, 1e-9)
	require.InDelta(t, 15.0, repo.state.batches[newer].QtyRemaining, 1e-9)
	require.InDelta(t, 15.0, repo.onHand(7, loc), 1e-9)

	// one ledger row per batch drained
	require.Len(t, repo.state.transactions, 2)
	require.InDelta(t, 10.0, repo.state.transactions[0].Qty, 1e-9)
	require.InDelta(t, 5.0, repo.state.transactions[1].Qty, 1e-9)
}

func TestAdjustOutInsufficientRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	loc := shared.Warehouse(1)
	repo.addBatch(7, 10, 2, time.Now())
	repo.setOnHand(7, loc, 10)
	svc := NewService(repo, nil, nil, repo)

	_, err := svc.Adjust(context.Background(), AdjustmentInput{
		ProductID: 7,
		Location:  loc,
		Direction: AdjustOut,
		Qty:       11,
	}, "")
	require.ErrorIs(t, err, batch.ErrInsufficientQuantity)
	require.InDelta(t, 10.0, repo.onHand(7, loc), 1e-9)
	require.Empty(t, repo.state.transactions)
	require.Zero(t, repo.bumps)
}

func TestAdjustValidatesInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, repo)
	ctx := context.Background()
	loc := shared.Warehouse(1)

	_, err := svc.Adjust(ctx, AdjustmentInput{Location: loc, Direction: AdjustIn, Qty: 1}, "")
	require.ErrorIs(t, err, batch.ErrNotFound)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: 7, Location: loc, Direction: AdjustIn, Qty: 0}, "")
	require.ErrorIs(t, err, batch.ErrInvalidQuantity)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: 7, Location: loc, Direction: "sideways", Qty: 1}, "")
	require.ErrorIs(t, err, ErrInvalidAdjustDirection)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: 7, Location: loc, Direction: AdjustIn, Qty: 1, UnitCost: -1}, "")
	require.ErrorIs(t, err, batch.ErrInvalidCost)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: 7, Location: shared.Location{Type: "dock", ID: 1}, Direction: AdjustIn, Qty: 1}, "")
	require.ErrorIs(t, err, shared.ErrInvalidLocation)
}

func TestTransferMovesStockAndKeepsCostBasis(t *testing.T) {
	repo := newMemoryRepo()
	from := shared.Warehouse(1)
	to := shared.Shop(1)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := repo.addBatch(7, 60, 4, base)
	b := repo.state.batches[src]
	b.LandedUnitCost = 4.8
	repo.state.batches[src] = b
	repo.setOnHand(7, from, 60)
	svc := NewService(repo, nil, nil, repo)

	result, err := svc.Transfer(context.Background(), TransferInput{
		ProductID: 7,
		From:      from,
		To:        to,
		Qty:       20,
		Reason:    "replenish shop",
	}, "")
	require.NoError(t, err)
	require.NotEmpty(t, result.TransferID)
	require.InDelta(t, 60.0, result.Source.Before, 1e-9)
	require.InDelta(t, 40.0, result.Source.After, 1e-9)
	require.InDelta(t, 0.0, result.Destination.Before, 1e-9)
	require.InDelta(t, 20.0, result.Destination.After, 1e-9)

	require.InDelta(t, 40.0, repo.onHand(7, from), 1e-9)
	require.InDelta(t, 20.0, repo.onHand(7, to), 1e-9)

	// destination batch carries the source landed cost as its new base
	require.Len(t, result.DestBatchIDs, 1)
	dest := repo.state.batches[result.DestBatchIDs[0]]
	require.InDelta(t, 4.8, dest.BaseUnitCost, 1e-9)
	require.InDelta(t, 4.8, dest.LandedUnitCost, 1e-9)

	// linked pair shares the transfer id
	require.Len(t, repo.state.transactions, 2)
	out, in := repo.state.transactions[0], repo.state.transactions[1]
	require.Equal(t, ledger.DirectionOut, out.Direction)
	require.Equal(t, ledger.ReasonTransferOut, out.Reason)
	require.Equal(t, ledger.DirectionIn, in.Direction)
	require.Equal(t, ledger.ReasonTransferIn, in.Reason)
	require.Equal(t, result.TransferID, out.TransferID)
	require.Equal(t, result.TransferID, in.TransferID)
}

func TestTransferSpansMultipleSourceBatches(t *testing.T) {
	repo := newMemoryRepo()
	from := shared.Warehouse(1)
	to := shared.Warehouse(2)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo.addBatch(7, 10, 2, base)
	repo.addBatch(7, 20, 3, base.Add(time.Hour))
	repo.setOnHand(7, from, 30)
	svc := NewService(repo, nil, nil, repo)

	result, err := svc.Transfer(context.Background(), TransferInput{
		ProductID: 7,
		From:      from,
		To:        to,
		Qty:       15,
	}, "")
	require.NoError(t, err)
	require.Len(t, result.DestBatchIDs, 2)
	require.InDelta(t, 15.0, repo.onHand(7, from), 1e-9)
	require.InDelta(t, 15.0, repo.onHand(7, to), 1e-9)

	first := repo.state.batches[result.DestBatchIDs[0]]
	second := repo.state.batches[result.DestBatchIDs[1]]
	require.InDelta(t, 10.0, first.QtyReceived, 1e-9)
	require.InDelta(t, 2.0, first.BaseUnitCost, 1e-9)
	require.InDelta(t, 5.0, second.QtyReceived, 1e-9)
	require.InDelta(t, 3.0, second.BaseUnitCost, 1e-9)
}

func TestTransferInsufficientSourceRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	from := shared.Warehouse(1)
	to := shared.Shop(1)
	repo.addBatch(7, 10, 2, time.Now())
	// batches hold 10 but the source location only has 5 on hand
	repo.setOnHand(7, from, 5)
	svc := NewService(repo, nil, nil, repo)

	_, err := svc.Transfer(context.Background(), TransferInput{
		ProductID: 7,
		From:      from,
		To:        to,
		Qty:       8,
	}, "")
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	require.InDelta(t, 5.0, repo.onHand(7, from), 1e-9)
	require.InDelta(t, 0.0, repo.onHand(7, to), 1e-9)
	require.InDelta(t, 10.0, repo.state.batches[1].QtyRemaining, 1e-9)
	require.Empty(t, repo.state.transactions)
}

func TestTransferRejectsSameLocation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, repo)
	loc := shared.Warehouse(1)

	_, err := svc.Transfer(context.Background(), TransferInput{
		ProductID: 7,
		From:      loc,
		To:        loc,
		Qty:       1,
	}, "")
	require.ErrorIs(t, err, ErrSameLocation)
}

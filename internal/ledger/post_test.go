package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryLedger struct {
	balances     map[string]Balance
	transactions []Transaction
	nextID       int64
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{balances: make(map[string]Balance)}
}

func balanceKey(productID int64, loc shared.Location) string {
	return fmt.Sprintf("%s:%d", loc.Key(), productID)
}

func (l *memoryLedger) GetBalanceForUpdate(ctx context.Context, productID int64, loc shared.Location) (Balance, error) {
	bal, ok := l.balances[balanceKey(productID, loc)]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return bal, nil
}

func (l *memoryLedger) UpsertBalance(ctx context.Context, balance Balance) error {
	l.balances[balanceKey(balance.ProductID, balance.Location)] = balance
	return nil
}

func (l *memoryLedger) InsertTransaction(ctx context.Context, tx Transaction) (int64, error) {
	l.nextID++
	tx.ID = l.nextID
	l.transactions = append(l.transactions, tx)
	return tx.ID, nil
}

func TestPostInboundFromEmptyBalance(t *testing.T) {
	ledger := newMemoryLedger()
	ctx := context.Background()
	loc := shared.Warehouse(1)

	tx, err := Post(ctx, ledger, PostParams{
		ProductID: 9,
		Direction: DirectionIn,
		Location:  loc,
		BatchID:   4,
		Qty:       60,
		Reason:    ReasonPurchaseReceipt,
	})
	require.NoError(t, err)
	require.InDelta(t, 0.0, tx.Before, 1e-9)
	require.InDelta(t, 60.0, tx.After, 1e-9)
	require.Equal(t, ReasonPurchaseReceipt, tx.Reason)
	require.NotZero(t, tx.ID)

	bal := ledger.balances[balanceKey(9, loc)]
	require.InDelta(t, 60.0, bal.OnHand, 1e-9)
}

func TestPostSnapshotsChain(t *testing.T) {
	ledger := newMemoryLedger()
	ctx := context.Background()
	loc := shared.Warehouse(1)

	_, err := Post(ctx, ledger, PostParams{ProductID: 9, Direction: DirectionIn, Location: loc, Qty: 100, Reason: ReasonAdjustmentIn})
	require.NoError(t, err)

	tx, err := Post(ctx, ledger, PostParams{ProductID: 9, Direction: DirectionOut, Location: loc, Qty: 40, Reason: ReasonAdjustmentOut})
	require.NoError(t, err)
	require.InDelta(t, 100.0, tx.Before, 1e-9)
	require.InDelta(t, 60.0, tx.After, 1e-9)

	tx, err = Post(ctx, ledger, PostParams{ProductID: 9, Direction: DirectionIn, Location: loc, Qty: 15, Reason: ReasonTransferIn, TransferID: "t-1"})
	require.NoError(t, err)
	require.InDelta(t, 60.0, tx.Before, 1e-9)
	require.InDelta(t, 75.0, tx.After, 1e-9)
	require.Equal(t, "t-1", tx.TransferID)
}

func TestPostRejectsOverdraw(t *testing.T) {
	ledger := newMemoryLedger()
	ctx := context.Background()
	loc := shared.Shop(2)

	_, err := Post(ctx, ledger, PostParams{ProductID: 5, Direction: DirectionIn, Location: loc, Qty: 10, Reason: ReasonAdjustmentIn})
	require.NoError(t, err)

	_, err = Post(ctx, ledger, PostParams{ProductID: 5, Direction: DirectionOut, Location: loc, Qty: 10.5, Reason: ReasonAdjustmentOut})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// balance untouched after the rejected post
	require.InDelta(t, 10.0, ledger.balances[balanceKey(5, loc)].OnHand, 1e-9)
	require.Len(t, ledger.transactions, 1)
}

func TestPostRejectsOutFromEmptyLocation(t *testing.T) {
	ledger := newMemoryLedger()
	_, err := Post(context.Background(), ledger, PostParams{
		ProductID: 5,
		Direction: DirectionOut,
		Location:  shared.Shop(3),
		Qty:       1,
		Reason:    ReasonSaleDelivery,
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestPostValidatesInput(t *testing.T) {
	ledger := newMemoryLedger()
	ctx := context.Background()

	_, err := Post(ctx, ledger, PostParams{ProductID: 1, Direction: DirectionIn, Location: shared.Warehouse(1), Qty: 0})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = Post(ctx, ledger, PostParams{ProductID: 1, Direction: "sideways", Location: shared.Warehouse(1), Qty: 1})
	require.ErrorIs(t, err, ErrInvalidDirection)

	_, err = Post(ctx, ledger, PostParams{ProductID: 1, Direction: DirectionIn, Location: shared.Location{}, Qty: 1})
	require.ErrorIs(t, err, shared.ErrInvalidLocation)
}

func TestPostKeepsLocationsIndependent(t *testing.T) {
	ledger := newMemoryLedger()
	ctx := context.Background()

	_, err := Post(ctx, ledger, PostParams{ProductID: 7, Direction: DirectionIn, Location: shared.Warehouse(1), Qty: 60, Reason: ReasonAdjustmentIn})
	require.NoError(t, err)

	tx, err := Post(ctx, ledger, PostParams{ProductID: 7, Direction: DirectionIn, Location: shared.Shop(1), Qty: 20, Reason: ReasonTransferIn})
	require.NoError(t, err)
	require.InDelta(t, 0.0, tx.Before, 1e-9)
	require.InDelta(t, 20.0, tx.After, 1e-9)

	require.InDelta(t, 60.0, ledger.balances[balanceKey(7, shared.Warehouse(1))].OnHand, 1e-9)
	require.InDelta(t, 20.0, ledger.balances[balanceKey(7, shared.Shop(1))].OnHand, 1e-9)
}

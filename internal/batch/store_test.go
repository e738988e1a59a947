package batch

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	batches map[int64]Batch
	nextID  int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{batches: make(map[int64]Batch)}
}

func (s *memoryStore) InsertBatch(ctx context.Context, b Batch) (int64, error) {
	s.nextID++
	b.ID = s.nextID
	s.batches[b.ID] = b
	return b.ID, nil
}

func (s *memoryStore) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	b, ok := s.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return b, nil
}

func (s *memoryStore) UpdateQtyRemaining(ctx context.Context, id int64, qtyRemaining float64) error {
	b, ok := s.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.QtyRemaining = qtyRemaining
	s.batches[id] = b
	return nil
}

func (s *memoryStore) SetLandedUnitCost(ctx context.Context, id int64, landed float64) error {
	b, ok := s.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.LandedUnitCost = landed
	s.batches[id] = b
	return nil
}

func (s *memoryStore) ListOpenForUpdate(ctx context.Context, productID int64) ([]Batch, error) {
	var open []Batch
	for _, b := range s.batches {
		if b.ProductID == productID && b.QtyRemaining > 0 {
			open = append(open, b)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if open[i].ReceivedAt.Equal(open[j].ReceivedAt) {
			return open[i].ID < open[j].ID
		}
		return open[i].ReceivedAt.Before(open[j].ReceivedAt)
	})
	return open, nil
}

func (s *memoryStore) ListByShipmentForUpdate(ctx context.Context, shipmentID int64) ([]Batch, error) {
	return nil, nil
}

func TestCreateInitialisesRemainingAndLandedCost(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	b, err := Create(ctx, store, CreateInput{ProductID: 7, Qty: 60, BaseUnitCost: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), b.ID)
	require.InDelta(t, 60.0, b.QtyReceived, 1e-9)
	require.InDelta(t, 60.0, b.QtyRemaining, 1e-9)
	require.InDelta(t, 10.0, b.BaseUnitCost, 1e-9)
	require.InDelta(t, 10.0, b.LandedUnitCost, 1e-9)
	require.Equal(t, SourceNone, b.Source.Kind)
	require.False(t, b.ReceivedAt.IsZero())
}

func TestCreateRejectsBadInput(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	_, err := Create(ctx, store, CreateInput{ProductID: 7, Qty: 0, BaseUnitCost: 10})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = Create(ctx, store, CreateInput{ProductID: 7, Qty: 5, BaseUnitCost: -1})
	require.ErrorIs(t, err, ErrInvalidCost)
}

func TestConsumeDecrementsWithinBounds(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	created, err := Create(ctx, store, CreateInput{ProductID: 1, Qty: 10, BaseUnitCost: 2})
	require.NoError(t, err)

	b, err := Consume(ctx, store, created.ID, 4)
	require.NoError(t, err)
	require.InDelta(t, 6.0, b.QtyRemaining, 1e-9)

	_, err = Consume(ctx, store, created.ID, 6.5)
	require.ErrorIs(t, err, ErrInsufficientQuantity)

	b, err = Consume(ctx, store, created.ID, 6)
	require.NoError(t, err)
	require.Zero(t, b.QtyRemaining)
	require.InDelta(t, 10.0, b.QtyReceived, 1e-9)
}

func TestConsumeUnknownBatch(t *testing.T) {
	store := newMemoryStore()
	_, err := Consume(context.Background(), store, 99, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDrainFIFOWalksOldestFirst(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	first, err := Create(ctx, store, CreateInput{ProductID: 3, Qty: 10, BaseUnitCost: 5, ReceivedAt: base})
	require.NoError(t, err)
	second, err := Create(ctx, store, CreateInput{ProductID: 3, Qty: 20, BaseUnitCost: 6, ReceivedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	draws, err := DrainFIFO(ctx, store, 3, 15)
	require.NoError(t, err)
	require.Len(t, draws, 2)
	require.Equal(t, first.ID, draws[0].Batch.ID)
	require.InDelta(t, 10.0, draws[0].Qty, 1e-9)
	require.Equal(t, second.ID, draws[1].Batch.ID)
	require.InDelta(t, 5.0, draws[1].Qty, 1e-9)

	require.Zero(t, store.batches[first.ID].QtyRemaining)
	require.InDelta(t, 15.0, store.batches[second.ID].QtyRemaining, 1e-9)
}

func TestDrainFIFOInsufficientIsRejected(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	_, err := Create(ctx, store, CreateInput{ProductID: 3, Qty: 10, BaseUnitCost: 5})
	require.NoError(t, err)

	_, err = DrainFIFO(ctx, store, 3, 11)
	require.ErrorIs(t, err, ErrInsufficientQuantity)
}

func TestDrainFIFORejectsNonPositiveQty(t *testing.T) {
	store := newMemoryStore()
	_, err := DrainFIFO(context.Background(), store, 3, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

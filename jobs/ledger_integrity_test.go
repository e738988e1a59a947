package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type fakeBalanceReader struct {
	balances []ledger.Balance
	replayed map[string]float64
}

func (f *fakeBalanceReader) ListBalances(ctx context.Context, limit, offset int) ([]ledger.Balance, error) {
	if offset >= len(f.balances) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.balances) {
		end = len(f.balances)
	}
	return f.balances[offset:end], nil
}

func (f *fakeBalanceReader) ReplayOnHand(ctx context.Context, productID int64, loc shared.Location) (float64, error) {
	return f.replayed[loc.Key()], nil
}

func TestIntegrityCheckPassesWhenReplayAgrees(t *testing.T) {
	w1 := shared.Warehouse(1)
	s1 := shared.Shop(1)
	reader := &fakeBalanceReader{
		balances: []ledger.Balance{
			{ProductID: 7, Location: w1, OnHand: 40},
			{ProductID: 7, Location: s1, OnHand: 15},
		},
		replayed: map[string]float64{w1.Key(): 40, s1.Key(): 15},
	}

	mismatches, err := RunLedgerIntegrityCheck(context.Background(), reader, nil)
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

func TestIntegrityCheckReportsDrift(t *testing.T) {
	w1 := shared.Warehouse(1)
	s1 := shared.Shop(1)
	reader := &fakeBalanceReader{
		balances: []ledger.Balance{
			{ProductID: 7, Location: w1, OnHand: 40},
			{ProductID: 7, Location: s1, OnHand: 15},
		},
		replayed: map[string]float64{w1.Key(): 40, s1.Key(): 12},
	}

	mismatches, err := RunLedgerIntegrityCheck(context.Background(), reader, nil)
	require.Error(t, err)
	require.Len(t, mismatches, 1)
	require.Equal(t, s1, mismatches[0].Location)
	require.InDelta(t, 15.0, mismatches[0].Materialized, 1e-9)
	require.InDelta(t, 12.0, mismatches[0].Replayed, 1e-9)
}

func TestIntegrityCheckToleratesRounding(t *testing.T) {
	w1 := shared.Warehouse(1)
	reader := &fakeBalanceReader{
		balances: []ledger.Balance{{ProductID: 7, Location: w1, OnHand: 40}},
		replayed: map[string]float64{w1.Key(): 40 + 1e-9},
	}

	mismatches, err := RunLedgerIntegrityCheck(context.Background(), reader, nil)
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

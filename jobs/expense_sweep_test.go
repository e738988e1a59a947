package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	applied int
	limit   int
	err     error
}

func (f *fakeSweeper) SweepUnapplied(ctx context.Context, limit int) (int, error) {
	f.limit = limit
	return f.applied, f.err
}

func TestExpenseSweepRunsWithBatchLimit(t *testing.T) {
	sweeper := &fakeSweeper{applied: 3}
	require.NoError(t, RunExpenseSweep(context.Background(), sweeper, nil))
	require.Equal(t, sweepBatchSize, sweeper.limit)
}

func TestExpenseSweepPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	sweeper := &fakeSweeper{err: boom}
	require.ErrorIs(t, RunExpenseSweep(context.Background(), sweeper, nil), boom)
}

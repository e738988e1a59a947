package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

const sweepBatchSize = 200

// ExpenseSweeper retries landed-cost allocation for expenses recorded before
// any unit of their target was received.
type ExpenseSweeper interface {
	SweepUnapplied(ctx context.Context, limit int) (int, error)
}

// RunExpenseSweep applies pending expenses and logs how many were settled.
func RunExpenseSweep(ctx context.Context, sweeper ExpenseSweeper, logger *slog.Logger) error {
	applied, err := sweeper.SweepUnapplied(ctx, sweepBatchSize)
	if err != nil {
		return err
	}
	if logger != nil {
		logger.Info("expense sweep finished", slog.String("job", "expense_sweep"), slog.Int("applied", applied))
	}
	return nil
}

// NewExpenseSweepHandler adapts the sweep into an Asynq handler.
func NewExpenseSweepHandler(sweeper ExpenseSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskExpenseSweep)
		return tracker.End(RunExpenseSweep(ctx, sweeper, logger))
	}
}

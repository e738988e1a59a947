package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

// KeyCleaner purges processed idempotency keys older than a retention window.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupHandler adapts the cleanup into an Asynq handler.
func NewIdempotencyCleanupHandler(cleaner KeyCleaner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskIdempotencyCleanup)
		if err := cleaner.Cleanup(ctx, retention); err != nil {
			return tracker.End(err)
		}
		if logger != nil {
			logger.Info("idempotency keys purged",
				slog.String("job", "idempotency_cleanup"),
				slog.Duration("retention", retention))
		}
		return tracker.End(nil)
	}
}

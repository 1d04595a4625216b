// workers/recompute_worker.go
package workers

import (
	"context"
	"log/slog"
	"time"
)

// TaskRetrier retries due recompute tasks and reports how many succeeded.
type TaskRetrier interface {
	RetryDue(ctx context.Context, limit int) (int, error)
}

// RecomputeWorker periodically retries post-completion steps that failed.
type RecomputeWorker struct {
	retrier   TaskRetrier
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRecomputeWorker(retrier TaskRetrier, interval time.Duration, batchSize int, logger *slog.Logger) *RecomputeWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &RecomputeWorker{retrier: retrier, interval: interval, batchSize: batchSize, logger: logger}
}

// Start polls until ctx is cancelled.
func (w *RecomputeWorker) Start(ctx context.Context) {
	w.logger.InfoContext(ctx, "recompute worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("recompute worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RecomputeWorker) tick(ctx context.Context) {
	done, err := w.retrier.RetryDue(ctx, w.batchSize)
	if err != nil {
		// Leave tasks pending; the next tick picks them up again.
		w.logger.ErrorContext(ctx, "recompute retry pass failed", "succeeded", done, "error", err)
		return
	}
	if done > 0 {
		w.logger.InfoContext(ctx, "recompute tasks retried", "succeeded", done)
	}
}

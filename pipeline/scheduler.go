package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// RunEvery performs an update pass immediately and then once per interval
// until ctx is cancelled. A pass still in flight when the next tick fires
// delays that tick instead of overlapping it.
func (u *Updater) RunEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("price scheduler started", slog.Duration("interval", interval))
	u.scheduledRun(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("price scheduler stopped")
			return
		case <-ticker.C:
			u.scheduledRun(ctx)
		}
	}
}

func (u *Updater) scheduledRun(ctx context.Context) {
	result, err := u.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("scheduled price update failed", slog.Any("error", err))
		}
		return
	}
	slog.Debug("scheduled price update finished",
		slog.Int("processed", result.ProductsProcessed),
		slog.Int("errors", len(result.Errors)),
	)
}

package journal

import (
	"context"
	"log/slog"
	"time"
)

// RunPruner deletes entries older than retention every interval until ctx
// is cancelled.
func (j *Journal) RunPruner(ctx context.Context, retention, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := j.Prune(ctx, now.Add(-retention))
			if err != nil {
				logger.Warn("journal prune failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				logger.Info("journal pruned", slog.Int64("entries", n))
			}
		}
	}
}

package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-perp/internal/logger"
)

// Janitor applies the retention policy to every partition on a fixed cadence.
type Janitor struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewJanitor(s Store, retentionDays int, interval time.Duration, log *logger.Logger) *Janitor {
	return &Janitor{
		store:     s,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
		logger:    log.Named("janitor"),
		now:       time.Now,
	}
}

// RunOnce purges every partition and returns the total number of deleted bars.
// A failing partition is logged and skipped.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	symbols, err := j.store.ListPartitions(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := j.now().UTC().Add(-j.retention)

	var total int64

	for _, sym := range symbols {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		n, err := j.store.PurgeOlderThan(ctx, sym, cutoff)
		if err != nil {
			j.logger.Warn("Retention purge failed", zap.String("symbol", sym), zap.Error(err))

			continue
		}

		if n > 0 {
			j.logger.Info("Purged expired bars", zap.String("symbol", sym), zap.Int64("rows", n), zap.Time("cutoff", cutoff))
		}

		total += n
	}

	return total, nil
}

// Run purges immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("Retention pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

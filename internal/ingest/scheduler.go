package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Runner is the part of Engine the scheduler drives.
type Runner interface {
	Run(ctx context.Context, opts RunOpts) (*RunSummary, error)
}

// Schedule runs r once immediately and then every interval until ctx is
// done. Run errors are logged; the next tick still fires. Runs never
// overlap because each one finishes before the next tick is read.
func Schedule(ctx context.Context, r Runner, interval time.Duration, opts RunOpts) {
	log := zap.L().With(zap.String("component", "ingest.scheduler"))
	if interval <= 0 {
		interval = DefaultInterval
	}

	run := func() {
		if _, err := r.Run(ctx, opts); err != nil && ctx.Err() == nil {
			log.Error("scheduled refresh failed", zap.Error(err))
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return
		case <-ticker.C:
			run()
		}
	}
}

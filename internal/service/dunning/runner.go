package dunning

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Runner drives the sweep on a fixed cadence. The external trigger contract
// is at-least-once; the sweep itself is idempotent, so a crash mid-pass is
// recovered by simply running again.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewRunner(sweeper *Sweeper, interval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{sweeper: sweeper, interval: interval, logger: logger}
}

func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("dunning runner started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("dunning runner stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("sweep panic", "error", rec, "stack", string(debug.Stack()))
		}
	}()

	if _, err := r.sweeper.Sweep(ctx); err != nil {
		r.logger.Error("sweep failed", "error", err)
	}
}

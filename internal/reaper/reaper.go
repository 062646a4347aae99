// Package reaper evicts terminal job records once they age past the
// retention window, keeping the in-memory store bounded.
package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mediadl/mediadl/internal/media"
	"github.com/mediadl/mediadl/internal/store"
)

// Config tunes the sweep cadence and retention window. Zero values fall
// back to defaults.
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

const (
	defaultInterval  = 5 * time.Minute
	defaultRetention = time.Hour
)

// Reaper periodically deletes aged-out terminal jobs.
type Reaper struct {
	store  store.Store
	clock  media.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Reaper.
func New(st store.Store, clock media.Clock, cfg Config, logger *zap.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{store: st, clock: clock, cfg: cfg, logger: logger}
}

// Run sweeps on the configured interval until the context finishes.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("reaped stale jobs", zap.Int("count", n))
			}
		}
	}
}

// Sweep deletes every terminal job older than the retention window and
// returns how many were removed. In-flight jobs are never touched.
func (r *Reaper) Sweep() int {
	cutoff := r.clock.Now().Add(-r.cfg.Retention)
	reaped := 0
	for _, job := range r.store.List() {
		if job.Terminal() && job.StartTime.Before(cutoff) {
			r.store.Delete(job.ID)
			reaped++
		}
	}
	return reaped
}

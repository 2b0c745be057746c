// Package reaper runs the periodic pool housekeeping: idle eviction,
// dead-session reconciliation and task-history pruning.
package reaper

import (
	"context"
	"log/slog"
	"time"
)

type Options struct {
	Interval    time.Duration
	IdleTimeout time.Duration
	// Retention is how long finished tasks are kept. Zero keeps them forever.
	Retention time.Duration
}

type Reaper struct {
	pool   ReaperPool
	store  ReaperStore
	opts   Options
	logger *slog.Logger
}

// New builds a reaper. st may be nil.
func New(p ReaperPool, st ReaperStore, opts Options, logger *slog.Logger) *Reaper {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Reaper{
		pool:   p,
		store:  st,
		opts:   opts,
		logger: logger,
	}
}

func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", "interval", r.opts.Interval, "idle_timeout", r.opts.IdleTimeout)

	r.reconcile(ctx)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	r.reconcile(ctx)

	if r.opts.IdleTimeout > 0 {
		if n := r.pool.CleanupIdle(ctx, r.opts.IdleTimeout); n > 0 {
			r.logger.Info("reaper: closed idle sessions", "count", n)
		}
	}

	r.pruneTasks()
}

// reconcile resets slots whose browser connection has gone away.
func (r *Reaper) reconcile(ctx context.Context) {
	if n := r.pool.ReapDead(ctx); n > 0 {
		r.logger.Warn("reconcile: reset dead sessions", "count", n)
	}
}

func (r *Reaper) pruneTasks() {
	if r.store == nil || r.opts.Retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.opts.Retention)
	n, err := r.store.PruneTasks(cutoff)
	if err != nil {
		r.logger.Error("reaper: prune tasks", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("reaper: pruned task history", "count", n, "before", cutoff)
	}
}

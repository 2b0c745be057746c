// Package pool manages a fixed number of long-lived browser sessions.
//
// Each slot is owned by at most one actor goroutine. The structural mutex
// guards which actor, page and external resource a slot points to; a
// separate per-slot busy lock gives one caller at a time exclusive use
// of the session. Provisioning runs under its own lock so a slow login
// never blocks acquisitions of sessions that are already up.
package pool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Options tunes pool timing. Zero values fall back to the defaults below.
type Options struct {
	Size             int
	PollInterval     time.Duration
	ProbeTimeout     time.Duration
	ProvisionTimeout time.Duration
	TeardownTimeout  time.Duration
}

const (
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultProbeTimeout     = 100 * time.Millisecond
	DefaultProvisionTimeout = 600 * time.Second
	DefaultTeardownTimeout  = 30 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Size < 1 {
		o.Size = 1
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.ProvisionTimeout <= 0 {
		o.ProvisionTimeout = DefaultProvisionTimeout
	}
	if o.TeardownTimeout <= 0 {
		o.TeardownTimeout = DefaultTeardownTimeout
	}
	return o
}

type Pool struct {
	opts        Options
	provisioner Provisioner
	farm        Farm
	logger      *slog.Logger

	mu    sync.Mutex // structural: slot identity fields
	slots []*slot

	initLock *busyLock // serializes provisioning
}

// New pre-allocates opts.Size empty slots. farm may be nil when sessions
// are not backed by an external browser farm.
func New(opts Options, prov Provisioner, farm Farm, logger *slog.Logger) *Pool {
	opts = opts.withDefaults()
	p := &Pool{
		opts:        opts,
		provisioner: prov,
		farm:        farm,
		logger:      logger,
		slots:       make([]*slot, opts.Size),
		initLock:    newBusyLock(),
	}
	for i := range p.slots {
		p.slots[i] = &slot{busy: newBusyLock()}
	}
	p.mu.Lock()
	p.publishLocked()
	p.mu.Unlock()
	return p
}

// Size returns the fixed number of slots.
func (p *Pool) Size() int {
	return len(p.slots)
}

// Close tears down every active session. Used on server shutdown.
func (p *Pool) Close(ctx context.Context) {
	p.DestroyAll(ctx)
}

// DestroyAll tears down every slot that has a live actor, in parallel.
func (p *Pool) DestroyAll(ctx context.Context) {
	var targets []int
	p.mu.Lock()
	for i, s := range p.slots {
		if s.actor != nil && s.actor.Alive() {
			targets = append(targets, i)
		}
	}
	p.mu.Unlock()

	var g errgroup.Group
	for _, idx := range targets {
		g.Go(func() error {
			return p.destroy(ctx, idx, reasonClose)
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Warn("not every session tore down cleanly", "sessions", len(targets), "error", err)
	}
}

package pool

import (
	"context"
	"time"
)

// Lease is an exclusively held slot.
type Lease struct {
	Index int
	Actor *Actor
	Page  Page
}

type candidate struct {
	index int
	busy  *busyLock
}

// Acquire finds an active slot whose busy lock is free and takes it.
//
// Selection is first-fit in index order: low indices are preferred and
// there is no fairness between slots. That keeps the policy trivial for
// single-digit pools; a round-robin cursor would be the next step if the
// pool grows. The candidate list is re-scanned every poll interval until
// timeout elapses, after which ErrBusy is returned.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (Lease, error) {
	start := time.Now()
	deadline := start.Add(timeout)

	for {
		if lease, ok := p.tryAcquire(); ok {
			metricAcquire.WithLabelValues("ok").Inc()
			metricAcquireWait.Observe(time.Since(start).Seconds())
			return lease, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			metricAcquire.WithLabelValues("busy").Inc()
			return Lease{}, ErrBusy
		}
		wait := p.opts.PollInterval
		if remaining < wait {
			wait = remaining
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			metricAcquire.WithLabelValues("cancelled").Inc()
			return Lease{}, ctx.Err()
		case <-t.C:
		}
	}
}

func (p *Pool) tryAcquire() (Lease, bool) {
	// Snapshot under the structural lock, then try the busy locks without it.
	var candidates []candidate
	p.mu.Lock()
	for i, s := range p.slots {
		if s.active() {
			candidates = append(candidates, candidate{index: i, busy: s.busy})
		}
	}
	p.mu.Unlock()

	for _, c := range candidates {
		if !c.busy.TryLock() {
			continue
		}
		p.mu.Lock()
		s := p.slots[c.index]
		if !s.active() {
			// Torn down between snapshot and lock.
			p.mu.Unlock()
			c.busy.Unlock()
			continue
		}
		s.lastActive = time.Now()
		lease := Lease{Index: c.index, Actor: s.actor, Page: s.page}
		p.publishLocked()
		p.mu.Unlock()
		return lease, true
	}
	return Lease{}, false
}

// Release frees slot index. Releasing a slot that is not held, or that
// was reset in the meantime, is a no-op.
func (p *Pool) Release(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.slots) {
		return
	}
	s := p.slots[index]
	s.lastActive = time.Now()
	s.busy.Unlock()
	p.publishLocked()
}

package pool

import "context"

// EnsureCapacity grows the pool by one session when nothing is
// immediately acquirable and a slot is still vacant. It is a heuristic:
// a short probe acquisition stands in for a utilization metric, so a new
// session is started only under contention.
func (p *Pool) EnsureCapacity(ctx context.Context) error {
	if p.firstVacant() < 0 {
		return nil
	}

	lease, err := p.Acquire(ctx, p.opts.ProbeTimeout)
	if err == nil {
		p.Release(lease.Index)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := p.initLock.Lock(ctx); err != nil {
		return err
	}

	// Racing requests may have provisioned or freed a session meanwhile.
	idx, free := p.capacityState()
	if idx < 0 || free {
		p.initLock.Unlock()
		return nil
	}

	p.logger.Info("all sessions busy, scaling up", "slot", idx)
	return p.provisionAndUnlock(ctx, idx)
}

// capacityState returns the first vacant slot and whether any active slot
// currently has a free busy lock.
func (p *Pool) capacityState() (vacant int, free bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vacant = -1
	for i, s := range p.slots {
		if vacant < 0 && s.vacant() {
			vacant = i
		}
		if s.active() && !s.busy.Locked() {
			free = true
		}
	}
	return vacant, free
}

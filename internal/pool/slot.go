package pool

import (
	"context"
	"time"
)

// busyLock is a binary lock that can be tried, waited on with a context,
// and released more than once without harm.
type busyLock struct {
	ch chan struct{}
}

func newBusyLock() *busyLock {
	return &busyLock{ch: make(chan struct{}, 1)}
}

func (l *busyLock) TryLock() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *busyLock) Lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the lock. Unlocking a free lock is a no-op and reports false.
func (l *busyLock) Unlock() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

func (l *busyLock) Locked() bool {
	return len(l.ch) == 1
}

// slot is one pool position. Identity fields (actor, page, resourceID,
// email, provisioning) only change under Pool.mu; busy guards task-level
// exclusivity and survives resets.
type slot struct {
	actor        *Actor
	page         Page
	resourceID   string
	email        string
	provisioning bool
	busy         *busyLock
	lastActive   time.Time
}

func (s *slot) active() bool {
	return s.actor != nil && s.page != nil && s.actor.Alive()
}

// vacant reports whether the slot can be claimed for provisioning: it is
// empty or its actor has died.
func (s *slot) vacant() bool {
	return s.actor == nil || !s.actor.Alive()
}

// reset clears identity and keeps the busy lock so waiters are not stranded.
func (s *slot) reset() {
	busy := s.busy
	if busy == nil {
		busy = newBusyLock()
	}
	*s = slot{busy: busy, lastActive: s.lastActive}
}

func (s *slot) state() string {
	switch {
	case s.actor == nil:
		return StateEmpty
	case !s.actor.Alive():
		return StateDead
	case s.provisioning || s.page == nil:
		return StateProvisioning
	default:
		return StateActive
	}
}

const (
	StateEmpty        = "empty"
	StateProvisioning = "provisioning"
	StateActive       = "active"
	StateDead         = "dead"
)

// SlotStatus is a point-in-time view of one slot.
type SlotStatus struct {
	Index      int       `json:"index"`
	State      string    `json:"state"`
	Busy       bool      `json:"busy"`
	LastActive time.Time `json:"last_active,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	Email      string    `json:"email,omitempty"`
}

// IsActive reports whether slot index holds a live, ready session.
func (p *Pool) IsActive(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.slots) {
		return false
	}
	return p.slots[index].active()
}

// HasActive reports whether any slot holds a live, ready session.
func (p *Pool) HasActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		if s.active() {
			return true
		}
	}
	return false
}

// Handles returns the actor and page of slot index, or nils when the slot
// is out of range or not active.
func (p *Pool) Handles(index int) (*Actor, Page) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.slots) {
		return nil, nil
	}
	s := p.slots[index]
	if !s.active() {
		return nil, nil
	}
	return s.actor, s.page
}

// ResetSlot clears the identity of slot index, preserving its busy lock.
func (p *Pool) ResetSlot(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.slots) {
		return
	}
	p.slots[index].reset()
	p.publishLocked()
}

// resetIfOwned resets slot index only if it still belongs to actor.
func (p *Pool) resetIfOwned(index int, actor *Actor) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slots[index]
	if s.actor != actor {
		return false
	}
	s.reset()
	p.publishLocked()
	return true
}

// takeIfOwned resets slot index if it still belongs to actor and returns
// the page and external resource it held.
func (p *Pool) takeIfOwned(index int, actor *Actor) (Page, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slots[index]
	if s.actor != actor {
		return nil, "", false
	}
	page, resourceID := s.page, s.resourceID
	s.reset()
	p.publishLocked()
	return page, resourceID, true
}

// Snapshot returns the status of every slot.
func (p *Pool) Snapshot() []SlotStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SlotStatus, len(p.slots))
	for i, s := range p.slots {
		out[i] = SlotStatus{
			Index:      i,
			State:      s.state(),
			Busy:       s.busy.Locked(),
			LastActive: s.lastActive,
			ResourceID: s.resourceID,
			Email:      s.email,
		}
	}
	return out
}

func (p *Pool) publishLocked() {
	counts := map[string]int{StateEmpty: 0, StateProvisioning: 0, StateActive: 0, StateDead: 0}
	busy := 0
	for _, s := range p.slots {
		counts[s.state()]++
		if s.active() && s.busy.Locked() {
			busy++
		}
	}
	for state, n := range counts {
		metricSlots.WithLabelValues(state).Set(float64(n))
	}
	metricSlotsBusy.Set(float64(busy))
}

package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adu4862/banana-api/protocol"
)

// EnsureAtLeastOne provisions a session into the first vacant slot when
// no slot is active. It blocks until provisioning finishes, times out or
// ctx ends; in the last case provisioning carries on without the caller.
func (p *Pool) EnsureAtLeastOne(ctx context.Context) error {
	if p.HasActive() {
		return nil
	}
	if err := p.initLock.Lock(ctx); err != nil {
		return err
	}

	// Another caller may have finished provisioning while we waited.
	if p.HasActive() {
		p.initLock.Unlock()
		return nil
	}

	idx := p.firstVacant()
	if idx < 0 {
		// Every slot is provisioning or dead-but-unreaped with none active.
		p.initLock.Unlock()
		p.logger.Warn("no vacant slot to provision", "pool_size", len(p.slots))
		return nil
	}

	p.logger.Info("provisioning session on demand", "slot", idx)
	return p.provisionAndUnlock(ctx, idx)
}

// provisionAndUnlock provisions slot index in the background and waits
// for it. The caller must hold initLock; it is released when provisioning
// ends, not when the caller stops waiting, so a cancelled request leaves
// the login running for whoever queues next.
func (p *Pool) provisionAndUnlock(ctx context.Context, index int) error {
	done := make(chan error, 1)
	go func() {
		defer p.initLock.Unlock()
		done <- p.provision(context.WithoutCancel(ctx), index)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.logger.Info("caller stopped waiting, provisioning continues", "slot", index)
		return ctx.Err()
	}
}

func (p *Pool) firstVacant() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.slots {
		if s.vacant() {
			return i
		}
	}
	return -1
}

// provision claims slot index for a fresh actor and runs the Provisioner
// on it. Callers hold initLock.
func (p *Pool) provision(ctx context.Context, index int) error {
	actor := NewActor()

	p.mu.Lock()
	s := p.slots[index]
	stalePage, staleResource := s.page, s.resourceID
	s.reset()
	s.actor = actor
	s.provisioning = true
	p.publishLocked()
	p.mu.Unlock()

	if stalePage != nil || staleResource != "" {
		p.releaseResources(ctx, index, stalePage, staleResource)
	}

	started := time.Now()
	err := actor.Do(ctx, p.opts.ProvisionTimeout, func(ctx context.Context) error {
		sess, err := p.provisioner.Provision(ctx, index)
		if err != nil {
			return err
		}
		if !p.install(index, actor, sess) {
			// Abandoned by the waiter; the slot may already belong to someone else.
			p.releaseResources(ctx, index, sess.Page, sess.ResourceID)
			metricTeardown.WithLabelValues(reasonAbandoned).Inc()
			return ErrActorStopped
		}
		return nil
	})
	if err == nil {
		metricProvision.WithLabelValues("ok").Inc()
		p.logger.Info("session ready", "slot", index, "duration", time.Since(started).Round(time.Millisecond))
		return nil
	}

	p.abandon(ctx, index, actor)

	if errors.Is(err, ErrSubmitTimeout) {
		metricProvision.WithLabelValues("timeout").Inc()
		p.logger.Error("provisioning timed out", "slot", index, "timeout", p.opts.ProvisionTimeout)
		return ErrProvisionTimeout
	}
	metricProvision.WithLabelValues("error").Inc()
	p.logger.Error("provisioning failed", "slot", index, "error", err)
	return &ProvisionError{Slot: index, Err: err}
}

// abandon resets a slot whose provisioning failed and stops its actor.
// install may have won the race against the reply timer, in which case
// the session it wrote is released here.
func (p *Pool) abandon(ctx context.Context, index int, actor *Actor) {
	if page, resourceID, ok := p.takeIfOwned(index, actor); ok && (page != nil || resourceID != "") {
		p.logger.Warn("releasing session installed after its wait ended", "slot", index, "resource_id", resourceID)
		p.releaseResources(ctx, index, page, resourceID)
		metricTeardown.WithLabelValues(reasonAbandoned).Inc()
	}
	actor.Stop()
}

// install writes a provisioned session into slot index if actor still owns it.
func (p *Pool) install(index int, actor *Actor, sess *Session) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slots[index]
	if s.actor != actor || !actor.Alive() || sess == nil || sess.Page == nil {
		return false
	}
	s.page = sess.Page
	s.resourceID = sess.ResourceID
	s.email = sess.Email
	s.provisioning = false
	s.lastActive = time.Time{}
	actor.Watch(sess.Done)
	p.publishLocked()
	return true
}

// ProvisionDetached provisions a session outside the pool, tears it down
// again and returns the account email it was provisioned with.
func (p *Pool) ProvisionDetached(ctx context.Context) (string, error) {
	actor := NewActor()
	defer actor.Stop()

	email, err := Call(ctx, actor, p.opts.ProvisionTimeout, func(ctx context.Context) (string, error) {
		sess, err := p.provisioner.Provision(ctx, DetachedIndex)
		if err != nil {
			return "", err
		}
		p.releaseResources(ctx, DetachedIndex, sess.Page, sess.ResourceID)
		return sess.Email, nil
	})
	switch {
	case err == nil:
		metricProvision.WithLabelValues("ok").Inc()
		return email, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case errors.Is(err, ErrSubmitTimeout):
		metricProvision.WithLabelValues("timeout").Inc()
		return "", ErrProvisionTimeout
	default:
		metricProvision.WithLabelValues("error").Inc()
		return "", &ProvisionError{Slot: DetachedIndex, Err: err}
	}
}

// Destroy tears down slot index. The teardown runs on the slot's own
// actor; the wait is bounded by the teardown timeout, after which the
// slot is reset anyway and any pending cleanup is left to finish alone.
func (p *Pool) Destroy(ctx context.Context, index int) {
	_ = p.destroy(ctx, index, reasonClose)
}

// destroy returns the error of a teardown that did not finish in time.
func (p *Pool) destroy(ctx context.Context, index int, reason string) error {
	if index < 0 || index >= len(p.slots) {
		return nil
	}
	p.mu.Lock()
	actor := p.slots[index].actor
	p.mu.Unlock()
	if actor == nil || !actor.Alive() {
		return nil
	}

	err := actor.Do(ctx, p.opts.TeardownTimeout, func(ctx context.Context) error {
		p.teardown(ctx, index, actor, reason)
		return nil
	})
	if err != nil {
		p.logger.Warn("teardown did not finish, slot reset anyway", "slot", index, "reason", reason, "error", err)
		if p.resetIfOwned(index, actor) {
			metricTeardown.WithLabelValues(reason).Inc()
		}
		actor.Stop()
		return fmt.Errorf("teardown slot %d: %w", index, err)
	}
	return nil
}

// teardown releases the session's resources, resets the slot and stops
// the actor. It must run on actor.
func (p *Pool) teardown(ctx context.Context, index int, actor *Actor, reason string) {
	p.mu.Lock()
	s := p.slots[index]
	if s.actor != actor {
		p.mu.Unlock()
		return
	}
	page, resourceID := s.page, s.resourceID
	p.mu.Unlock()

	p.logger.Info("tearing down session", "slot", index, "reason", reason, "resource_id", resourceID)
	p.releaseResources(ctx, index, page, resourceID)

	if p.resetIfOwned(index, actor) {
		metricTeardown.WithLabelValues(reason).Inc()
	}
	actor.Stop()
}

// releaseResources closes the browser side of a session, best effort.
// External windows are closed and deleted so the farm quota is freed.
func (p *Pool) releaseResources(ctx context.Context, index int, page Page, resourceID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.TeardownTimeout)
	defer cancel()

	if resourceID != "" && p.farm != nil {
		if err := p.farm.CloseWindow(ctx, resourceID); err != nil {
			p.logger.Warn("close browser window", "slot", index, "resource_id", resourceID, "error", err)
		}
		if err := p.farm.DeleteWindow(ctx, resourceID); err != nil {
			p.logger.Warn("delete browser window", "slot", index, "resource_id", resourceID, "error", err)
		}
		p.farm.Forget(index, resourceID)
	}
	if page != nil {
		if err := page.Close(ctx); err != nil {
			p.logger.Debug("close page", "slot", index, "error", err)
		}
	}
}

// CleanupIdle destroys active, non-busy slots whose last use is older than
// maxIdle. Slots that were never used are left alone. It returns the
// number of slots destroyed.
func (p *Pool) CleanupIdle(ctx context.Context, maxIdle time.Duration) int {
	now := time.Now()
	var idle []int
	p.mu.Lock()
	for i, s := range p.slots {
		if s.active() && !s.busy.Locked() && !s.lastActive.IsZero() && now.Sub(s.lastActive) > maxIdle {
			idle = append(idle, i)
		}
	}
	p.mu.Unlock()

	closed := 0
	for _, idx := range idle {
		if p.destroyIdle(ctx, idx, maxIdle) {
			closed++
		}
	}
	if closed > 0 {
		p.logger.Info("closed idle sessions", "count", closed)
	}
	return closed
}

// destroyIdle holds the busy lock across the teardown so a request cannot
// grab the slot between the idle check and the destroy.
func (p *Pool) destroyIdle(ctx context.Context, index int, maxIdle time.Duration) bool {
	p.mu.Lock()
	s := p.slots[index]
	busy := s.busy
	p.mu.Unlock()

	if !busy.TryLock() {
		return false
	}
	defer busy.Unlock()

	p.mu.Lock()
	stillIdle := s.active() && time.Since(s.lastActive) > maxIdle
	p.mu.Unlock()
	if !stillIdle {
		return false
	}

	p.destroy(ctx, index, reasonIdle)
	return true
}

// ReapDead resets slots whose actor exited without a teardown (browser
// crash, dropped CDP connection) and releases what is left of them.
func (p *Pool) ReapDead(ctx context.Context) int {
	type dead struct {
		index      int
		page       Page
		resourceID string
	}
	var reaped []dead
	p.mu.Lock()
	for i, s := range p.slots {
		if s.actor != nil && !s.actor.Alive() {
			reaped = append(reaped, dead{i, s.page, s.resourceID})
			s.reset()
		}
	}
	if len(reaped) > 0 {
		p.publishLocked()
	}
	p.mu.Unlock()

	for _, d := range reaped {
		p.logger.Warn("reaping dead session", "slot", d.index, "resource_id", d.resourceID)
		p.releaseResources(ctx, d.index, d.page, d.resourceID)
		metricTeardown.WithLabelValues(reasonDead).Inc()
	}
	return len(reaped)
}

// TaskFunc performs one task against a ready page on the session's actor.
type TaskFunc func(ctx context.Context, page Page) protocol.Result

// Execute runs fn on slot index's actor, waiting at most timeout. When fn
// reports a low balance the session is torn down on the actor before the
// result is returned.
func (p *Pool) Execute(ctx context.Context, index int, timeout time.Duration, fn TaskFunc) (protocol.Result, error) {
	actor, page := p.Handles(index)
	if actor == nil || page == nil {
		return protocol.Result{}, ErrNoSession
	}
	return Call(ctx, actor, timeout, func(ctx context.Context) (protocol.Result, error) {
		res := fn(ctx, page)
		if res.LowBalance {
			p.teardown(ctx, index, actor, reasonLowBalance)
		}
		return res, nil
	})
}

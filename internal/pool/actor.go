package pool

import (
	"context"
	"fmt"
	"time"
)

// Actor is a single goroutine that owns one browser session. Every
// operation against the session is a closure run sequentially on the
// actor; callers block on the reply with a timeout.
type Actor struct {
	queue   chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewActor starts an actor goroutine.
func NewActor() *Actor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor{
		queue:   make(chan func()),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Actor) loop() {
	defer close(a.stopped)
	for {
		select {
		case <-a.ctx.Done():
			return
		case job := <-a.queue:
			job()
		}
	}
}

// Alive reports whether the actor still accepts work.
func (a *Actor) Alive() bool {
	return a != nil && a.ctx.Err() == nil
}

// Stop shuts the actor down. A job already running finishes; queued
// submitters get ErrActorStopped.
func (a *Actor) Stop() {
	a.cancel()
}

// Stopped is closed once the actor goroutine has exited.
func (a *Actor) Stopped() <-chan struct{} {
	return a.stopped
}

// Watch stops the actor when done is closed.
func (a *Actor) Watch(done <-chan struct{}) {
	if done == nil {
		return
	}
	go func() {
		select {
		case <-done:
			a.Stop()
		case <-a.ctx.Done():
		}
	}()
}

// Do runs fn on the actor and waits up to timeout for it to finish.
// fn receives a context that expires at the same deadline and is
// cancelled when the actor stops; on timeout Do returns ErrSubmitTimeout
// while fn may still be winding down.
func (a *Actor) Do(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, a, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is Do with a typed result.
func Call[T any](ctx context.Context, a *Actor, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !a.Alive() {
		return zero, ErrActorStopped
	}

	type reply struct {
		val T
		err error
	}
	replies := make(chan reply, 1)
	deadline := time.Now().Add(timeout)

	job := func() {
		jobCtx, cancel := context.WithDeadline(a.ctx, deadline)
		defer cancel()
		val, err := runGuarded(jobCtx, fn)
		replies <- reply{val, err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case a.queue <- job:
	case <-a.ctx.Done():
		return zero, ErrActorStopped
	case <-timer.C:
		return zero, ErrSubmitTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-replies:
		return r.val, r.err
	case <-timer.C:
		return zero, ErrSubmitTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func runGuarded[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session actor panic: %v", r)
		}
	}()
	return fn(ctx)
}

package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by Acquire when no slot could be locked in time.
	ErrBusy = errors.New("no free session")
	// ErrNoSession is returned when an addressed slot holds no active session.
	ErrNoSession = errors.New("session not active")
	// ErrProvisionTimeout is returned when provisioning did not signal completion in time.
	ErrProvisionTimeout = errors.New("provisioning timed out")
	// ErrActorStopped is returned when work is submitted to a stopped actor.
	ErrActorStopped = errors.New("session actor stopped")
	// ErrSubmitTimeout is returned when an actor did not finish work in time.
	ErrSubmitTimeout = errors.New("session actor timed out")
)

// ProvisionError wraps a failure reported by the Provisioner.
type ProvisionError struct {
	Slot int
	Err  error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision slot %d: %v", e.Slot, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

package session

import "errors"

var (
	// ErrDisconnected means the pool had no live session to run on.
	ErrDisconnected = errors.New("browser session disconnected, please retry")
	// ErrBusy means every session stayed busy for the whole acquire timeout.
	ErrBusy = errors.New("system busy, please retry later")
	// ErrRetriesExhausted means each attempt hit a low-balance session.
	ErrRetriesExhausted = errors.New("retries exhausted replacing low-balance sessions")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrTaskNotFound     = errors.New("task not found")
)

// TaskError is a failure reported by the task itself. Data carries what
// the executor had collected when it failed.
type TaskError struct {
	Message string
	Data    map[string]any
}

func (e *TaskError) Error() string {
	return e.Message
}

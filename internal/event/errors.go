// internal/event/errors.go
package event

import "errors"

var (
	// ErrInvalidInput is returned by Put when given the stop sentinel (a nil datum).
	ErrInvalidInput = errors.New("event: invalid input")
	// ErrQueueFull is returned when a queue stays full for the whole wait.
	ErrQueueFull = errors.New("event: queue is full")
	// ErrAlreadyStarted is returned by Start on a second call, and by Append after Start.
	ErrAlreadyStarted = errors.New("event: already started")
	// ErrJoinTimeout is returned by Join when the worker is still alive at the deadline.
	ErrJoinTimeout = errors.New("event: join timed out")
	// ErrCrashed wraps the panic or action error that killed a worker.
	ErrCrashed = errors.New("event: listener crashed")
)

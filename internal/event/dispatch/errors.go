package dispatch

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dispatch package.
var (
	// ErrNotRunning is returned by Stop when the scheduler was already stopped.
	ErrNotRunning = errors.New("scheduler is not running")

	// ErrStopped is returned when work is submitted to a stopped scheduler.
	ErrStopped = errors.New("scheduler is stopped")

	// ErrHandlerPanic matches every *PanicError via errors.Is.
	ErrHandlerPanic = errors.New("handler panicked")
)

// PanicError reports a recovered panic from a listener or scheduled task.
type PanicError struct {
	// Name is the event name being dispatched. Empty for scheduled tasks.
	Name string

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace captured at recovery.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("panic: %v", e.Value)
	}
	return fmt.Sprintf("panic in handler for %q: %v", e.Name, e.Value)
}

// Is reports whether target is ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

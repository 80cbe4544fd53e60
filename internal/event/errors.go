package event

import (
	"errors"

	"github.com/dshills/eventbus/internal/event/dispatch"
)

// ErrInvalidArgument matches every argument validation error via errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

// Sentinel errors for the event bus.
var (
	// ErrInvalidName is returned when an event name is empty or blank.
	ErrInvalidName = argumentError("event name cannot be empty")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = argumentError("handler cannot be nil")

	// ErrInvalidHandler is returned when a handler's dynamic type cannot be
	// compared, which would make it impossible to remove. Wrap functions
	// with Func or Action.
	ErrInvalidHandler = argumentError("handler must have a comparable type")

	// ErrInvalidContext is returned when a binding context cannot be compared.
	ErrInvalidContext = argumentError("context must have a comparable type")

	// ErrInvalidTarget is returned when a proxy or cross-bus binding is given
	// a nil target.
	ErrInvalidTarget = argumentError("target is not an event bus")

	// ErrNilVisitor is returned when ForEachEvent is given a nil visitor.
	ErrNilVisitor = argumentError("visitor cannot be nil")

	// ErrProxyDestroyed is returned by every EventProxy method after Destroy.
	ErrProxyDestroyed = errors.New("event proxy has been destroyed")

	// ErrHandlerPanic matches recovered listener panics.
	ErrHandlerPanic = dispatch.ErrHandlerPanic
)

// PanicError reports a recovered listener panic.
type PanicError = dispatch.PanicError

// argError is an invalid-argument error.
type argError struct {
	msg string
}

func argumentError(msg string) error {
	return &argError{msg: msg}
}

// Error implements the error interface.
func (e *argError) Error() string {
	return e.msg
}

// Is allows errors.Is to match every argument error with ErrInvalidArgument.
func (e *argError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// HandlerError wraps an error from a listener with the event it was handling.
type HandlerError struct {
	// Bus is the name of the bus the event was triggered on. May be empty.
	Bus string

	// Name is the event name the listener was invoked for.
	Name string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	if e.Bus == "" {
		return "handler error for event " + e.Name + ": " + e.Err.Error()
	}
	return "handler error on bus " + e.Bus + " for event " + e.Name + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

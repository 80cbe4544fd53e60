package dispatch

import (
	"runtime/debug"
	"time"
)

// Result represents the outcome of a single handler execution.
type Result struct {
	// Value is the value returned by the handler.
	Value any

	// Error is the error returned by the handler, if any.
	Error error

	// Panicked is true if the handler panicked.
	Panicked bool

	// PanicValue is the value passed to panic(), if Panicked is true.
	PanicValue any

	// PanicStack is the stack trace at the point of panic.
	PanicStack []byte

	// Duration is how long the handler took to execute.
	Duration time.Duration

	name string
}

// IsSuccess returns true if the handler returned without error or panic.
func (r Result) IsSuccess() bool {
	return r.Error == nil && !r.Panicked
}

// Err returns the failure as an error: the handler's error, a *PanicError
// for a recovered panic, or nil on success.
func (r Result) Err() error {
	if r.Panicked {
		return &PanicError{Name: r.name, Value: r.PanicValue, Stack: r.PanicStack}
	}
	return r.Error
}

// Execute runs a handler and recovers from panics, capturing timing
// information.
func Execute(h Handler, e *Event) (result Result) {
	start := time.Now()
	result.name = e.Name

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = debug.Stack()
		}
	}()

	result.Value, result.Error = h.Handle(e)
	return result
}

// protect runs fn and reports a recovered panic.
func protect(fn func()) (panicked bool, value any, stack []byte) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			value = r
			stack = debug.Stack()
		}
	}()
	fn()
	return false, nil, nil
}

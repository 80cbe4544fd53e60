package event

import (
	"reflect"

	"github.com/dshills/eventbus/internal/event/dispatch"
)

// Handler is the interface for event listeners.
//
// Listener identity for removal is the Handler value itself, so handlers
// must have a comparable dynamic type. Pointer types are the natural choice;
// Func and Action wrap plain functions.
type Handler = dispatch.Handler

// Event is the call record passed to a Handler.
type Event = dispatch.Event

// Pending is the outcome of TriggerAsync. Listeners may also return one to
// hand back a result that settles later.
type Pending = dispatch.Pending

// Go runs fn on a new goroutine and returns a Pending settled with its
// outcome. A panic in fn rejects it with a *PanicError. Listeners use it to
// return results that settle later.
func Go(fn func() (any, error)) *Pending {
	return dispatch.Go(fn)
}

// funcHandler adapts a function to the Handler interface.
type funcHandler struct {
	fn func(e *Event) (any, error)
}

// Handle implements the Handler interface.
func (h *funcHandler) Handle(e *Event) (any, error) {
	return h.fn(e)
}

// Func returns a Handler that calls fn. Every call returns a distinct
// handler, so keep the result to remove the listener later.
func Func(fn func(e *Event) (any, error)) Handler {
	if fn == nil {
		return nil
	}
	return &funcHandler{fn: fn}
}

// Action returns a Handler for a listener without a result.
func Action(fn func(e *Event)) Handler {
	if fn == nil {
		return nil
	}
	return &funcHandler{fn: func(e *Event) (any, error) {
		fn(e)
		return nil, nil
	}}
}

// validateHandler checks a handler before registration.
func validateHandler(h Handler) error {
	if h == nil {
		return ErrNilHandler
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			return ErrNilHandler
		}
	}
	if !v.Type().Comparable() {
		return ErrInvalidHandler
	}
	return nil
}

// validateFilter checks optional handler and context filters. Nil values
// are wildcards.
func validateFilter(h Handler, context any) error {
	if h != nil && !reflect.TypeOf(h).Comparable() {
		return ErrInvalidHandler
	}
	return validateContext(context)
}

// validateContext checks that a binding context can be compared.
func validateContext(context any) error {
	if context != nil && !reflect.TypeOf(context).Comparable() {
		return ErrInvalidContext
	}
	return nil
}

package event

import "sync/atomic"

// onceHandler wraps a listener registered with Once or ListenToOnce. It
// removes its own binding before the first invocation and ignores later
// invocations from triggers that snapshotted the binding earlier.
type onceHandler struct {
	handler Handler
	fired   atomic.Bool
	remove  func()
}

// Handle implements the Handler interface.
func (o *onceHandler) Handle(e *Event) (any, error) {
	if !o.fired.CompareAndSwap(false, true) {
		return nil, nil
	}
	o.remove()
	return o.handler.Handle(e)
}

package lua

import (
	"context"
	"sync"
)

// DefaultQueueSize is the call buffer of an Executor.
const DefaultQueueSize = 64

// call is a Lua operation waiting to run on the executor goroutine.
type call struct {
	fn   func(*State) error
	done chan error
}

// Executor serializes all operations on a State through a single goroutine.
//
// Do may be called from any goroutine except the executor's own; Lua code
// and the Go functions it calls already run there and use the State
// directly. Those Go functions block with Wait, never with Do.
type Executor struct {
	state *State
	queue chan *call

	quit      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithQueueSize sets how many calls can be buffered.
func WithQueueSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.queue = make(chan *call, n)
		}
	}
}

// NewExecutor starts an executor goroutine owning state. The state is closed
// when the executor exits.
func NewExecutor(state *State, opts ...ExecutorOption) *Executor {
	e := &Executor{
		state:  state,
		queue:  make(chan *call, DefaultQueueSize),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.exited)
	defer e.state.Close()

	for {
		select {
		case <-e.quit:
			e.drain()
			return
		case c := <-e.queue:
			e.execute(c)
		}
	}
}

// execute runs a single call with panic recovery.
func (e *Executor) execute(c *call) {
	c.done <- e.state.protect(func() error {
		return c.fn(e.state)
	})
}

// drain fails every queued call.
func (e *Executor) drain() {
	for {
		select {
		case c := <-e.queue:
			c.done <- ErrExecutorClosed
		default:
			return
		}
	}
}

// Do runs fn on the executor goroutine and waits for it to finish.
func (e *Executor) Do(ctx context.Context, fn func(*State) error) error {
	select {
	case <-e.quit:
		return ErrExecutorClosed
	default:
	}

	c := &call{fn: fn, done: make(chan error, 1)}

	select {
	case e.queue <- c:
	case <-e.quit:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-c.done:
		return err
	case <-e.exited:
		// The call may have completed just before exit.
		select {
		case err := <-c.done:
			return err
		default:
			return ErrExecutorClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until done is closed while continuing to run queued calls.
// It must only be called on the executor goroutine, from a Go function
// invoked by Lua.
func (e *Executor) Wait(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case c := <-e.queue:
			e.execute(c)
		case <-e.quit:
			// Closing: fail calls instead of running them so the awaited
			// work can still finish.
			for {
				select {
				case <-done:
					return
				case c := <-e.queue:
					c.done <- ErrExecutorClosed
				}
			}
		}
	}
}

// Close stops the executor after the running call finishes. Queued and later
// calls fail with ErrExecutorClosed. Close does not wait; use Done for that.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		close(e.quit)
	})
}

// Done is closed once the executor goroutine has exited and the state is
// closed.
func (e *Executor) Done() <-chan struct{} {
	return e.exited
}

// IsClosed returns true if Close has been called.
func (e *Executor) IsClosed() bool {
	select {
	case <-e.quit:
		return true
	default:
		return false
	}
}

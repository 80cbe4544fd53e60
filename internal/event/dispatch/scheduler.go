package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// PanicHandler is called when a scheduled task panics.
// It receives the panic value and the stack trace.
type PanicHandler func(panicValue any, stack []byte)

// defaultPanicHandler is a no-op panic handler.
func defaultPanicHandler(panicValue any, stack []byte) {}

// Scheduler runs tasks one at a time, in submission order, on a single
// worker goroutine. The worker is the bus's event loop: work scheduled on it
// runs after the submitting call returns and never concurrently with other
// scheduled work.
//
// The queue is unbounded. The worker starts with the first submitted task.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	started bool
	stopped bool
	done    chan struct{}

	panicHandler PanicHandler

	// Stats
	enqueued  atomic.Uint64
	processed atomic.Uint64
	panicked  atomic.Uint64
	depth     atomic.Int64
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithPanicHandler sets the handler for panics in scheduled tasks.
func WithPanicHandler(h PanicHandler) SchedulerOption {
	return func(s *Scheduler) {
		if h != nil {
			s.panicHandler = h
		}
	}
}

// WithQueueHint preallocates room for n queued tasks.
func WithQueueHint(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.queue = make([]func(), 0, n)
		}
	}
}

// NewScheduler creates a new scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		panicHandler: defaultPanicHandler,
		done:         make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Go queues fn to run on the worker goroutine and returns immediately.
func (s *Scheduler) Go(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if !s.started {
		s.started = true
		go s.worker()
	}

	s.queue = append(s.queue, fn)
	s.enqueued.Add(1)
	s.depth.Add(1)
	s.cond.Signal()
	return nil
}

// Do runs fn on the worker goroutine and waits for it to return.
// A panic in fn is returned as a *PanicError.
//
// Do must not be called from a task already running on the scheduler: the
// worker would wait on itself.
func (s *Scheduler) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	err := s.Go(func() {
		var taskErr error
		panicked, value, stack := protect(func() {
			taskErr = fn()
		})
		if panicked {
			taskErr = &PanicError{Value: value, Stack: stack}
		}
		result <- taskErr
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every task queued before the call has run.
func (s *Scheduler) Flush(ctx context.Context) error {
	return s.Do(ctx, func() error { return nil })
}

// Stop rejects further work, runs the tasks already queued, and waits for
// the worker to exit or ctx to be done. Stopping twice returns ErrNotRunning.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.stopped = true
	started := s.started
	s.cond.Broadcast()
	s.mu.Unlock()

	if !started {
		close(s.done)
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker processes tasks until the scheduler is stopped and drained.
func (s *Scheduler) worker() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			close(s.done)
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.run(fn)
	}
}

// run executes a single task with panic recovery.
func (s *Scheduler) run(fn func()) {
	defer func() {
		s.processed.Add(1)
		s.depth.Add(-1)
	}()

	panicked, value, stack := protect(fn)
	if !panicked {
		return
	}
	s.panicked.Add(1)

	// Protect the panic handler call - don't let it crash the worker.
	protect(func() {
		s.panicHandler(value, stack)
	})
}

// IsRunning returns true if the worker has started and not been stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// QueueDepth returns the number of tasks queued or running.
func (s *Scheduler) QueueDepth() int {
	return int(s.depth.Load())
}

// Stats returns scheduler statistics.
// Note: Stats are read without a mutex, so values may be slightly inconsistent
// if stats are being updated concurrently.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Enqueued:   s.enqueued.Load(),
		Processed:  s.processed.Load(),
		Panicked:   s.panicked.Load(),
		QueueDepth: s.QueueDepth(),
	}
}

// SchedulerStats contains statistics for a scheduler.
type SchedulerStats struct {
	// Enqueued is the total number of tasks submitted.
	Enqueued uint64

	// Processed is the number of tasks that have run.
	Processed uint64

	// Panicked is the number of tasks that panicked.
	Panicked uint64

	// QueueDepth is the number of tasks waiting or running.
	QueueDepth int
}

// Package dispatch provides the trigger engine for the event bus.
//
// The dispatch package invokes the bindings matched by one event name and
// turns their return values into the outcome of a trigger. It knows nothing
// about registration; callers hand it a Batch of bindings snapshotted from a
// registry.
//
// # Trigger Modes
//
//   - Fire: invokes every binding, ignoring return values. The first error
//     stops the trigger. Panics unwind to the caller.
//
//   - Collect: invokes every binding and gathers non-nil return values.
//     Results.Value collapses them to nil, a single value, or a []any.
//
//   - CollectSafe + Settle: the asynchronous variant. Panics are recovered
//     into *PanicError, and the collected values become one *Pending that
//     resolves when every pending value has resolved.
//
// Bindings registered under the wildcard name receive the event name as the
// first argument.
//
// # Pending Values
//
// A Pending settles exactly once. All waits for a set of values with
// fail-fast semantics, built on errgroup:
//
//	p := dispatch.All(ctx, dispatch.Resolved("foo"), "bar")
//	v, err := p.Await(ctx) // []any{"foo", "bar"}
//
// # Scheduler
//
// Scheduler runs deferred work in FIFO order on one worker goroutine:
//
//	s := dispatch.NewScheduler(
//	    dispatch.WithPanicHandler(func(v any, stack []byte) {
//	        log.Printf("deferred task panicked: %v\n%s", v, stack)
//	    }),
//	)
//	s.Go(func() { ... })
//	s.Flush(ctx)
//	s.Stop(ctx)
package dispatch

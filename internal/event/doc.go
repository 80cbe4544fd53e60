// Package event provides an in-process publish/subscribe event bus.
//
// A Bus owns a registry of listeners keyed by event name and triggers events
// against it. Listeners for one name run in the order they were registered.
// A Bus can also register its own listeners on other buses and later revoke
// all of them at once, and an EventProxy gives a consumer a revocable view
// over a bus.
//
// # Architecture
//
//	                    ┌──────────────────────────────────────────┐
//	                    │                   Bus                     │
//	                    │  - On / Once / Off                        │
//	                    │  - Trigger / Defer / Sync / Async         │
//	                    │  - ListenTo / StopListening               │
//	                    └──────────────────────────────────────────┘
//	                                      │
//	          ┌───────────────────────────┼───────────────────────────┐
//	          ▼                           ▼                           ▼
//	┌─────────────────┐         ┌─────────────────┐         ┌─────────────────┐
//	│    registry     │         │      topic      │         │    dispatch     │
//	│  - name order   │         │  - "a b" names  │         │  - Fire/Collect │
//	│  - bindings     │         │  - name maps    │         │  - Pending      │
//	└─────────────────┘         └─────────────────┘         │  - Scheduler    │
//	                                                        └─────────────────┘
//
// # Event Names
//
// Wherever a name is accepted, several names separated by whitespace are
// accepted too, and the Map variants take a name-to-handler map:
//
//	bus.On("buffer:save buffer:close", h, nil)
//	bus.OnMap(map[string]event.Handler{"a": h1, "b": h2}, nil)
//
// Listeners registered under "all" see every event, with the event name
// prepended to their arguments.
//
// # Handlers
//
// Listener identity is the Handler value, so handlers must be comparable.
// Func and Action wrap plain functions in a fresh pointer:
//
//	h := event.Func(func(e *event.Event) (any, error) {
//	    return e.Arg(0), nil
//	})
//	bus.On("query", h, nil)
//	defer bus.Off("query", h, nil)
//
// # Trigger Modes
//
//   - Trigger: invokes listeners now and ignores results
//   - TriggerDefer: runs Trigger later on the bus scheduler
//   - TriggerSync: collects results; nil, one value, or []any
//   - TriggerAsync: collects results into a Pending that waits for pending
//     results returned by listeners
//
// Errors returned by listeners stop the trigger and surface as *HandlerError.
// Errors from deferred triggers go to the bus error handler, which logs them
// by default.
//
// # Proxies
//
// An EventProxy registers listeners on its target through a private internal
// bus. Destroy revokes exactly those listeners:
//
//	proxy := bus.CreateEventProxy()
//	proxy.On("save", h, nil)
//	proxy.Destroy() // bus no longer has h; other listeners stay
//
// # Thread Safety
//
// Bus and EventProxy are safe for concurrent use. Listeners may register and
// remove listeners, including themselves, while being invoked; each trigger
// works on a snapshot. Listeners must manage their own thread safety.
//
// # Subpackages
//
//   - registry: ordered listener storage
//   - topic: event name resolution
//   - dispatch: trigger engine, pending results and the scheduler
package event

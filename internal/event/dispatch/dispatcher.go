package dispatch

// Handler is the interface for event listeners.
// This mirrors the event.Handler interface to avoid circular imports.
//
// Handle may return a value for collecting triggers. Returning a *Pending
// hands an unsettled result back to TriggerAsync callers.
type Handler interface {
	Handle(e *Event) (any, error)
}

// Event is the call record passed to a Handler for one invocation.
type Event struct {
	// Name is the event name that was triggered.
	Name string

	// Args are the trailing trigger arguments. Listeners registered under
	// the wildcard name receive Name as the first element.
	// Handlers must not modify Args; the slice is shared between listeners.
	Args []any

	// Context is the receiver the listener was registered with. May be nil.
	Context any

	// Bus is the bus the event was triggered on.
	Bus any
}

// Arg returns the i-th argument or nil when out of range.
func (e *Event) Arg(i int) any {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// Bound is implemented by registry bindings: it yields the handler to invoke
// and the context to invoke it with.
type Bound interface {
	Bound() (Handler, any)
}

// Batch is the set of bindings matched by one resolved event name.
type Batch[B Bound] struct {
	// Name is the resolved event name.
	Name string

	// Named are the bindings registered under Name, in registration order.
	Named []B

	// All are the wildcard bindings. They receive Name prepended to Args.
	All []B

	// Args are the trailing trigger arguments.
	Args []any

	// Source is recorded as Event.Bus.
	Source any
}

// Len returns the number of bindings in the batch.
func (b Batch[B]) Len() int {
	return len(b.Named) + len(b.All)
}

// Results are the non-nil values returned by listeners, in invocation order.
type Results []any

// Value collapses the results: nil when empty, the single value when there is
// exactly one, and a []any otherwise.
func (r Results) Value() any {
	switch len(r) {
	case 0:
		return nil
	case 1:
		return r[0]
	default:
		out := make([]any, len(r))
		copy(out, r)
		return out
	}
}

// each calls fn for every binding in the batch: named bindings first, then
// wildcard bindings. Iteration stops when fn returns false.
func each[B Bound](b Batch[B], fn func(h Handler, e *Event) bool) {
	for _, binding := range b.Named {
		h, ctx := binding.Bound()
		if !fn(h, &Event{Name: b.Name, Args: b.Args, Context: ctx, Bus: b.Source}) {
			return
		}
	}
	if len(b.All) == 0 {
		return
	}
	args := withName(b.Name, b.Args)
	for _, binding := range b.All {
		h, ctx := binding.Bound()
		if !fn(h, &Event{Name: b.Name, Args: args, Context: ctx, Bus: b.Source}) {
			return
		}
	}
}

// withName prepends the event name to args. Small arities are built directly.
func withName(name string, args []any) []any {
	switch len(args) {
	case 0:
		return []any{name}
	case 1:
		return []any{name, args[0]}
	case 2:
		return []any{name, args[0], args[1]}
	case 3:
		return []any{name, args[0], args[1], args[2]}
	default:
		return withNameGeneric(name, args)
	}
}

func withNameGeneric(name string, args []any) []any {
	out := make([]any, 0, len(args)+1)
	out = append(out, name)
	return append(out, args...)
}

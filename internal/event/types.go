package event

// Eventbus is the capability contract shared by Bus and EventProxy: the
// registration and trigger surface. Cross-bus bindings and proxies accept
// any Eventbus and bind to the bus behind it.
type Eventbus interface {
	// Registration
	On(name string, handler Handler, context any) error
	OnMap(handlers map[string]Handler, context any) error
	Once(name string, handler Handler, context any) error
	OnceMap(handlers map[string]Handler, context any) error
	Off(name string, handler Handler, context any) error
	OffMap(handlers map[string]Handler, context any) error

	// Triggering
	Trigger(name string, args ...any) error
	TriggerDefer(name string, args ...any) error
	TriggerSync(name string, args ...any) (any, error)
	TriggerAsync(name string, args ...any) *Pending

	// Introspection
	ForEachEvent(visit func(name string, handler Handler, context any)) error

	// eventbus returns the bus that owns the registry.
	eventbus() (*Bus, error)
}

var (
	_ Eventbus = (*Bus)(nil)
	_ Eventbus = (*EventProxy)(nil)
)

// TriggerMode identifies the trigger variant.
type TriggerMode int

const (
	// ModeTrigger fires listeners and ignores their results.
	ModeTrigger TriggerMode = iota

	// ModeDefer fires listeners on the bus scheduler.
	ModeDefer

	// ModeSync collects listener results synchronously.
	ModeSync

	// ModeAsync collects listener results into a Pending.
	ModeAsync
)

// String returns a human-readable mode name.
func (m TriggerMode) String() string {
	switch m {
	case ModeTrigger:
		return "trigger"
	case ModeDefer:
		return "defer"
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Stats contains event bus statistics.
type Stats struct {
	// Triggers is the number of trigger calls per mode.
	Triggers map[TriggerMode]uint64

	// ListenersMatched is the total number of bindings matched by triggers.
	ListenersMatched uint64

	// HandlerErrors is the number of triggers stopped by a listener error.
	HandlerErrors uint64

	// HandlerPanics is the number of recovered listener panics.
	HandlerPanics uint64

	// Listeners is the current number of bindings on the bus.
	Listeners int

	// DeferredDepth is the number of deferred triggers not yet run.
	DeferredDepth int
}

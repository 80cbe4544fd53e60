package event

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/eventbus/internal/event/dispatch"
	"github.com/dshills/eventbus/internal/event/registry"
	"github.com/dshills/eventbus/internal/event/topic"
)

// binding is a registry entry on a bus.
type binding = registry.Binding[Handler]

// Bus is an event-emitting unit: it owns a registry of listeners and
// triggers events against it. A Bus can also bind its own listeners to other
// buses with ListenTo and revoke them with StopListening.
//
// Bus is safe for concurrent use. Listeners run in the goroutine that
// triggers, except for TriggerDefer which runs them on the bus scheduler.
type Bus struct {
	id string

	// mu protects name and listening.
	mu        sync.RWMutex
	name      string
	listening []*Bus

	registry *registry.Registry[Handler]

	scheduler     *dispatch.Scheduler
	ownsScheduler bool

	logger       zerolog.Logger
	errorHandler func(error)
	metrics      *metrics

	// Stats
	triggers         [ModeAsync + 1]atomic.Uint64
	listenersMatched atomic.Uint64
	handlerErrors    atomic.Uint64
	handlerPanics    atomic.Uint64
	deferred         atomic.Int64
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &Bus{
		id:           uuid.NewString(),
		name:         config.name,
		registry:     registry.New[Handler](),
		scheduler:    config.scheduler,
		errorHandler: config.errorHandler,
	}
	b.logger = config.logger.With().Str("bus_id", b.id).Logger()
	if b.errorHandler == nil {
		b.errorHandler = b.logError
	}
	if b.scheduler == nil {
		b.scheduler = dispatch.NewScheduler(
			dispatch.WithQueueHint(config.queueHint),
			dispatch.WithPanicHandler(b.schedulerPanic),
		)
		b.ownsScheduler = true
	}
	b.metrics = newMetrics(config.meter, b.logger)

	return b
}

// ID returns the unique bus identifier used in diagnostics.
func (b *Bus) ID() string {
	return b.id
}

// EventbusName returns the bus name. Empty when unset.
func (b *Bus) EventbusName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// SetEventbusName sets the bus name and returns the bus.
func (b *Bus) SetEventbusName(name string) *Bus {
	b.mu.Lock()
	b.name = name
	b.mu.Unlock()
	return b
}

// Scheduler returns the scheduler that runs deferred triggers.
func (b *Bus) Scheduler() *dispatch.Scheduler {
	return b.scheduler
}

// Logger returns the bus logger.
func (b *Bus) Logger() zerolog.Logger {
	return b.logger
}

// On registers handler for every name in name. Names are separated by
// whitespace; "all" receives every event. Registering the same handler and
// context twice yields two invocations per trigger.
func (b *Bus) On(name string, handler Handler, context any) error {
	names, err := resolveBinding(name, handler, context)
	if err != nil {
		return err
	}
	b.bind(names, handler, context, nil, false)
	return nil
}

// OnMap registers each handler under its key. Keys may hold several names.
// The context applies to every entry.
func (b *Bus) OnMap(handlers map[string]Handler, context any) error {
	entries, err := resolveMap(handlers, context)
	if err != nil {
		return err
	}
	for _, e := range entries {
		b.bind([]string{e.Name}, e.Value, context, nil, false)
	}
	return nil
}

// Once registers handler to run at most once per name. The binding is
// removed before the handler is invoked.
func (b *Bus) Once(name string, handler Handler, context any) error {
	names, err := resolveBinding(name, handler, context)
	if err != nil {
		return err
	}
	b.bind(names, handler, context, nil, true)
	return nil
}

// OnceMap is the map form of Once.
func (b *Bus) OnceMap(handlers map[string]Handler, context any) error {
	entries, err := resolveMap(handlers, context)
	if err != nil {
		return err
	}
	for _, e := range entries {
		b.bind([]string{e.Name}, e.Value, context, nil, true)
	}
	return nil
}

// Off removes matching bindings. An empty name, nil handler or nil context
// matches anything; Off("", nil, nil) removes every listener. A handler also
// matches once-bindings created for it.
func (b *Bus) Off(name string, handler Handler, context any) error {
	if err := validateFilter(handler, context); err != nil {
		return err
	}
	if !topic.IsValid(name) {
		b.registry.Remove("", handler, context)
		return nil
	}
	for _, n := range topic.Resolve(name) {
		b.registry.Remove(n, handler, context)
	}
	return nil
}

// OffMap removes each handler from the names of its key.
func (b *Bus) OffMap(handlers map[string]Handler, context any) error {
	for _, h := range handlers {
		if err := validateFilter(h, context); err != nil {
			return err
		}
	}
	for _, e := range topic.Expand(handlers) {
		b.registry.Remove(e.Name, e.Value, context)
	}
	return nil
}

// bind adds one binding per name. A non-nil owner marks the bindings as
// created by that bus through ListenTo.
func (b *Bus) bind(names []string, handler Handler, context any, owner *Bus, once bool) {
	var opts []registry.Option[Handler]
	if owner != nil {
		// Hold the owner lock so a concurrent forget cannot drop b between
		// recording it and adding the bindings.
		owner.mu.Lock()
		defer owner.mu.Unlock()
		if !slices.Contains(owner.listening, b) {
			owner.listening = append(owner.listening, b)
		}
		opts = append(opts, registry.WithOwner[Handler](owner))
	}

	for _, n := range names {
		if !once {
			b.registry.Add(n, handler, context, opts...)
			continue
		}

		w := &onceHandler{handler: handler}
		w.remove = func() {
			b.registry.Remove(n, w, nil)
			if owner != nil {
				owner.forget(b)
			}
		}
		b.registry.Add(n, w, context, append(opts, registry.WithOriginal(handler))...)
	}
}

// Trigger invokes every listener of each name in registration order,
// followed by the "all" listeners, and ignores their results. The first
// listener error stops the trigger and is returned as a *HandlerError.
// Listener panics are not recovered.
func (b *Bus) Trigger(name string, args ...any) error {
	names, err := resolveTrigger(name)
	if err != nil {
		return err
	}

	for _, n := range names {
		start := time.Now()
		batch := b.batch(n, args)
		err := dispatch.Fire(batch)
		b.observe(ModeTrigger, batch.Len(), start, err)
		if err != nil {
			return b.handlerError(n, err)
		}
	}
	return nil
}

// TriggerDefer queues Trigger to run on the bus scheduler and returns
// immediately. Listener errors and panics in the later run are passed to the
// bus error handler. Deferred triggers run in the order they were issued.
// The listeners run on the scheduler goroutine, concurrently with whatever
// the caller does next; call Flush to wait for their side effects.
func (b *Bus) TriggerDefer(name string, args ...any) error {
	if !topic.IsValid(name) {
		return ErrInvalidName
	}
	args = slices.Clone(args)

	b.deferred.Add(1)
	err := b.scheduler.Go(func() {
		defer b.deferred.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				b.handlerPanics.Add(1)
				b.reportError(b.handlerError(name, &PanicError{Name: name, Value: r, Stack: debug.Stack()}))
			}
		}()

		if err := b.Trigger(name, args...); err != nil {
			b.reportError(err)
		}
	})
	if err != nil {
		b.deferred.Add(-1)
		return fmt.Errorf("defer trigger %q: %w", name, err)
	}

	b.triggers[ModeDefer].Add(1)
	return nil
}

// TriggerSync invokes listeners like Trigger and collects their non-nil
// results: nil when there are none, the value itself when there is one, and
// a []any in invocation order otherwise. Pending results are returned as is.
// For several names the result of the last name is returned.
func (b *Bus) TriggerSync(name string, args ...any) (any, error) {
	names, err := resolveTrigger(name)
	if err != nil {
		return nil, err
	}

	var result any
	for _, n := range names {
		start := time.Now()
		batch := b.batch(n, args)
		results, err := dispatch.Collect(batch)
		b.observe(ModeSync, batch.Len(), start, err)
		if err != nil {
			return nil, b.handlerError(n, err)
		}
		result = results.Value()
	}
	return result, nil
}

// TriggerAsync invokes listeners like TriggerSync and returns the outcome as
// a Pending. With at most one result it settles like that result. With two
// or more it resolves to a []any once every pending result has resolved.
// A listener error or panic, or any rejected result, rejects the outcome.
//
// For several names the outcome of the last name is returned and failures of
// the earlier names go to the bus error handler.
func (b *Bus) TriggerAsync(name string, args ...any) *Pending {
	names, err := resolveTrigger(name)
	if err != nil {
		return dispatch.Rejected(err)
	}

	var outcome *Pending
	for i, n := range names {
		start := time.Now()
		batch := b.batch(n, args)
		results, err := dispatch.CollectSafe(batch)
		b.observe(ModeAsync, batch.Len(), start, err)

		var p *Pending
		if err != nil {
			p = dispatch.Rejected(b.handlerError(n, err))
		} else {
			p = dispatch.Settle(context.Background(), results)
		}

		if i < len(names)-1 {
			b.watch(p)
		}
		outcome = p
	}
	return outcome
}

// batch snapshots the bindings matched by one event name.
func (b *Bus) batch(name string, args []any) dispatch.Batch[binding] {
	// Triggering "all" itself runs the wildcard listeners twice: once as
	// named listeners with the raw args, once with "all" prepended.
	return dispatch.Batch[binding]{
		Name:   name,
		Named:  b.registry.Bindings(name),
		All:    b.registry.Bindings(topic.All),
		Args:   args,
		Source: b,
	}
}

// EventCount returns the number of listener bindings on the bus.
func (b *Bus) EventCount() int {
	return b.registry.Count()
}

// EventNames returns the names with listeners, in first-registered order.
func (b *Bus) EventNames() []string {
	return b.registry.Names()
}

// ForEachEvent calls visit once per binding, grouped by name in
// EventNames order, then in registration order. Once-bindings report the
// handler that was registered.
func (b *Bus) ForEachEvent(visit func(name string, handler Handler, context any)) error {
	return forEach(b.registry, visit, nil)
}

// CreateEventProxy returns a proxy bound to this bus.
func (b *Bus) CreateEventProxy() *EventProxy {
	return newEventProxy(b)
}

// Flush waits until every deferred trigger issued so far has run.
func (b *Bus) Flush(ctx context.Context) error {
	return b.scheduler.Flush(ctx)
}

// Close stops listening to other buses and, when the bus owns its
// scheduler, runs the queued deferred triggers and stops it.
func (b *Bus) Close(ctx context.Context) error {
	if err := b.StopListening(nil, "", nil, nil); err != nil {
		return err
	}
	if !b.ownsScheduler {
		return nil
	}
	if err := b.scheduler.Stop(ctx); err != nil && !errors.Is(err, dispatch.ErrNotRunning) {
		return err
	}
	return nil
}

// Stats returns bus statistics.
// Note: Stats are read without a mutex, so values may be slightly inconsistent
// if stats are being updated concurrently.
func (b *Bus) Stats() Stats {
	triggers := make(map[TriggerMode]uint64, len(b.triggers))
	for mode := range b.triggers {
		triggers[TriggerMode(mode)] = b.triggers[mode].Load()
	}
	return Stats{
		Triggers:         triggers,
		ListenersMatched: b.listenersMatched.Load(),
		HandlerErrors:    b.handlerErrors.Load(),
		HandlerPanics:    b.handlerPanics.Load(),
		Listeners:        b.registry.Count(),
		DeferredDepth:    int(b.deferred.Load()),
	}
}

func (b *Bus) eventbus() (*Bus, error) {
	if b == nil {
		return nil, ErrInvalidTarget
	}
	return b, nil
}

// observe records one trigger pass in stats and metrics.
func (b *Bus) observe(mode TriggerMode, matched int, start time.Time, err error) {
	b.triggers[mode].Add(1)
	b.listenersMatched.Add(uint64(matched))
	if err != nil {
		b.handlerErrors.Add(1)
		if errors.Is(err, ErrHandlerPanic) {
			b.handlerPanics.Add(1)
		}
	}
	b.metrics.record(b.EventbusName(), mode, matched, time.Since(start), err != nil)
}

// handlerError wraps a listener failure with the bus and event name.
func (b *Bus) handlerError(name string, err error) error {
	return &HandlerError{Bus: b.EventbusName(), Name: name, Err: err}
}

// watch reports the failure of an outcome nobody receives.
func (b *Bus) watch(p *Pending) {
	report := func() {
		if _, err := p.Await(context.Background()); err != nil {
			b.reportError(err)
		}
	}
	if p.Settled() {
		report()
		return
	}
	go report()
}

// reportError passes an error raised outside the triggering call to the
// error handler.
func (b *Bus) reportError(err error) {
	b.errorHandler(err)
}

// logError is the default error handler.
func (b *Bus) logError(err error) {
	b.logger.Error().
		Err(err).
		Str("bus", b.EventbusName()).
		Msg("deferred trigger failed")
}

// schedulerPanic reports a panic in work scheduled directly on the bus
// scheduler.
func (b *Bus) schedulerPanic(value any, stack []byte) {
	b.reportError(&PanicError{Value: value, Stack: stack})
}

// resolveBinding validates registration arguments and resolves the names.
func resolveBinding(name string, handler Handler, context any) ([]string, error) {
	names := topic.Resolve(name)
	if len(names) == 0 {
		return nil, ErrInvalidName
	}
	if err := validateHandler(handler); err != nil {
		return nil, err
	}
	if err := validateContext(context); err != nil {
		return nil, err
	}
	return names, nil
}

// resolveMap validates every entry of a handler map before any is bound.
func resolveMap(handlers map[string]Handler, context any) ([]topic.Entry[Handler], error) {
	if err := validateContext(context); err != nil {
		return nil, err
	}
	for name, h := range handlers {
		if !topic.IsValid(name) {
			return nil, ErrInvalidName
		}
		if err := validateHandler(h); err != nil {
			return nil, err
		}
	}
	return topic.Expand(handlers), nil
}

// resolveTrigger resolves the names of a trigger call.
func resolveTrigger(name string) ([]string, error) {
	names := topic.Resolve(name)
	if len(names) == 0 {
		return nil, ErrInvalidName
	}
	return names, nil
}

// forEach visits the bindings of r accepted by match, or all of them when
// match is nil.
func forEach(r *registry.Registry[Handler], visit func(string, Handler, any), match func(binding) bool) error {
	if visit == nil {
		return ErrNilVisitor
	}
	return r.ForEach(func(x binding) {
		if match == nil || match(x) {
			visit(x.Name, x.Callback(), x.Context)
		}
	})
}

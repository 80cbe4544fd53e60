package event

import (
	"sync"

	"github.com/dshills/eventbus/internal/event/dispatch"
)

// EventProxy is a revocable view over a target bus. Listeners added through
// the proxy are ordinary listeners on the target, owned by a private
// internal bus; Destroy revokes exactly those listeners.
//
// After Destroy every method returns ErrProxyDestroyed.
type EventProxy struct {
	mu     sync.RWMutex
	target *Bus
	proxy  *Bus
}

// NewEventProxy creates a proxy over target. A proxy given another proxy
// binds to that proxy's target bus.
func NewEventProxy(target Eventbus) (*EventProxy, error) {
	t, err := resolveTarget(target)
	if err != nil {
		return nil, err
	}
	return newEventProxy(t), nil
}

func newEventProxy(target *Bus) *EventProxy {
	return &EventProxy{
		target: target,
		proxy: NewBus(
			WithLogger(target.logger),
			WithScheduler(target.scheduler),
		),
	}
}

// state returns the target and internal bus. Caller holds p.mu.
func (p *EventProxy) state() (*Bus, *Bus, error) {
	if p.target == nil || p.proxy == nil {
		return nil, nil, ErrProxyDestroyed
	}
	return p.target, p.proxy, nil
}

// targetBus returns the target without holding the lock afterwards, so
// listeners invoked by a trigger may call back into the proxy.
func (p *EventProxy) targetBus() (*Bus, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, _, err := p.state()
	return t, err
}

// On registers handler on the target through the proxy.
func (p *EventProxy) On(name string, handler Handler, context any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, px, err := p.state()
	if err != nil {
		return err
	}
	return px.ListenTo(t, name, handler, context)
}

// OnMap is the map form of On.
func (p *EventProxy) OnMap(handlers map[string]Handler, context any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, px, err := p.state()
	if err != nil {
		return err
	}
	return px.ListenToMap(t, handlers, context)
}

// Once registers a listener that runs at most once per name.
func (p *EventProxy) Once(name string, handler Handler, context any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, px, err := p.state()
	if err != nil {
		return err
	}
	return px.ListenToOnce(t, name, handler, context)
}

// OnceMap is the map form of Once.
func (p *EventProxy) OnceMap(handlers map[string]Handler, context any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, px, err := p.state()
	if err != nil {
		return err
	}
	return px.ListenToOnceMap(t, handlers, context)
}

// Off removes matching listeners added through this proxy. Listeners
// registered on the target by anyone else are left alone.
func (p *EventProxy) Off(name string, handler Handler, context any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, px, err := p.state()
	if err != nil {
		return err
	}
	return px.StopListening(t, name, handler, context)
}

// OffMap is the map form of Off.
func (p *EventProxy) OffMap(handlers map[string]Handler, context any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, px, err := p.state()
	if err != nil {
		return err
	}
	return px.StopListeningMap(t, handlers, context)
}

// Trigger delegates to the target bus.
func (p *EventProxy) Trigger(name string, args ...any) error {
	t, err := p.targetBus()
	if err != nil {
		return err
	}
	return t.Trigger(name, args...)
}

// TriggerDefer delegates to the target bus.
func (p *EventProxy) TriggerDefer(name string, args ...any) error {
	t, err := p.targetBus()
	if err != nil {
		return err
	}
	return t.TriggerDefer(name, args...)
}

// TriggerSync delegates to the target bus.
func (p *EventProxy) TriggerSync(name string, args ...any) (any, error) {
	t, err := p.targetBus()
	if err != nil {
		return nil, err
	}
	return t.TriggerSync(name, args...)
}

// TriggerAsync delegates to the target bus. A destroyed proxy returns a
// rejected Pending.
func (p *EventProxy) TriggerAsync(name string, args ...any) *Pending {
	t, err := p.targetBus()
	if err != nil {
		return dispatch.Rejected(err)
	}
	return t.TriggerAsync(name, args...)
}

// EventbusName returns the target bus name.
func (p *EventProxy) EventbusName() (string, error) {
	t, err := p.targetBus()
	if err != nil {
		return "", err
	}
	return t.EventbusName(), nil
}

// EventCount returns the number of listeners added through this proxy that
// are still registered on the target.
func (p *EventProxy) EventCount() (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, px, err := p.state()
	if err != nil {
		return 0, err
	}
	return t.registry.CountFunc(ownedBy(px)), nil
}

// EventNames returns the names of listeners added through this proxy.
func (p *EventProxy) EventNames() ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, px, err := p.state()
	if err != nil {
		return nil, err
	}
	return t.registry.NamesFunc(ownedBy(px)), nil
}

// ForEachEvent visits the listeners added through this proxy.
func (p *EventProxy) ForEachEvent(visit func(name string, handler Handler, context any)) error {
	p.mu.RLock()
	t, px, err := p.state()
	p.mu.RUnlock()
	if err != nil {
		return err
	}
	return forEach(t.registry, visit, ownedBy(px))
}

// Destroy removes every listener added through the proxy and releases the
// target. Calling Destroy again returns ErrProxyDestroyed.
func (p *EventProxy) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, px, err := p.state()
	if err != nil {
		return err
	}
	if err := px.StopListening(t, "", nil, nil); err != nil {
		return err
	}
	p.target = nil
	p.proxy = nil

	t.logger.Debug().
		Str("bus", t.EventbusName()).
		Str("proxy_id", px.ID()).
		Msg("event proxy destroyed")
	return nil
}

// IsDestroyed reports whether Destroy has been called.
func (p *EventProxy) IsDestroyed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, _, err := p.state()
	return err != nil
}

func (p *EventProxy) eventbus() (*Bus, error) {
	return p.targetBus()
}

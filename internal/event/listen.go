package event

import (
	"reflect"
	"slices"

	"github.com/dshills/eventbus/internal/event/topic"
)

// ListenTo registers handler on target exactly as target.On would and
// records the binding as owned by b, so StopListening can revoke it later.
// Each call adds an independent binding.
func (b *Bus) ListenTo(target Eventbus, name string, handler Handler, context any) error {
	t, err := resolveTarget(target)
	if err != nil {
		return err
	}
	names, err := resolveBinding(name, handler, context)
	if err != nil {
		return err
	}
	t.bind(names, handler, context, b, false)
	return nil
}

// ListenToMap is the map form of ListenTo.
func (b *Bus) ListenToMap(target Eventbus, handlers map[string]Handler, context any) error {
	t, err := resolveTarget(target)
	if err != nil {
		return err
	}
	entries, err := resolveMap(handlers, context)
	if err != nil {
		return err
	}
	for _, e := range entries {
		t.bind([]string{e.Name}, e.Value, context, b, false)
	}
	return nil
}

// ListenToOnce is ListenTo for a listener that runs at most once per name.
// The binding and its ownership record are removed before the handler runs.
func (b *Bus) ListenToOnce(target Eventbus, name string, handler Handler, context any) error {
	t, err := resolveTarget(target)
	if err != nil {
		return err
	}
	names, err := resolveBinding(name, handler, context)
	if err != nil {
		return err
	}
	t.bind(names, handler, context, b, true)
	return nil
}

// ListenToOnceMap is the map form of ListenToOnce.
func (b *Bus) ListenToOnceMap(target Eventbus, handlers map[string]Handler, context any) error {
	t, err := resolveTarget(target)
	if err != nil {
		return err
	}
	entries, err := resolveMap(handlers, context)
	if err != nil {
		return err
	}
	for _, e := range entries {
		t.bind([]string{e.Name}, e.Value, context, b, true)
	}
	return nil
}

// StopListening removes bindings b created on other buses. A nil target,
// empty name, nil handler or nil context matches anything, so
// StopListening(nil, "", nil, nil) revokes everything b registered anywhere.
// Bindings created by other buses or registered directly are never touched.
func (b *Bus) StopListening(target Eventbus, name string, handler Handler, context any) error {
	targets, err := b.stopTargets(target)
	if err != nil {
		return err
	}
	if err := validateFilter(handler, context); err != nil {
		return err
	}

	names := topic.Resolve(name)
	if len(names) == 0 {
		names = []string{""}
	}
	owned := ownedBy(b)
	match := func(x binding) bool {
		return owned(x) && x.Matches(handler, context)
	}

	for _, t := range targets {
		for _, n := range names {
			t.registry.RemoveFunc(n, match)
		}
		b.forget(t)
	}
	return nil
}

// StopListeningMap removes each handler from the names of its key on target.
func (b *Bus) StopListeningMap(target Eventbus, handlers map[string]Handler, context any) error {
	targets, err := b.stopTargets(target)
	if err != nil {
		return err
	}
	for _, h := range handlers {
		if err := validateFilter(h, context); err != nil {
			return err
		}
	}

	owned := ownedBy(b)
	for _, t := range targets {
		for _, e := range topic.Expand(handlers) {
			t.registry.RemoveFunc(e.Name, func(x binding) bool {
				return owned(x) && x.Matches(e.Value, context)
			})
		}
		b.forget(t)
	}
	return nil
}

// ListeningTo returns the buses b currently has bindings on. Targets whose
// bindings were all removed from the target side, for example by a direct
// Off on the target, are dropped.
func (b *Bus) ListeningTo() []*Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	owned := ownedBy(b)
	b.listening = slices.DeleteFunc(b.listening, func(t *Bus) bool {
		return t.registry.CountFunc(owned) == 0
	})
	return slices.Clone(b.listening)
}

// stopTargets returns the buses a StopListening call applies to.
func (b *Bus) stopTargets(target Eventbus) ([]*Bus, error) {
	if target == nil {
		return b.ListeningTo(), nil
	}
	t, err := resolveTarget(target)
	if err != nil {
		return nil, err
	}
	return []*Bus{t}, nil
}

// forget drops t from the listening set once b owns no bindings there.
func (b *Bus) forget(t *Bus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.registry.CountFunc(ownedBy(b)) > 0 {
		return
	}
	b.listening = slices.DeleteFunc(b.listening, func(x *Bus) bool { return x == t })
}

// ownedBy matches bindings created by owner through ListenTo.
func ownedBy(owner *Bus) func(binding) bool {
	return func(x binding) bool {
		o, ok := x.Owner.(*Bus)
		return ok && o == owner
	}
}

// resolveTarget returns the bus behind a cross-bus or proxy target.
func resolveTarget(target Eventbus) (*Bus, error) {
	if target == nil {
		return nil, ErrInvalidTarget
	}
	if v := reflect.ValueOf(target); v.Kind() == reflect.Pointer && v.IsNil() {
		return nil, ErrInvalidTarget
	}
	return target.eventbus()
}

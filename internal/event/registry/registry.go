// Package registry stores event listener bindings keyed by event name.
//
// A Registry keeps names in first-seen order and, within a name, bindings in
// insertion order. That order is the invocation order used by the bus. A name
// whose last binding is removed is deleted, so Count and Names always reflect
// live registrations only.
package registry

import (
	"errors"
	"sync"
)

// ErrNilVisitor is returned by ForEach when no visitor function is supplied.
var ErrNilVisitor = errors.New("visitor cannot be nil")

// Binding is a single listener registration under one event name.
type Binding[H comparable] struct {
	// Name is the event name the binding was registered under.
	Name string

	// Handler is the invocable registered for the event. For once-bindings
	// this is the self-removing wrapper.
	Handler H

	// Original is the caller's handler when Handler is a wrapper.
	Original H

	// Context is the receiver the handler is bound to. May be nil.
	Context any

	// Owner identifies the bus that registered this binding through a
	// cross-bus listen. Nil for direct registrations.
	Owner any
}

// Bound returns the handler and context used to invoke the binding.
func (b Binding[H]) Bound() (H, any) {
	return b.Handler, b.Context
}

// Callback returns the handler the caller registered, unwrapping once-wrappers.
func (b Binding[H]) Callback() H {
	var zero H
	if b.Original != zero {
		return b.Original
	}
	return b.Handler
}

// Matches reports whether the binding matches the handler and context filters.
// A zero handler or nil context matches anything.
func (b Binding[H]) Matches(handler H, context any) bool {
	var zero H
	if handler != zero && handler != b.Handler && handler != b.Original {
		return false
	}
	if context != nil && context != b.Context {
		return false
	}
	return true
}

// Option configures a binding at registration time.
type Option[H comparable] func(*Binding[H])

// WithOriginal records the caller's handler behind a wrapper.
func WithOriginal[H comparable](original H) Option[H] {
	return func(b *Binding[H]) {
		b.Original = original
	}
}

// WithOwner records the bus that owns a cross-bus binding.
func WithOwner[H comparable](owner any) Option[H] {
	return func(b *Binding[H]) {
		b.Owner = owner
	}
}

// Registry manages bindings organized by event name.
// It is safe for concurrent use.
type Registry[H comparable] struct {
	mu     sync.RWMutex
	order  []string
	events map[string][]Binding[H]
}

// New creates an empty registry.
func New[H comparable]() *Registry[H] {
	return &Registry[H]{
		events: make(map[string][]Binding[H]),
	}
}

// Add appends a binding for name. Identical registrations are not collapsed.
func (r *Registry[H]) Add(name string, handler H, context any, opts ...Option[H]) {
	b := Binding[H]{
		Name:    name,
		Handler: handler,
		Context: context,
	}
	for _, opt := range opts {
		opt(&b)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[name]; !exists {
		r.order = append(r.order, name)
	}
	r.events[name] = append(r.events[name], b)
}

// Remove deletes every binding matching the filters and returns how many were
// removed. An empty name matches all names; a zero handler and a nil context
// match any binding. With no filters at all the registry is cleared.
func (r *Registry[H]) Remove(name string, handler H, context any) int {
	var zero H
	if name == "" && handler == zero && context == nil {
		return r.Clear()
	}
	return r.RemoveFunc(name, func(b Binding[H]) bool {
		return b.Matches(handler, context)
	})
}

// RemoveFunc deletes every binding under name (or under every name when name
// is empty) for which match returns true.
func (r *Registry[H]) RemoveFunc(name string, match func(Binding[H]) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := r.order
	if name != "" {
		if _, exists := r.events[name]; !exists {
			return 0
		}
		names = []string{name}
	}

	removed := 0
	emptied := false
	for _, n := range names {
		bindings := r.events[n]

		// Build a fresh slice so snapshots handed out earlier stay intact.
		kept := make([]Binding[H], 0, len(bindings))
		for _, b := range bindings {
			if match(b) {
				removed++
				continue
			}
			kept = append(kept, b)
		}

		if len(kept) == 0 {
			delete(r.events, n)
			emptied = true
			continue
		}
		r.events[n] = kept
	}

	if emptied {
		r.compact()
	}
	return removed
}

// compact drops names that no longer have bindings. Caller holds the lock.
func (r *Registry[H]) compact() {
	order := make([]string, 0, len(r.events))
	for _, n := range r.order {
		if _, exists := r.events[n]; exists {
			order = append(order, n)
		}
	}
	r.order = order
}

// Clear removes all bindings and returns how many were removed.
func (r *Registry[H]) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, bindings := range r.events {
		removed += len(bindings)
	}
	r.order = nil
	r.events = make(map[string][]Binding[H])
	return removed
}

// Count returns the total number of bindings across all names.
func (r *Registry[H]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, bindings := range r.events {
		count += len(bindings)
	}
	return count
}

// CountFunc returns the number of bindings for which match returns true.
func (r *Registry[H]) CountFunc(match func(Binding[H]) bool) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, bindings := range r.events {
		for _, b := range bindings {
			if match(b) {
				count++
			}
		}
	}
	return count
}

// Names returns the registered event names in first-seen order.
// The returned slice is a copy.
func (r *Registry[H]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// NamesFunc returns, in first-seen order, the names having at least one
// binding for which match returns true.
func (r *Registry[H]) NamesFunc(match func(Binding[H]) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, n := range r.order {
		for _, b := range r.events[n] {
			if match(b) {
				names = append(names, n)
				break
			}
		}
	}
	return names
}

// Bindings returns a snapshot of the bindings registered under name.
// Returns nil when there are none.
func (r *Registry[H]) Bindings(name string) []Binding[H] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bindings := r.events[name]
	if len(bindings) == 0 {
		return nil
	}

	result := make([]Binding[H], len(bindings))
	copy(result, bindings)
	return result
}

// All returns a snapshot of every binding in iteration order.
func (r *Registry[H]) All() []Binding[H] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Binding[H]
	for _, n := range r.order {
		result = append(result, r.events[n]...)
	}
	return result
}

// ForEach calls visit once per binding: names in first-seen order, then
// bindings in insertion order. The visitor runs on a snapshot and may mutate
// the registry.
func (r *Registry[H]) ForEach(visit func(Binding[H])) error {
	if visit == nil {
		return ErrNilVisitor
	}
	for _, b := range r.All() {
		visit(b)
	}
	return nil
}

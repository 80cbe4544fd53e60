package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dshills/eventbus/internal/event"
	"github.com/dshills/eventbus/internal/logging"
)

// Lifecycle events triggered on the served bus.
const (
	// EventLoaded is triggered with (name, path) after a plugin loads.
	EventLoaded = "plugin:loaded"

	// EventUnloaded is triggered with (name) after a plugin is unloaded.
	EventUnloaded = "plugin:unloaded"
)

// Manager manages the lifecycle of all plugins on one bus.
type Manager struct {
	mu sync.RWMutex

	bus    *event.Bus
	logger zerolog.Logger

	// Loaded plugins by name
	plugins map[string]*Plugin

	// Plugin load order (for deterministic iteration)
	loadOrder []string

	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a plugin manager serving bus.
func NewManager(bus *event.Bus, opts ...Option) *Manager {
	m := &Manager{
		bus:     bus,
		logger:  bus.Logger(),
		plugins: make(map[string]*Plugin),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithComponent(m.logger, "plugin")
	return m
}

// Load runs the script at path as a new plugin named after the file.
// If a plugin of that name is loaded, returns ErrAlreadyLoaded.
func (m *Manager) Load(ctx context.Context, path string) (*Plugin, error) {
	name, err := NameFromPath(path)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	// Quick check under lock
	if err := m.checkLoadable(name); err != nil {
		return nil, err
	}

	// Running the script may take a while and may trigger events; no lock.
	p, err := start(ctx, m.bus, name, path)
	if err != nil {
		m.logger.Error().Err(err).Str("plugin", name).Str("path", path).Msg("plugin load failed")
		return nil, fmt.Errorf("load plugin %q: %w", name, err)
	}

	m.mu.Lock()
	// Double-check - another goroutine might have loaded it
	if err := m.checkLoadableLocked(name); err != nil {
		m.mu.Unlock()
		p.stop()
		return nil, err
	}
	m.plugins[name] = p
	m.loadOrder = append(m.loadOrder, name)
	m.mu.Unlock()

	m.logger.Info().
		Str("plugin", name).
		Str("plugin_id", p.ID).
		Int("listeners", p.EventCount()).
		Msg("plugin loaded")
	m.announce(EventLoaded, name, path)
	return p, nil
}

// LoadDir loads every *.lua file in dir in lexical order. Plugins that fail
// to load are skipped and reported together in the returned error.
func (m *Manager) LoadDir(ctx context.Context, dir string) ([]*Plugin, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), Extension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	var (
		loaded []*Plugin
		errs   []error
	)
	for _, path := range paths {
		p, err := m.Load(ctx, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, p)
	}

	if len(errs) > 0 {
		return loaded, fmt.Errorf("failed to load %d plugins: %w", len(errs), errors.Join(errs...))
	}
	return loaded, nil
}

// Unload revokes every listener of the named plugin and releases its Lua
// state. The state is released asynchronously; Plugin.Done reports when.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	p, exists := m.plugins[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	delete(m.plugins, name)
	m.loadOrder = slices.DeleteFunc(m.loadOrder, func(n string) bool { return n == name })
	m.mu.Unlock()

	p.stop()

	m.logger.Info().Str("plugin", name).Str("plugin_id", p.ID).Msg("plugin unloaded")
	m.announce(EventUnloaded, name)
	return nil
}

// Reload unloads the named plugin and loads its script again.
func (m *Manager) Reload(ctx context.Context, name string) (*Plugin, error) {
	p, ok := m.Get(name)
	if !ok {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	if err := m.Unload(name); err != nil {
		return nil, err
	}
	return m.Load(ctx, p.Path)
}

// Get returns a loaded plugin by name.
func (m *Manager) Get(name string) (*Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	return p, ok
}

// List returns the loaded plugins in load order.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Plugin, 0, len(m.loadOrder))
	for _, name := range m.loadOrder {
		result = append(result, m.plugins[name])
	}
	return result
}

// Names returns the names of loaded plugins in load order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.loadOrder)
}

// Count returns the number of loaded plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// Close unloads every plugin in reverse load order and waits until their
// Lua states are released or ctx is done. Later loads fail with
// ErrManagerClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	names := slices.Clone(m.loadOrder)
	m.mu.Unlock()

	var unloaded []*Plugin
	for _, name := range slices.Backward(names) {
		p, ok := m.Get(name)
		if !ok {
			continue
		}
		if err := m.Unload(name); err == nil {
			unloaded = append(unloaded, p)
		}
	}

	for _, p := range unloaded {
		select {
		case <-p.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) checkLoadable(name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkLoadableLocked(name)
}

// checkLoadableLocked reports why name cannot be loaded. Caller holds m.mu.
func (m *Manager) checkLoadableLocked(name string) error {
	if m.closed {
		return ErrManagerClosed
	}
	if _, exists := m.plugins[name]; exists {
		return fmt.Errorf("plugin %q: %w", name, ErrAlreadyLoaded)
	}
	return nil
}

// announce triggers a lifecycle event. Listener failures are logged.
func (m *Manager) announce(name string, args ...any) {
	if err := m.bus.Trigger(name, args...); err != nil {
		m.logger.Warn().Err(err).Str("event", name).Msg("plugin lifecycle listener failed")
	}
}

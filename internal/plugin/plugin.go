package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/eventbus/internal/event"
	plua "github.com/dshills/eventbus/internal/plugin/lua"
)

// Extension is the file extension of plugin scripts.
const Extension = ".lua"

// Plugin is one loaded Lua script and the listeners it registered.
type Plugin struct {
	// ID is unique per load; a reloaded plugin gets a new ID.
	ID string

	// Name is the file name without extension.
	Name string

	// Path is the script location.
	Path string

	// LoadedAt is when the script finished running.
	LoadedAt time.Time

	proxy *event.EventProxy
	exec  *plua.Executor
}

// NameFromPath returns the plugin name for a script path.
func NameFromPath(path string) (string, error) {
	base := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(base), Extension) {
		return "", fmt.Errorf("%w: %s is not a %s file", ErrInvalidPlugin, path, Extension)
	}
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		return "", fmt.Errorf("%w: empty name in %s", ErrInvalidPlugin, path)
	}
	return name, nil
}

// start creates the plugin runtime over target and runs the script.
func start(ctx context.Context, target *event.Bus, name, path string) (*Plugin, error) {
	p := &Plugin{
		ID:    uuid.NewString(),
		Name:  name,
		Path:  path,
		proxy: target.CreateEventProxy(),
		exec:  plua.NewExecutor(plua.NewState()),
	}

	module := newBusModule(p)
	err := p.exec.Do(ctx, func(s *plua.State) error {
		module.register(s)
		return s.DoFile(path)
	})
	if err != nil {
		p.stop()
		return nil, err
	}

	p.LoadedAt = time.Now()
	return p, nil
}

// Proxy returns the proxy through which the plugin reaches the bus.
func (p *Plugin) Proxy() *event.EventProxy {
	return p.proxy
}

// EventCount returns the number of listeners the plugin has registered.
// Returns 0 once the plugin is unloaded.
func (p *Plugin) EventCount() int {
	n, err := p.proxy.EventCount()
	if err != nil {
		return 0
	}
	return n
}

// Call calls the global Lua function fn with args and returns its results.
func (p *Plugin) Call(ctx context.Context, fn string, args ...any) ([]any, error) {
	var results []any
	err := p.exec.Do(ctx, func(s *plua.State) error {
		var err error
		results, err = s.Call(s.GetGlobal(fn), args...)
		if err != nil {
			return fmt.Errorf("call %s: %w", fn, err)
		}
		return nil
	})
	return results, err
}

// Done is closed once the plugin's Lua state has been released.
func (p *Plugin) Done() <-chan struct{} {
	return p.exec.Done()
}

// stop revokes the plugin's listeners and shuts its executor down.
func (p *Plugin) stop() {
	// Already destroyed only when stop runs twice.
	_ = p.proxy.Destroy()
	p.exec.Close()
}

package plugin

import (
	"context"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/eventbus/internal/event"
	plua "github.com/dshills/eventbus/internal/plugin/lua"
)

// ModuleName is the global under which plugins reach the event bus.
const ModuleName = "bus"

// luaHandler is a Lua function registered as a listener. One luaHandler
// exists per function, so registering the same function twice yields
// bindings that Off removes together.
type luaHandler struct {
	plugin *Plugin
	fn     *lua.LFunction
}

// Handle runs the Lua function on the plugin executor. The first Lua return
// value becomes the listener result.
func (h *luaHandler) Handle(e *event.Event) (any, error) {
	var result any
	err := h.plugin.exec.Do(context.Background(), func(s *plua.State) error {
		results, err := s.Call(h.fn, e.Args...)
		if err != nil {
			return err
		}
		if len(results) > 0 {
			result = results[0]
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", h.plugin.Name, err)
	}
	return result, nil
}

// busModule implements the bus global of one plugin. Its methods run on the
// plugin executor goroutine, which also confines the handlers map.
type busModule struct {
	plugin   *Plugin
	handlers map[*lua.LFunction]*luaHandler
}

func newBusModule(p *Plugin) *busModule {
	return &busModule{
		plugin:   p,
		handlers: make(map[*lua.LFunction]*luaHandler),
	}
}

// register installs the module into the state.
func (m *busModule) register(s *plua.State) {
	s.RegisterModule(ModuleName, map[string]lua.LGFunction{
		"on":            m.on,
		"once":          m.once,
		"off":           m.off,
		"trigger":       m.trigger,
		"trigger_sync":  m.triggerSync,
		"trigger_defer": m.triggerDefer,
		"event_count":   m.eventCount,
		"event_names":   m.eventNames,
		"name":          m.name,
	})
	if mod, ok := s.GetGlobal(ModuleName).(*lua.LTable); ok {
		mod.RawSetString("plugin", lua.LString(m.plugin.Name))
	}
}

// handler returns the listener for fn, creating it on first use.
func (m *busModule) handler(fn *lua.LFunction) *luaHandler {
	h, ok := m.handlers[fn]
	if !ok {
		h = &luaHandler{plugin: m.plugin, fn: fn}
		m.handlers[fn] = h
	}
	return h
}

// on(name, fn)
func (m *busModule) on(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	if err := m.plugin.proxy.On(name, m.handler(fn), nil); err != nil {
		L.RaiseError("on: %s", err.Error())
	}
	return 0
}

// once(name, fn)
func (m *busModule) once(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	if err := m.plugin.proxy.Once(name, m.handler(fn), nil); err != nil {
		L.RaiseError("once: %s", err.Error())
	}
	return 0
}

// off([name [, fn]])
// A nil name matches every name and a nil fn every listener of this plugin.
func (m *busModule) off(L *lua.LState) int {
	name := L.OptString(1, "")

	var handler event.Handler
	if L.GetTop() >= 2 && L.Get(2) != lua.LNil {
		fn := L.CheckFunction(2)
		h, ok := m.handlers[fn]
		if !ok {
			// Never registered, nothing to remove.
			return 0
		}
		handler = h
	}

	if err := m.plugin.proxy.Off(name, handler, nil); err != nil {
		L.RaiseError("off: %s", err.Error())
	}
	return 0
}

// trigger(name, ...)
func (m *busModule) trigger(L *lua.LState) int {
	name := L.CheckString(1)
	args := m.args(L, 2)

	err := m.await(name, func() error {
		return m.plugin.proxy.Trigger(name, args...)
	})
	if err != nil {
		L.RaiseError("trigger: %s", err.Error())
	}
	return 0
}

// trigger_sync(name, ...) -> result
func (m *busModule) triggerSync(L *lua.LState) int {
	name := L.CheckString(1)
	args := m.args(L, 2)

	var result any
	err := m.await(name, func() error {
		var err error
		result, err = m.plugin.proxy.TriggerSync(name, args...)
		return err
	})
	if err != nil {
		L.RaiseError("trigger_sync: %s", err.Error())
		return 0
	}

	L.Push(plua.NewBridge(L).ToLuaValue(result))
	return 1
}

// trigger_defer(name, ...)
func (m *busModule) triggerDefer(L *lua.LState) int {
	name := L.CheckString(1)

	if err := m.plugin.proxy.TriggerDefer(name, m.args(L, 2)...); err != nil {
		L.RaiseError("trigger_defer: %s", err.Error())
	}
	return 0
}

// event_count() -> n
func (m *busModule) eventCount(L *lua.LState) int {
	n, err := m.plugin.proxy.EventCount()
	if err != nil {
		L.RaiseError("event_count: %s", err.Error())
		return 0
	}
	L.Push(lua.LNumber(n))
	return 1
}

// event_names() -> {name, ...}
func (m *busModule) eventNames(L *lua.LState) int {
	names, err := m.plugin.proxy.EventNames()
	if err != nil {
		L.RaiseError("event_names: %s", err.Error())
		return 0
	}
	L.Push(plua.NewBridge(L).ToLuaValue(names))
	return 1
}

// name() -> bus name
func (m *busModule) name(L *lua.LState) int {
	name, err := m.plugin.proxy.EventbusName()
	if err != nil {
		L.RaiseError("name: %s", err.Error())
		return 0
	}
	L.Push(lua.LString(name))
	return 1
}

// args converts the Lua arguments from position start on to Go values.
func (m *busModule) args(L *lua.LState, start int) []any {
	top := L.GetTop()
	if top < start {
		return nil
	}

	bridge := plua.NewBridge(L)
	args := make([]any, 0, top-start+1)
	for i := start; i <= top; i++ {
		args = append(args, bridge.ToGoValue(L.Get(i)))
	}
	return args
}

// await runs fn on another goroutine and keeps the executor serving calls
// until it returns, so listeners of this same plugin can run meanwhile.
func (m *busModule) await(name string, fn func() error) error {
	p := event.Go(func() (any, error) {
		return nil, fn()
	})
	m.plugin.exec.Wait(p.Done())

	_, err := p.Await(context.Background())
	var perr *event.PanicError
	if errors.As(err, &perr) && perr.Name == "" {
		perr.Name = name
	}
	return err
}

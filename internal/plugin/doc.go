// Package plugin hosts Lua plugins on an event bus.
//
// Each plugin is a single *.lua file run in its own restricted Lua state.
// The state sees a global bus module backed by a private EventProxy, so
// everything a plugin registers can be revoked at once when it is unloaded
// or reloaded:
//
//	bus.on("buffer:save", function(path) print("saved " .. path) end)
//	bus.once("app:ready", function() bus.trigger("hello:ready") end)
//	local n = bus.trigger_sync("query:count")
//
// The module provides on, once, off, trigger, trigger_sync, trigger_defer,
// event_count, event_names and name, plus the plugin field holding the
// plugin name.
//
// # Lifecycle
//
// The Manager loads plugins from files or a directory and announces changes
// on the bus it serves:
//
//	plugin:loaded    (name, path)
//	plugin:unloaded  (name)
//
// A Watcher reloads plugins whose files change. Reloads run on the bus
// scheduler, in order with deferred triggers.
//
// # Thread Safety
//
// Lua code only ever runs on its plugin's executor goroutine. Listeners
// implemented in Lua may be triggered from any goroutine; the call is handed
// to the executor and the trigger waits for it.
package plugin

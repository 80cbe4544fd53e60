// Package lua provides the Lua runtime used by event bus plugins.
//
// This package wraps the gopher-lua library to provide:
//   - A restricted Lua state (no io, os, debug or file loading)
//   - Go-Lua value conversion
//   - An Executor that confines a state to one goroutine
//
// # Executor
//
// gopher-lua's LState is not goroutine-safe. Every access to a State goes
// through its Executor, which runs calls one at a time on a dedicated
// goroutine:
//
//	state := lua.NewState()
//	exec := lua.NewExecutor(state)
//	defer exec.Close()
//
//	err := exec.Do(ctx, func(s *lua.State) error {
//	    return s.DoString(`x = 1`)
//	})
//
// A Go function called from Lua already runs on the executor goroutine. When
// it has to block on work that may itself need the state, it uses Wait, which
// keeps serving queued calls until the work finishes:
//
//	done := make(chan struct{})
//	go func() { defer close(done); bus.Trigger("saved") }()
//	exec.Wait(done)
package lua

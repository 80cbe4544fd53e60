package lua

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// State wraps a gopher-lua state with the restricted standard library.
//
// A State is not goroutine-safe. Use it only from the goroutine of the
// Executor that owns it.
type State struct {
	L      *lua.LState
	bridge *Bridge
	closed bool
}

// NewState creates a restricted Lua state.
func NewState() *State {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	openSafeLibraries(L)

	return &State{
		L:      L,
		bridge: NewBridge(L),
	}
}

// openSafeLibraries opens only safe Lua standard libraries and strips the
// base functions that load code from disk or strings.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	// io, os, debug and package are never opened.
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// Bridge returns the value converter bound to this state.
func (s *State) Bridge() *Bridge {
	return s.bridge
}

// DoFile executes a Lua file.
func (s *State) DoFile(path string) error {
	if s.closed {
		return ErrStateClosed
	}
	return s.protect(func() error {
		return s.L.DoFile(path)
	})
}

// DoString executes a Lua chunk.
func (s *State) DoString(code string) error {
	if s.closed {
		return ErrStateClosed
	}
	return s.protect(func() error {
		return s.L.DoString(code)
	})
}

// Call calls fn with Go arguments and returns its results as Go values.
// Returns an empty slice (not nil) if the function returns no values.
func (s *State) Call(fn lua.LValue, args ...any) ([]any, error) {
	if s.closed {
		return nil, ErrStateClosed
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%w: got %s", ErrNotFunction, fn.Type())
	}

	var results []any
	err := s.protect(func() error {
		// Only values pushed by this call are collected.
		top := s.L.GetTop()

		s.L.Push(fn)
		for _, arg := range args {
			s.L.Push(s.bridge.ToLuaValue(arg))
		}
		if err := s.L.PCall(len(args), lua.MultRet, nil); err != nil {
			return err
		}

		n := s.L.GetTop() - top
		results = make([]any, n)
		for i := range n {
			results[i] = s.bridge.ToGoValue(s.L.Get(top + i + 1))
		}
		s.L.Pop(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetGlobal returns a global variable value.
func (s *State) GetGlobal(name string) lua.LValue {
	if s.closed {
		return lua.LNil
	}
	return s.L.GetGlobal(name)
}

// RegisterModule registers a global table with the given functions.
func (s *State) RegisterModule(name string, funcs map[string]lua.LGFunction) {
	if s.closed {
		return
	}
	s.L.SetGlobal(name, s.L.SetFuncs(s.L.NewTable(), funcs))
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	return s.closed
}

// Close releases the Lua state. Further calls return ErrStateClosed.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}

// protect executes fn with panic recovery.
func (s *State) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

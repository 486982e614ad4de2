package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// Sandbox restricts Lua execution to safe operations.
type Sandbox struct {
	L *lua.LState

	modules map[string]lua.LGFunction
}

// NewSandbox creates a new sandbox for the Lua state.
func NewSandbox(L *lua.LState) *Sandbox {
	return &Sandbox{
		L:       L,
		modules: make(map[string]lua.LGFunction),
	}
}

// Install removes file loading from the state and replaces require with a
// version that only resolves the safe built-in libraries and modules
// added with Provide.
func (s *Sandbox) Install() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		s.L.SetGlobal(name, lua.LNil)
	}

	safe := map[string]bool{
		lua.TabLibName:    true,
		lua.StringLibName: true,
		lua.MathLibName:   true,
	}

	s.L.SetGlobal("require", s.L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)

		if safe[name] {
			L.Push(L.GetGlobal(name))
			return 1
		}
		if loader, ok := s.modules[name]; ok {
			L.Push(L.NewFunction(loader))
			L.Call(0, 1)
			return 1
		}

		L.RaiseError("module %q is not available", name)
		return 0
	}))
}

// Provide makes a Go-implemented module available to require.
func (s *Sandbox) Provide(name string, loader lua.LGFunction) {
	s.modules[name] = loader
}

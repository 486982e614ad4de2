// Package lua provides the sandboxed Lua runtime used by plugin files.
//
// It wraps gopher-lua with:
//   - a State restricted to the base, table, string and math libraries
//   - a Sandbox that removes file loading and gates require
//   - per-call execution timeouts through the state's context
//   - table helpers for reading plugin declarations
//
// # State
//
//	state := lua.NewState(lua.WithExecutionTimeout(2 * time.Second))
//	defer state.Close()
//
//	state.RegisterFunc("language", declareLanguage)
//	if err := state.DoFile("python.lua"); err != nil {
//	    return err
//	}
//
// gopher-lua states are not goroutine-safe; State serializes every call
// with a mutex so plugin functions may be invoked from bus handlers.
package lua

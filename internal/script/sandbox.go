package script

import (
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"
)

// safeLibs are the only standard libraries a component script can reach.
var safeLibs = map[string]lua.LGFunction{
	lua.BaseLibName:   lua.OpenBase,
	lua.TabLibName:    lua.OpenTable,
	lua.StringLibName: lua.OpenString,
	lua.MathLibName:   lua.OpenMath,
}

// Base library functions that read or compile code from outside the script.
var unsafeBuiltins = []string{"dofile", "loadfile", "load", "loadstring"}

// newSandbox returns a Lua state for a component script. print writes to
// logger at info level, one message per call.
func newSandbox(logger zerolog.Logger) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for name, open := range safeLibs {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(open), NRet: 0, Protect: true}, lua.LString(name)); err != nil {
			logger.Error().Err(err).Str("lib", name).Msg("open lua library")
		}
	}
	for _, name := range unsafeBuiltins {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		args := make([]string, L.GetTop())
		for i := range args {
			args[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		logger.Info().Msg(strings.Join(args, "\t"))
		return 0
	}))
	return L
}

package script

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/tmt-csw/gocsw/pkg/event"
	"github.com/tmt-csw/gocsw/pkg/eventservice"
)

const publishTimeout = 5 * time.Second

// moduleContext holds what the csw module's functions need from Go.
type moduleContext struct {
	prefix    string
	publisher eventservice.Publisher // nil disables csw.publish
	logger    zerolog.Logger
}

// registerModule creates the global "csw" table.
func registerModule(L *lua.LState, ctx *moduleContext) {
	mod := L.NewTable()

	L.SetField(mod, "prefix", lua.LString(ctx.prefix))
	L.SetField(mod, "accepted", L.NewFunction(luaAccepted))
	L.SetField(mod, "completed", L.NewFunction(luaCompleted))
	L.SetField(mod, "error", L.NewFunction(luaError))
	L.SetField(mod, "invalid", L.NewFunction(luaInvalid))
	L.SetField(mod, "locked", L.NewFunction(luaLocked))
	L.SetField(mod, "started", L.NewFunction(luaStarted))
	L.SetField(mod, "param", L.NewFunction(luaParam))
	L.SetField(mod, "publish", L.NewFunction(ctx.luaPublish))
	L.SetField(mod, "log", L.NewFunction(ctx.luaLog))

	L.SetGlobal("csw", mod)
}

func responseTable(L *lua.LState, typ string) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "type", lua.LString(typ))
	return tbl
}

// csw.accepted()
func luaAccepted(L *lua.LState) int {
	L.Push(responseTable(L, "Accepted"))
	return 1
}

// csw.locked()
func luaLocked(L *lua.LState) int {
	L.Push(responseTable(L, "Locked"))
	return 1
}

// csw.completed([result])
func luaCompleted(L *lua.LState) int {
	tbl := responseTable(L, "Completed")
	if result := L.OptTable(1, nil); result != nil {
		L.SetField(tbl, "result", result)
	}
	L.Push(tbl)
	return 1
}

// csw.error(message)
func luaError(L *lua.LState) int {
	tbl := responseTable(L, "Error")
	L.SetField(tbl, "message", lua.LString(L.CheckString(1)))
	L.Push(tbl)
	return 1
}

// csw.invalid(issue, message)
func luaInvalid(L *lua.LState) int {
	tbl := responseTable(L, "Invalid")
	L.SetField(tbl, "issue", lua.LString(L.CheckString(1)))
	L.SetField(tbl, "message", lua.LString(L.CheckString(2)))
	L.Push(tbl)
	return 1
}

// csw.started(message, after_seconds, [next]) where next is a response
// table or a function(cmd) returning one.
func luaStarted(L *lua.LState) int {
	tbl := responseTable(L, "Started")
	L.SetField(tbl, "message", lua.LString(L.OptString(1, "")))
	L.SetField(tbl, "after", L.OptNumber(2, 0))
	switch next := L.Get(3).(type) {
	case *lua.LFunction, *lua.LTable:
		L.SetField(tbl, "next", next)
	case *lua.LNilType:
	default:
		L.ArgError(3, "expected a function or response table")
		return 0
	}
	L.Push(tbl)
	return 1
}

// csw.param(name, keyType, values, [units])
func luaParam(L *lua.LState) int {
	tbl := L.NewTable()
	L.SetField(tbl, "keyName", lua.LString(L.CheckString(1)))
	L.SetField(tbl, "keyType", lua.LString(L.CheckString(2)))
	L.SetField(tbl, "values", L.CheckTable(3))
	if units := L.OptString(4, ""); units != "" {
		L.SetField(tbl, "units", lua.LString(units))
	}
	L.Push(tbl)
	return 1
}

// csw.publish(event_name, params) publishes a SystemEvent under csw.prefix.
func (ctx *moduleContext) luaPublish(L *lua.LState) int {
	name := L.CheckString(1)
	params, err := paramsFromLua(L.CheckTable(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	if ctx.publisher == nil {
		L.RaiseError("publish %s: no event service", name)
		return 0
	}

	e := event.NewSystemEvent(ctx.prefix, name, params...)
	pctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := ctx.publisher.Publish(pctx, e); err != nil {
		L.RaiseError("publish %s: %s", e.Key(), err)
		return 0
	}

	ctx.logger.Debug().Str("key", e.Key()).Msg("published event")
	return 0
}

// csw.log(level, message)
func (ctx *moduleContext) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	message := L.CheckString(2)

	switch strings.ToLower(level) {
	case "debug":
		ctx.logger.Debug().Msg(message)
	case "warn":
		ctx.logger.Warn().Msg(message)
	case "error":
		ctx.logger.Error().Msg(message)
	default:
		ctx.logger.Info().Msg(message)
	}
	return 0
}

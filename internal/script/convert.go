package script

import (
	"encoding/json"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/param"
)

// GoToLua converts a decoded JSON value to an LValue.
func GoToLua(L *lua.LState, val any) lua.LValue {
	switch v := val.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(v)
	case float64:
		return lua.LNumber(v)
	case bool:
		return lua.LBool(v)
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range v {
			L.SetField(tbl, k, GoToLua(L, item))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for _, item := range v {
			tbl.Append(GoToLua(L, item))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// LuaToGo converts an LValue to a value json.Marshal accepts. A table whose
// keys are exactly 1..n becomes a slice, an empty table an empty slice, and
// any other table a map keyed by its string keys.
func LuaToGo(val lua.LValue) any {
	switch v := val.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		return tableToGo(v)
	default:
		return nil
	}
}

func tableToGo(tbl *lua.LTable) any {
	count := 0
	tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n := tbl.MaxN(); n == count {
		arr := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			arr = append(arr, LuaToGo(tbl.RawGetInt(i)))
		}
		return arr
	}

	m := make(map[string]any, count)
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			m[string(ks)] = LuaToGo(v)
		}
	})
	return m
}

// commandToLua builds the table handlers receive. Parameters are keyed by
// name and hold keyType, values and units in their wire form.
func commandToLua(L *lua.LState, cmd command.ControlCommand) (*lua.LTable, error) {
	tbl := L.NewTable()
	L.SetField(tbl, "runId", lua.LString(cmd.RunID))
	L.SetField(tbl, "commandName", lua.LString(cmd.CommandName))
	L.SetField(tbl, "prefix", lua.LString(cmd.Prefix))
	L.SetField(tbl, "kind", lua.LString(cmd.Kind))
	if cmd.MaybeObsID != "" {
		L.SetField(tbl, "obsId", lua.LString(cmd.MaybeObsID))
	}

	params := L.NewTable()
	for _, p := range cmd.ParamSet {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		var wire map[string]any
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, err
		}
		L.SetField(params, p.KeyName, GoToLua(L, wire))
	}
	L.SetField(tbl, "params", params)
	return tbl, nil
}

// paramsFromLua decodes a list of parameter tables through the JSON codec.
func paramsFromLua(val lua.LValue) (param.Set, error) {
	if val == lua.LNil {
		return nil, nil
	}
	if _, ok := val.(*lua.LTable); !ok {
		return nil, fmt.Errorf("result must be a list of parameters, got %s", val.Type())
	}
	data, err := json.Marshal(LuaToGo(val))
	if err != nil {
		return nil, err
	}
	var set param.Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return set, nil
}

// reply is a handler's answer. For Started, the task waits after and then
// takes its final response from next, or final, or completes.
type reply struct {
	resp  command.Response
	after time.Duration
	next  *lua.LFunction
	final command.Response
}

func parseResponse(val lua.LValue, runID string) (reply, error) {
	tbl, ok := val.(*lua.LTable)
	if !ok {
		return reply{}, fmt.Errorf("handler returned %s, want a response table", val.Type())
	}
	message := lua.LVAsString(tbl.RawGetString("message"))

	switch typ := command.ResponseType(lua.LVAsString(tbl.RawGetString("type"))); typ {
	case command.TypeAccepted:
		return reply{resp: command.Accepted{RunID: runID}}, nil
	case command.TypeLocked:
		return reply{resp: command.Locked{RunID: runID}}, nil
	case command.TypeError:
		return reply{resp: command.Error{RunID: runID, Message: message}}, nil
	case command.TypeInvalid:
		kind := command.IssueKind(lua.LVAsString(tbl.RawGetString("issue")))
		if !kind.Known() {
			kind = command.OtherIssue
		}
		return reply{resp: command.Invalid{RunID: runID, Issue: command.NewIssue(kind, message)}}, nil
	case command.TypeCompleted:
		params, err := paramsFromLua(tbl.RawGetString("result"))
		if err != nil {
			return reply{}, fmt.Errorf("completed result: %w", err)
		}
		c := command.Completed{RunID: runID}
		if len(params) > 0 {
			c.Result = command.NewResult(params...)
		}
		return reply{resp: c}, nil
	case command.TypeStarted:
		r := reply{
			resp:  command.Started{RunID: runID, Message: message},
			after: time.Duration(float64(lua.LVAsNumber(tbl.RawGetString("after"))) * float64(time.Second)),
		}
		switch next := tbl.RawGetString("next").(type) {
		case *lua.LFunction:
			r.next = next
		case *lua.LTable:
			final, err := parseResponse(next, runID)
			if err != nil {
				return reply{}, fmt.Errorf("started next: %w", err)
			}
			r.final = final.resp
		}
		return r, nil
	default:
		return reply{}, fmt.Errorf("unknown response type %q", typ)
	}
}

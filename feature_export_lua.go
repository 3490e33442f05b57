// feature_export_lua.go - Feature export through a user Lua script

package main

import (
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"
)

// LuaExporter runs a script defining
//
//	function export(channel, instructions) return { name = {ints...}, ... } end
//
// Each instruction is a table with on, pitch, duty, volume, period and short
// fields as relevant to its channel.
type LuaExporter struct {
	source string
	name   string
}

// NewLuaExporter loads a script from disk.
func NewLuaExporter(path string) (*LuaExporter, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading export script: %w", err)
	}
	return &LuaExporter{source: string(src), name: path}, nil
}

// NewLuaExporterFromString wraps an in-memory script.
func NewLuaExporterFromString(src string) *LuaExporter {
	return &LuaExporter{source: src, name: "<script>"}
}

// Export runs the script in a fresh interpreter for each call.
func (e *LuaExporter) Export(ch Channel, instrs []Instruction) (ChannelFeatures, error) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(e.source); err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	fn := L.GetGlobal("export")
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%s: no export function defined", e.name)
	}

	list := L.NewTable()
	for _, instr := range instrs {
		list.Append(instructionTable(L, instr))
	}
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(ch.String()), list); err != nil {
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s: export returned %s, want table", e.name, ret.Type())
	}
	out := ChannelFeatures{}
	var convErr error
	tbl.ForEach(func(k, v lua.LValue) {
		if convErr != nil {
			return
		}
		arr, ok := v.(*lua.LTable)
		if !ok {
			convErr = fmt.Errorf("%s: feature %s is %s, want array", e.name, k.String(), v.Type())
			return
		}
		vals := make([]int, arr.Len())
		for i := range vals {
			n, ok := arr.RawGetInt(i + 1).(lua.LNumber)
			if !ok {
				convErr = fmt.Errorf("%s: feature %s[%d] is not a number", e.name, k.String(), i+1)
				return
			}
			vals[i] = int(n)
		}
		out[k.String()] = vals
	})
	if convErr != nil {
		return nil, convErr
	}
	return out, nil
}

func instructionTable(L *lua.LState, instr Instruction) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "on", lua.LBool(instr.IsOn()))
	switch i := instr.(type) {
	case PulseInstruction:
		L.SetField(t, "pitch", lua.LNumber(i.Pitch))
		L.SetField(t, "duty", lua.LNumber(i.Duty))
		L.SetField(t, "volume", lua.LNumber(i.Volume))
	case TriangleInstruction:
		L.SetField(t, "pitch", lua.LNumber(i.Pitch))
		L.SetField(t, "volume", lua.LNumber(instructionVolume(i)))
	case NoiseInstruction:
		L.SetField(t, "period", lua.LNumber(i.Period))
		L.SetField(t, "volume", lua.LNumber(i.Volume))
		L.SetField(t, "short", lua.LBool(i.Short))
	}
	return t
}

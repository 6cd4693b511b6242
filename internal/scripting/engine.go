package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/xmath"
)

// Engine wraps a single gopher-lua VM. Single-goroutine access only: the
// script component calls it from a PreAsync update function.
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from dir. Scripts in
// dir/lib are loaded first so object scripts can use them.
func NewEngine(dir string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	for _, d := range []string{filepath.Join(dir, "lib"), dir} {
		if err := e.loadDir(d); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// NewEngineFromSource creates an engine running src as its only script.
func NewEngineFromSource(src string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	if err := e.DoString(src); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func newEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{SkipOpenLibs: false})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	e := &Engine{vm: vm, log: log}
	vm.SetGlobal("log", vm.NewFunction(e.luaLog))
	return e
}

// loadDir loads all .lua files in a directory, skipping missing ones.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read script dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua in the engine's global state.
func (e *Engine) DoString(src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("run lua chunk: %w", err)
	}
	return nil
}

// HasFunction reports whether name is a global Lua function.
func (e *Engine) HasFunction(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

func (e *Engine) luaLog(L *lua.LState) int {
	msg := L.CheckString(1)
	e.log.Info("lua", zap.String("msg", msg))
	return 0
}

// ObjectContext is the view of an object handed to an object script.
type ObjectContext struct {
	Name     string
	Position xmath.Vec3
	Time     float64 // world clock, seconds
	DT       float64 // seconds
	Frame    uint64
	Seed     uint32
	Message  string // set when the call delivers a message
}

// ObjectResult holds the changes an object script asks for. Nil fields
// leave the object untouched.
type ObjectResult struct {
	Position *xmath.Vec3
	Active   *bool
	Delete   bool
}

// CallObject calls the global function fn(ctx) and decodes its result.
// A missing function or a Lua error is logged and reported as false.
func (e *Engine) CallObject(fn string, ctx ObjectContext) (ObjectResult, bool) {
	f, ok := e.vm.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		e.log.Error("lua function not found", zap.String("func", fn))
		return ObjectResult{}, false
	}

	t := e.vm.NewTable()
	t.RawSetString("name", lua.LString(ctx.Name))
	t.RawSetString("x", lua.LNumber(ctx.Position.X))
	t.RawSetString("y", lua.LNumber(ctx.Position.Y))
	t.RawSetString("z", lua.LNumber(ctx.Position.Z))
	t.RawSetString("time", lua.LNumber(ctx.Time))
	t.RawSetString("dt", lua.LNumber(ctx.DT))
	t.RawSetString("frame", lua.LNumber(ctx.Frame))
	t.RawSetString("seed", lua.LNumber(ctx.Seed))
	if ctx.Message != "" {
		t.RawSetString("message", lua.LString(ctx.Message))
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      f,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua call error", zap.String("func", fn), zap.String("object", ctx.Name), zap.Error(err))
		return ObjectResult{}, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	rt, ok := result.(*lua.LTable)
	if !ok {
		// nil means "no changes"
		return ObjectResult{}, result == lua.LNil
	}

	var out ObjectResult
	if x, y, z := rt.RawGetString("x"), rt.RawGetString("y"), rt.RawGetString("z"); x != lua.LNil || y != lua.LNil || z != lua.LNil {
		p := ctx.Position
		if x != lua.LNil {
			p.X = lNum(rt, "x")
		}
		if y != lua.LNil {
			p.Y = lNum(rt, "y")
		}
		if z != lua.LNil {
			p.Z = lNum(rt, "z")
		}
		out.Position = &p
	}
	if v := rt.RawGetString("active"); v != lua.LNil {
		active := lua.LVAsBool(v)
		out.Active = &active
	}
	out.Delete = lua.LVAsBool(rt.RawGetString("delete"))
	return out, true
}

// CallNumber calls a Lua function with numeric args and returns a number.
func (e *Engine) CallNumber(name string, args ...float64) (float64, error) {
	fn, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return 0, fmt.Errorf("lua function %s not found", name)
	}

	lArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		lArgs[i] = lua.LNumber(a)
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lArgs...); err != nil {
		return 0, fmt.Errorf("call %s: %w", name, err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)
	return float64(lua.LVAsNumber(result)), nil
}

// lNum reads a numeric field from a Lua table.
func lNum(t *lua.LTable, key string) float32 {
	return float32(lua.LVAsNumber(t.RawGetString(key)))
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

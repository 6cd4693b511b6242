package component

import (
	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/scripting"
)

// Script calls the global Lua function Function(ctx) once per simulated
// frame for its owner. See scripting.ObjectContext for what ctx holds.
type Script struct {
	ecs.ComponentBase
	Function string `yaml:"function"`
}

// ScriptMessage is delivered to Function with ctx.message set.
type ScriptMessage struct {
	Name string
}

// ScriptManager stores Script components and owns the engine they call.
type ScriptManager struct {
	*ecs.Manager[Script, *Script]
	engine *scripting.Engine
}

func newScriptManager(w *ecs.World, info *ecs.TypeInfo, engine *scripting.Engine) *ScriptManager {
	m := &ScriptManager{Manager: ecs.NewManager[Script](w, info), engine: engine}
	if engine == nil {
		w.Logger().Warn("script components are disabled, no scripting engine configured")
		return m
	}
	m.RegisterUpdateFunction(ecs.UpdateFunctionDesc{
		Name:               "script.update",
		Phase:              ecs.PhasePreAsync,
		OnlyWhenSimulating: true,
		Func: func(ctx ecs.UpdateContext) {
			// Scripts may delete objects; collect first so the iteration
			// does not observe its own changes.
			var active []*Script
			m.EachActive(func(s *Script) bool {
				active = append(active, s)
				return true
			})
			for _, s := range active {
				if s.IsActiveAndInitialized() {
					m.run(s, "")
				}
			}
		},
	})
	return m
}

func (s *Script) Initialize() {
	m, _ := s.Manager().(*ScriptManager)
	if m == nil || m.engine == nil {
		return
	}
	if s.Function != "" && !m.engine.HasFunction(s.Function) {
		s.World().Logger().Warn("script function does not exist",
			zap.String("function", s.Function), zap.Stringer("object", s.Owner().ID))
	}
}

func (s *Script) HandleMessage(msg any) {
	sm, ok := msg.(ScriptMessage)
	if !ok {
		return
	}
	if m, _ := s.Manager().(*ScriptManager); m != nil && m.engine != nil {
		m.run(s, sm.Name)
	}
}

func (m *ScriptManager) run(s *Script, message string) {
	if s.Function == "" {
		return
	}
	w := m.World()
	obj, ok := w.TryGetObject(s.Owner())
	if !ok {
		return
	}
	res, ok := m.engine.CallObject(s.Function, scripting.ObjectContext{
		Name:     obj.Name(),
		Position: obj.GlobalPosition(),
		Time:     w.Clock().Seconds(),
		DT:       w.DeltaTime().Seconds(),
		Frame:    w.FrameCounter(),
		Seed:     obj.StableRandomSeed(),
		Message:  message,
	})
	if !ok {
		return
	}
	if res.Delete {
		w.DeleteObject(obj.Handle())
		return
	}
	if res.Position != nil {
		obj.SetGlobalPosition(*res.Position)
	}
	if res.Active != nil {
		obj.SetActiveFlag(*res.Active)
	}
}

func (s *Script) Serialize(w ecs.ComponentWriter) {
	w.Stream().WriteString(s.Function)
}

func (s *Script) Deserialize(r ecs.ComponentReader) {
	s.Function = r.Stream().ReadString()
}

package component

import (
	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/xmath"
)

// Follow moves its owner towards Target's global position plus Offset.
// Targets are sampled in the async phase and the moves applied after it.
type Follow struct {
	ecs.ComponentBase
	Target ecs.ObjectHandle `yaml:"-"`
	Offset xmath.Vec3       `yaml:"offset"`
	Speed  float32          `yaml:"speed"` // units per second, 0 snaps

	goal    xmath.Vec3
	hasGoal bool
}

type FollowManager = ecs.Manager[Follow, *Follow]

// followGranularity is the number of followers sampled per async task.
const followGranularity = 256

func newFollowManager(w *ecs.World, info *ecs.TypeInfo) ecs.ComponentManager {
	m := ecs.NewManager[Follow](w, info)
	m.RegisterUpdateFunction(ecs.UpdateFunctionDesc{
		Name:        "follow.sample",
		Phase:       ecs.PhaseAsync,
		Granularity: followGranularity,
		Func: func(ctx ecs.UpdateContext) {
			m.Range(ctx.FirstIndex, ctx.Count, func(f *Follow) {
				f.sample(ctx.World)
			})
		},
	})
	m.RegisterUpdateFunction(ecs.UpdateFunctionDesc{
		Name:      "follow.apply",
		Phase:     ecs.PhasePostAsync,
		DependsOn: []string{"follow.sample"},
		Func: func(ctx ecs.UpdateContext) {
			dt := float32(ctx.DT.Seconds())
			m.EachActive(func(f *Follow) bool {
				f.apply(ctx.World, dt)
				return true
			})
		},
	})
	return m
}

// sample only reads the world and writes the component itself, so it is
// safe to run concurrently with other followers.
func (f *Follow) sample(w *ecs.World) {
	f.hasGoal = false
	target, ok := w.TryGetObject(f.Target)
	if !ok {
		return
	}
	f.goal = target.GlobalPosition().Add(f.Offset)
	f.hasGoal = true
}

func (f *Follow) apply(w *ecs.World, dt float32) {
	if !f.hasGoal {
		return
	}
	f.hasGoal = false
	obj, ok := w.TryGetObject(f.Owner())
	if !ok {
		return
	}
	pos := obj.GlobalPosition()
	to := f.goal.Sub(pos)
	if f.Speed > 0 {
		if step := f.Speed * dt; to.Length() > step {
			to = to.Normalized().Mul(step)
		}
	}
	if to == (xmath.Vec3{}) {
		return
	}
	obj.SetGlobalPosition(pos.Add(to))
}

func (f *Follow) Serialize(w ecs.ComponentWriter) {
	w.WriteObjectRef(f.Target)
	s := w.Stream()
	s.WriteVec3(f.Offset)
	s.WriteF32(f.Speed)
}

func (f *Follow) Deserialize(r ecs.ComponentReader) {
	f.Target = r.ReadObjectRef()
	s := r.Stream()
	f.Offset = s.ReadVec3()
	f.Speed = s.ReadF32()
}

package component

import (
	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/xmath"
)

// Rotator spins its owner around Axis, in the parent's space.
type Rotator struct {
	ecs.ComponentBase
	Axis  xmath.Vec3 `yaml:"axis"`
	Speed float32    `yaml:"speed"` // radians per second
}

type RotatorManager = ecs.Manager[Rotator, *Rotator]

func newRotatorManager(w *ecs.World, info *ecs.TypeInfo) ecs.ComponentManager {
	m := ecs.NewManager[Rotator](w, info)
	m.RegisterUpdateFunction(ecs.UpdateFunctionDesc{
		Name:               "rotator.update",
		Phase:              ecs.PhasePreAsync,
		OnlyWhenSimulating: true,
		Func: func(ctx ecs.UpdateContext) {
			dt := float32(ctx.DT.Seconds())
			m.EachActive(func(r *Rotator) bool {
				r.step(ctx.World, dt)
				return true
			})
		},
	})
	return m
}

func (r *Rotator) step(w *ecs.World, dt float32) {
	if r.Speed == 0 || dt == 0 {
		return
	}
	obj, ok := w.TryGetObject(r.Owner())
	if !ok {
		return
	}
	axis := r.Axis.Normalized()
	if axis == (xmath.Vec3{}) {
		axis = xmath.V3(0, 0, 1)
	}
	delta := xmath.QuatFromAxisAngle(axis, r.Speed*dt)
	obj.SetLocalRotation(delta.Mul(obj.LocalRotation()).Normalized())
}

func (r *Rotator) Serialize(w ecs.ComponentWriter) {
	s := w.Stream()
	s.WriteVec3(r.Axis)
	s.WriteF32(r.Speed)
}

func (r *Rotator) Deserialize(rd ecs.ComponentReader) {
	s := rd.Stream()
	r.Axis = s.ReadVec3()
	r.Speed = s.ReadF32()
}

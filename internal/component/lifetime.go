package component

import (
	"time"

	"github.com/hmcore/world/internal/core/ecs"
)

// Lifetime deletes its owner, with the whole subtree, once Remaining has
// run out. The countdown only runs while the world simulates.
type Lifetime struct {
	ecs.ComponentBase
	Remaining time.Duration `yaml:"remaining"`
	// DeleteEmptyParents also removes parents left without children or
	// components.
	DeleteEmptyParents bool `yaml:"delete_empty_parents"`
}

type LifetimeManager = ecs.Manager[Lifetime, *Lifetime]

func newLifetimeManager(w *ecs.World, info *ecs.TypeInfo) ecs.ComponentManager {
	m := ecs.NewManager[Lifetime](w, info)
	m.RegisterUpdateFunction(ecs.UpdateFunctionDesc{
		Name:               "lifetime.update",
		Phase:              ecs.PhasePostAsync,
		OnlyWhenSimulating: true,
		Func: func(ctx ecs.UpdateContext) {
			var expired []*Lifetime
			m.EachActive(func(l *Lifetime) bool {
				l.Remaining -= ctx.DT
				if l.Remaining <= 0 {
					expired = append(expired, l)
				}
				return true
			})
			for _, l := range expired {
				if l.DeleteEmptyParents {
					ctx.World.DeleteObjectAndEmptyParents(l.Owner())
				} else {
					ctx.World.DeleteObject(l.Owner())
				}
			}
		},
	})
	return m
}

func (l *Lifetime) Serialize(w ecs.ComponentWriter) {
	s := w.Stream()
	s.WriteU64(uint64(l.Remaining))
	s.WriteBool(l.DeleteEmptyParents)
}

func (l *Lifetime) Deserialize(r ecs.ComponentReader) {
	s := r.Stream()
	l.Remaining = time.Duration(s.ReadU64())
	l.DeleteEmptyParents = s.ReadBool()
}

package component

import (
	"fmt"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/scripting"
)

// Registered type names. They are stored in snapshots, so renaming one
// orphans saved data.
const (
	RotatorType  = "rotator"
	LifetimeType = "lifetime"
	FollowType   = "follow"
	ScriptType   = "script"
)

// Env carries host services component managers need.
type Env struct {
	Scripts *scripting.Engine // nil disables script components
}

// RegisterAll registers every component type of this package.
func RegisterAll(reg *ecs.TypeRegistry, env Env) error {
	types := []struct {
		name    string
		version uint32
		factory ecs.ManagerFactory
	}{
		{RotatorType, 1, newRotatorManager},
		{LifetimeType, 1, newLifetimeManager},
		{FollowType, 1, newFollowManager},
		{ScriptType, 1, func(w *ecs.World, info *ecs.TypeInfo) ecs.ComponentManager {
			return newScriptManager(w, info, env.Scripts)
		}},
	}
	for _, t := range types {
		if _, err := reg.Register(t.name, t.version, t.factory); err != nil {
			return fmt.Errorf("register %s: %w", t.name, err)
		}
	}
	return nil
}

// managerOf returns the manager for the registered type name, creating it
// on first use. The world must be write-locked.
func managerOf[M ecs.ComponentManager](w *ecs.World, name string) M {
	info, ok := w.Registry().Lookup(name)
	if !ok {
		panic(fmt.Sprintf("component type %q is not registered", name))
	}
	return ecs.ManagerOf[M](w, info)
}

func Rotators(w *ecs.World) *RotatorManager   { return managerOf[*RotatorManager](w, RotatorType) }
func Lifetimes(w *ecs.World) *LifetimeManager { return managerOf[*LifetimeManager](w, LifetimeType) }
func Follows(w *ecs.World) *FollowManager     { return managerOf[*FollowManager](w, FollowType) }
func Scripts(w *ecs.World) *ScriptManager     { return managerOf[*ScriptManager](w, ScriptType) }

package component

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/xmath"
	"github.com/hmcore/world/internal/scripting"
	"github.com/hmcore/world/internal/worldfile"
)

const frame = 100 * time.Millisecond

func newWorld(t *testing.T, env Env) *ecs.World {
	t.Helper()
	reg := ecs.NewTypeRegistry()
	require.NoError(t, RegisterAll(reg, env))
	w := ecs.NewWorld(ecs.WorldDesc{Name: t.Name(), Registry: reg, Workers: 2, RandomSeed: 1, Simulate: true})
	t.Cleanup(w.Close)
	return w
}

func write(w *ecs.World, fn func()) {
	w.Lock()
	defer w.Unlock()
	fn()
}

func object(t *testing.T, w *ecs.World, h ecs.ObjectHandle) *ecs.GameObject {
	t.Helper()
	w.RLock()
	defer w.RUnlock()
	obj, ok := w.TryGetObject(h)
	require.True(t, ok)
	return obj
}

func TestRegisterAllTwiceFails(t *testing.T) {
	reg := ecs.NewTypeRegistry()
	require.NoError(t, RegisterAll(reg, Env{}))
	assert.ErrorIs(t, RegisterAll(reg, Env{}), ecs.ErrTypeRegistered)
	assert.Len(t, reg.Types(), 4)
}

func TestRotator(t *testing.T) {
	w := newWorld(t, Env{})
	var h ecs.ObjectHandle
	write(w, func() {
		h = w.CreateObject(ecs.ObjectDesc{Name: "fan", Dynamic: true})
		_, r := Rotators(w).Create(h)
		r.Axis = xmath.V3(0, 0, 2)
		r.Speed = math.Pi
	})
	for i := 0; i < 5; i++ {
		w.Update(frame)
	}
	want := xmath.QuatFromAxisAngle(xmath.V3(0, 0, 1), math.Pi/2)
	assert.True(t, object(t, w, h).LocalRotation().ApproxEqual(want, 1e-4))

	write(w, func() { w.SetSimulation(false) })
	w.Update(frame)
	assert.True(t, object(t, w, h).LocalRotation().ApproxEqual(want, 1e-4), "paused worlds do not rotate")
}

func TestLifetimeDeletesOwner(t *testing.T) {
	w := newWorld(t, Env{})
	var parent, child ecs.ObjectHandle
	write(w, func() {
		parent = w.CreateObject(ecs.ObjectDesc{Name: "group"})
		child = w.CreateObject(ecs.ObjectDesc{Name: "spark", Parent: parent})
		_, l := Lifetimes(w).Create(child)
		l.Remaining = 250 * time.Millisecond
		l.DeleteEmptyParents = true
	})
	w.Update(frame)
	w.Update(frame)
	assert.Equal(t, 2, w.ObjectCount())
	w.Update(frame)

	w.RLock()
	defer w.RUnlock()
	assert.False(t, w.IsValidObject(child))
	assert.False(t, w.IsValidObject(parent), "the emptied parent goes too")
	assert.Zero(t, w.ObjectCount())
}

func TestFollow(t *testing.T) {
	w := newWorld(t, Env{})
	var leader, slow ecs.ObjectHandle
	followers := make([]ecs.ObjectHandle, 600)
	write(w, func() {
		leader = w.CreateObject(ecs.ObjectDesc{Name: "leader", LocalPosition: xmath.V3(10, 0, 0), Dynamic: true})
		for i := range followers {
			followers[i] = w.CreateObject(ecs.ObjectDesc{Name: "follower", Dynamic: true})
			_, f := Follows(w).Create(followers[i])
			f.Target = leader
			f.Offset = xmath.V3(0, 1, 0)
		}
		slow = w.CreateObject(ecs.ObjectDesc{Name: "slow", Dynamic: true})
		_, f := Follows(w).Create(slow)
		f.Target = leader
		f.Speed = 10
	})
	w.Update(frame)
	w.Update(frame)

	for _, h := range []ecs.ObjectHandle{followers[0], followers[599]} {
		assert.True(t, object(t, w, h).GlobalPosition().ApproxEqual(xmath.V3(10, 1, 0), xmath.Epsilon))
	}
	assert.True(t, object(t, w, slow).GlobalPosition().ApproxEqual(xmath.V3(2, 0, 0), xmath.Epsilon), "speed limits the step")

	write(w, func() { w.DeleteObject(leader) })
	w.Update(frame)
	assert.True(t, object(t, w, slow).GlobalPosition().ApproxEqual(xmath.V3(2, 0, 0), xmath.Epsilon), "followers of a deleted target stay put")
}

const driftScript = `
function drift(ctx)
  if ctx.message == "hide" then
    return { active = false }
  end
  if ctx.frame >= 4 then
    return { delete = true }
  end
  return { x = ctx.x + 1 }
end
`

func TestScript(t *testing.T) {
	engine, err := scripting.NewEngineFromSource(driftScript, nil)
	require.NoError(t, err)
	defer engine.Close()

	w := newWorld(t, Env{Scripts: engine})
	var a, b ecs.ObjectHandle
	write(w, func() {
		a = w.CreateObject(ecs.ObjectDesc{Name: "a", Dynamic: true})
		b = w.CreateObject(ecs.ObjectDesc{Name: "b", Dynamic: true})
		for _, h := range []ecs.ObjectHandle{a, b} {
			_, s := Scripts(w).Create(h)
			s.Function = "drift"
		}
	})
	w.Update(frame)
	w.Update(frame)
	assert.Equal(t, float32(2), object(t, w, a).GlobalPosition().X)

	write(w, func() { assert.True(t, w.SendMessage(b, ScriptMessage{Name: "hide"})) })
	w.Update(frame)
	assert.False(t, object(t, w, b).ActiveFlag())
	assert.Equal(t, float32(3), object(t, w, a).GlobalPosition().X)

	w.Update(frame)
	w.RLock()
	defer w.RUnlock()
	assert.False(t, w.IsValidObject(a), "drift deletes its owner on frame 4")
	assert.True(t, w.IsValidObject(b), "inactive scripts do not run")
}

func TestScriptWithoutEngine(t *testing.T) {
	w := newWorld(t, Env{})
	var h ecs.ObjectHandle
	write(w, func() {
		h = w.CreateObject(ecs.ObjectDesc{Name: "idle"})
		_, s := Scripts(w).Create(h)
		s.Function = "drift"
	})
	w.Update(frame)
	assert.Equal(t, xmath.Vec3{}, object(t, w, h).GlobalPosition())
}

func TestComponentsSurviveSnapshots(t *testing.T) {
	src := newWorld(t, Env{})
	write(src, func() {
		leader := src.CreateObject(ecs.ObjectDesc{Name: "leader", Dynamic: true})
		_, r := Rotators(src).Create(leader)
		r.Axis, r.Speed = xmath.V3(0, 1, 0), 0.5
		_, l := Lifetimes(src).Create(leader)
		l.Remaining = time.Minute

		pet := src.CreateObject(ecs.ObjectDesc{Name: "pet", Dynamic: true})
		_, f := Follows(src).Create(pet)
		f.Target, f.Offset, f.Speed = leader, xmath.V3(-1, 0, 0), 3
		_, s := Scripts(src).Create(pet)
		s.Function = "wag"
	})
	var first bytes.Buffer
	require.NoError(t, worldfile.NewWriter(nil).WriteWorld(&first, src, ecs.TagSet{}))

	dst := newWorld(t, Env{})
	r := worldfile.NewReader(dst.Registry(), nil)
	require.NoError(t, r.ReadDescriptionBytes(first.Bytes()))
	r.InstantiateWorld(dst, nil, 0, nil)

	var second bytes.Buffer
	require.NoError(t, worldfile.NewWriter(nil).WriteWorld(&second, dst, ecs.TagSet{}))
	assert.Equal(t, first.Bytes(), second.Bytes())

	dst.RLock()
	defer dst.RUnlock()
	var pet *ecs.GameObject
	dst.Traverse(ecs.DepthFirst, func(obj *ecs.GameObject) ecs.VisitResult {
		if obj.Name() == "pet" {
			pet = obj
		}
		return ecs.Continue
	})
	require.NotNil(t, pet)
	_, f, ok := ecs.FindComponent[Follow](dst, pet.Handle())
	require.True(t, ok)
	target, ok := dst.TryGetObject(f.Target)
	require.True(t, ok)
	assert.Equal(t, "leader", target.Name())
	assert.Equal(t, float32(3), f.Speed)
}

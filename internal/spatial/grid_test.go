package spatial

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/xmath"
)

func handle(i uint32) ecs.ObjectHandle {
	return ecs.ObjectHandle{ID: ecs.MakeID(i, 1, 0, 0)}
}

func TestGridQueryRadius(t *testing.T) {
	g := NewGrid(4)
	g.UpdateObject(handle(1), xmath.V3(0, 0, 0))
	g.UpdateObject(handle(2), xmath.V3(3, 0, 0))
	g.UpdateObject(handle(3), xmath.V3(-5, 0, 0))
	g.UpdateObject(handle(4), xmath.V3(0, 0, 20))

	assert.Equal(t, []ecs.ObjectHandle{handle(1), handle(2)}, g.QueryRadius(xmath.V3(0.5, 0, 0), 3))
	assert.Equal(t, []ecs.ObjectHandle{handle(3), handle(1), handle(2)}, g.QueryRadius(xmath.V3(-4, 0, 0), 7.5))
	assert.Empty(t, g.QueryRadius(xmath.V3(100, 100, 100), 10))

	g.UpdateObject(handle(4), xmath.V3(1, 1, 0))
	assert.Contains(t, g.QueryRadius(xmath.Zero3(), 2), handle(4))
	pos, ok := g.Position(handle(4))
	require.True(t, ok)
	assert.Equal(t, xmath.V3(1, 1, 0), pos)

	g.RemoveObject(handle(4))
	g.RemoveObject(handle(99))
	assert.Equal(t, 3, g.Len())
	assert.NotContains(t, g.QueryRadius(xmath.Zero3(), 2), handle(4))
}

func TestGridTracksWorldObjects(t *testing.T) {
	g := NewGrid(8)
	w := ecs.NewWorld(ecs.WorldDesc{Name: "grid", Registry: ecs.NewTypeRegistry(), Spatial: g, Simulate: true})
	defer w.Close()

	w.Lock()
	base := w.CreateObject(ecs.ObjectDesc{Name: "base", LocalPosition: xmath.V3(10, 0, 0)})
	mover := w.CreateObject(ecs.ObjectDesc{Name: "mover", Parent: base, LocalPosition: xmath.V3(0, 5, 0), Dynamic: true})
	w.Unlock()
	w.Update(16 * time.Millisecond)

	pos, ok := g.Position(mover)
	require.True(t, ok)
	assert.Equal(t, xmath.V3(10, 5, 0), pos)
	assert.Equal(t, []ecs.ObjectHandle{mover, base}, g.QueryRadius(xmath.V3(10, 6, 0), 10))

	w.Lock()
	w.DeleteObject(mover)
	w.Unlock()
	w.Update(16 * time.Millisecond)
	_, ok = g.Position(mover)
	assert.False(t, ok)
	assert.Equal(t, 1, g.Len())
}

func TestSphereCoordinateSystem(t *testing.T) {
	s := Sphere{Center: xmath.V3(0, 0, -100)}
	cs := s.CoordinateSystem(xmath.Zero3())
	assert.True(t, cs.Up.ApproxEqual(xmath.V3(0, 0, 1), xmath.Epsilon))
	assert.True(t, cs.Forward.ApproxEqual(xmath.V3(1, 0, 0), xmath.Epsilon))
	assert.True(t, cs.Right.ApproxEqual(xmath.V3(0, 1, 0), xmath.Epsilon))

	cs = s.CoordinateSystem(xmath.V3(100, 0, -100))
	assert.True(t, cs.Up.ApproxEqual(xmath.V3(1, 0, 0), xmath.Epsilon))
	assert.True(t, cs.Forward.ApproxEqual(xmath.V3(0, 1, 0), xmath.Epsilon))

	assert.Equal(t, ecs.DefaultCoordinateSystem(), s.CoordinateSystem(s.Center))
}

package ecs

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcore/world/internal/core/xmath"
)

const pairs = 2000

// spawnPairs creates pairs of a dynamic root at (i,0,0) and a child at
// local (0,1,0).
func spawnPairs(f *fixture) (roots, children []ObjectHandle) {
	roots = make([]ObjectHandle, pairs)
	children = make([]ObjectHandle, pairs)
	f.write(func(w *World) {
		for i := range roots {
			roots[i] = w.CreateObject(ObjectDesc{Name: "root", LocalPosition: xmath.V3(float32(i), 0, 0), Dynamic: true})
			children[i] = w.CreateObject(ObjectDesc{Name: "child", Parent: roots[i], LocalPosition: xmath.V3(0, 1, 0)})
		}
	})
	return roots, children
}

func TestPropagationAcrossBlocksInParallel(t *testing.T) {
	f := newFixture(t)
	roots, children := spawnPairs(f)
	f.world.Update(frame)

	dyn := f.world.hierarchies[dynamicHierarchy]
	require.Equal(t, 2, dyn.depth())
	require.Greater(t, dyn.levels[1].BlockCount(), 1, "children span several blocks")

	f.write(func(*World) {
		for i, h := range roots {
			f.object(t, h).SetLocalPosition(xmath.V3(float32(i), 0, 5))
		}
	})
	f.world.Update(frame)

	for i, h := range children {
		pos := f.object(t, h).GlobalPosition()
		require.True(t, pos.ApproxEqual(xmath.V3(float32(i), 1, 5), xmath.Epsilon), "child %d at %v", i, pos)
	}
}

// serialIndex records positions and notices overlapping calls.
type serialIndex struct {
	inFlight  atomic.Int32
	overlap   atomic.Bool
	positions map[ObjectHandle]xmath.Vec3
}

func (s *serialIndex) UpdateObject(h ObjectHandle, pos xmath.Vec3) {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	s.positions[h] = pos
	s.inFlight.Add(-1)
}

func (s *serialIndex) RemoveObject(h ObjectHandle) { delete(s.positions, h) }

func TestPropagationWithSpatialIndexIsSerial(t *testing.T) {
	idx := &serialIndex{positions: make(map[ObjectHandle]xmath.Vec3)}
	f := newFixture(t, func(d *WorldDesc) { d.Spatial = idx })
	_, children := spawnPairs(f)
	f.world.Update(frame)

	require.Greater(t, f.world.hierarchies[dynamicHierarchy].levels[1].BlockCount(), 1)
	assert.False(t, idx.overlap.Load(), "the index is never called concurrently")
	assert.Len(t, idx.positions, 2*pairs)
	assert.True(t, idx.positions[children[pairs-1]].ApproxEqual(xmath.V3(pairs-1, 1, 0), xmath.Epsilon))
}

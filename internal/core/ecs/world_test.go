package ecs

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcore/world/internal/core/xmath"
)

func TestChildGlobalPositionFollowsParent(t *testing.T) {
	f := newFixture(t)
	var a, b ObjectHandle
	f.write(func(w *World) {
		a = w.CreateObject(ObjectDesc{Name: "A", LocalPosition: xmath.V3(1, 0, 0), Dynamic: true})
		b = w.CreateObject(ObjectDesc{Name: "B", Parent: a, LocalPosition: xmath.V3(0, 1, 0)})
	})
	f.world.Update(frame)

	f.write(func(w *World) {
		obj := f.object(t, b)
		assert.True(t, obj.IsDynamic(), "children of dynamic parents are dynamic")
		assert.Equal(t, 1, obj.Level())
		assert.True(t, obj.GlobalPosition().ApproxEqual(xmath.V3(1, 1, 0), xmath.Epsilon), obj.GlobalPosition())

		require.True(t, w.DeleteObject(a))
		assert.False(t, w.IsValidObject(a))
		assert.False(t, w.IsValidObject(b), "deleting a parent deletes its children")
		assert.False(t, w.DeleteObject(a))
	})
	f.world.Update(frame)
	assert.Zero(t, f.world.ObjectCount())
}

func TestThreeLevelTransformChain(t *testing.T) {
	f := newFixture(t)
	var c ObjectHandle
	f.write(func(w *World) {
		a := w.CreateObject(ObjectDesc{
			Name:          "A",
			LocalPosition: xmath.V3(1, 0, 0),
			LocalRotation: xmath.QuatFromAxisAngle(xmath.V3(0, 0, 1), math.Pi/2),
			Dynamic:       true,
		})
		b := w.CreateObject(ObjectDesc{Name: "B", Parent: a, LocalPosition: xmath.V3(1, 0, 0), LocalUniformScale: 2})
		c = w.CreateObject(ObjectDesc{Name: "C", Parent: b, LocalPosition: xmath.V3(1, 0, 0)})
	})
	f.world.Update(frame)

	obj := f.object(t, c)
	assert.Equal(t, 2, obj.Level())
	assert.True(t, obj.GlobalPosition().ApproxEqual(xmath.V3(1, 3, 0), xmath.Epsilon), obj.GlobalPosition())
	assert.True(t, obj.GlobalScaling().ApproxEqual(xmath.V3(2, 2, 2), xmath.Epsilon))
}

func TestStaticHierarchyRecomputedWhenChanged(t *testing.T) {
	f := newFixture(t)
	var p, c ObjectHandle
	f.write(func(w *World) {
		p = w.CreateObject(ObjectDesc{Name: "P"})
		c = w.CreateObject(ObjectDesc{Name: "C", Parent: p, LocalPosition: xmath.V3(1, 0, 0)})
	})
	f.world.Update(frame)

	f.write(func(*World) {
		f.object(t, p).SetLocalPosition(xmath.V3(5, 0, 0))
		assert.True(t, f.object(t, c).GlobalPosition().ApproxEqual(xmath.V3(1, 0, 0), xmath.Epsilon),
			"globals are cached until propagation")
	})
	f.world.Update(frame)
	assert.True(t, f.object(t, c).GlobalPosition().ApproxEqual(xmath.V3(6, 0, 0), xmath.Epsilon))
}

func TestVelocityFromPropagation(t *testing.T) {
	f := newFixture(t)
	var h ObjectHandle
	f.write(func(w *World) {
		h = w.CreateObject(ObjectDesc{Name: "mover", Dynamic: true})
	})
	f.world.Update(frame)
	f.write(func(*World) {
		f.object(t, h).SetLocalPosition(xmath.V3(1, 0, 0))
	})
	f.world.Update(500 * time.Millisecond)
	assert.True(t, f.object(t, h).Velocity().ApproxEqual(xmath.V3(2, 0, 0), xmath.Epsilon), f.object(t, h).Velocity())
}

func TestCompactionKeepsHandlesValid(t *testing.T) {
	f := newFixture(t)
	const n = 6
	objs := make([]ObjectHandle, n)
	comps := make([]ComponentHandle, n)
	f.write(func(w *World) {
		for i := range objs {
			objs[i] = w.CreateObject(ObjectDesc{Name: string(rune('a' + i)), LocalPosition: xmath.V3(float32(i), 0, 0)})
			h, p := f.trackers().Create(objs[i])
			p.Value = i
			comps[i] = h
		}
	})
	f.world.Update(frame)

	f.write(func(w *World) {
		require.True(t, w.DeleteObject(objs[0]))
		require.True(t, w.DeleteObject(objs[3]))
		assert.Equal(t, n-2, w.ObjectCount())
		assert.Equal(t, n-2, f.trackers().Count())
	})
	f.world.Update(frame)

	assert.Equal(t, n-2, f.world.objects.Len(), "storage is compacted")
	assert.Equal(t, n-2, f.trackers().storageLen())
	for i := range objs {
		if i == 0 || i == 3 {
			f.write(func(w *World) {
				assert.False(t, w.IsValidObject(objs[i]))
				_, ok := f.trackers().TryGet(comps[i])
				assert.False(t, ok)
			})
			continue
		}
		obj := f.object(t, objs[i])
		assert.Equal(t, string(rune('a'+i)), obj.Name())
		assert.True(t, obj.GlobalPosition().ApproxEqual(xmath.V3(float32(i), 0, 0), xmath.Epsilon))
		p := f.trackerOf(t, comps[i])
		assert.Equal(t, i, p.Value)
		assert.Equal(t, objs[i], p.Owner())
	}

	f.write(func(w *World) {
		h := w.CreateObject(ObjectDesc{Name: "new"})
		assert.NotEqual(t, objs[0], h)
		assert.False(t, w.IsValidObject(objs[0]), "reused slots do not revive old handles")
	})
}

func TestCompactionRepointsChildTransforms(t *testing.T) {
	f := newFixture(t)
	var roots [3]ObjectHandle
	var child ObjectHandle
	f.write(func(w *World) {
		for i := range roots {
			roots[i] = w.CreateObject(ObjectDesc{Name: "root", Dynamic: true})
		}
		w.CreateObject(ObjectDesc{Name: "doomed child", Parent: roots[0]})
		child = w.CreateObject(ObjectDesc{Name: "child", Parent: roots[2], LocalPosition: xmath.V3(0, 1, 0)})
	})
	f.world.Update(frame)

	f.write(func(w *World) {
		require.True(t, w.DeleteObject(roots[0]))
	})
	f.world.Update(frame)

	f.write(func(*World) {
		f.object(t, roots[2]).SetLocalPosition(xmath.V3(10, 0, 0))
	})
	f.world.Update(frame)

	obj := f.object(t, child)
	assert.True(t, obj.GlobalPosition().ApproxEqual(xmath.V3(10, 1, 0), xmath.Epsilon), obj.GlobalPosition())
	parent := f.object(t, roots[2])
	assert.Equal(t, int32(0), parent.transform.index, "last root moved into the freed slot")
	assert.Equal(t, parent.transform, f.world.td(obj.transform).parent)
}

func TestSetParent(t *testing.T) {
	f := newFixture(t)
	var a, b ObjectHandle
	f.write(func(w *World) {
		a = w.CreateObject(ObjectDesc{Name: "A", LocalPosition: xmath.V3(10, 0, 0), Dynamic: true, ChildChangesNotifications: true})
		b = w.CreateObject(ObjectDesc{Name: "B", LocalPosition: xmath.V3(1, 2, 3)})
		f.trackers().Create(a)
	})
	f.world.Update(frame)

	f.write(func(w *World) {
		w.SetParent(b, a, true)
		obj := f.object(t, b)
		assert.Equal(t, a, obj.Parent())
		assert.Equal(t, 1, obj.Level())
		assert.True(t, obj.IsDynamic())
		assert.True(t, obj.GlobalPosition().ApproxEqual(xmath.V3(1, 2, 3), xmath.Epsilon))
		assert.True(t, obj.LocalPosition().ApproxEqual(xmath.V3(-9, 2, 3), xmath.Epsilon))

		w.SetParent(b, ObjectHandle{}, false)
		assert.True(t, f.object(t, b).Parent().IsZero())
		assert.Equal(t, 0, f.object(t, b).Level())

		assert.Panics(t, func() { w.SetParent(a, a, false) })
	})

	f.write(func(w *World) {
		_, p, ok := FindComponent[tracker](w, a)
		require.True(t, ok)
		require.Len(t, p.messages, 2)
		assert.Equal(t, MsgChildrenChanged{Type: ChildAdded, Parent: a, Child: b}, p.messages[0])
		assert.Equal(t, MsgChildrenChanged{Type: ChildRemoved, Parent: a, Child: b}, p.messages[1])
	})
}

func TestSetParentUnderSiblingOfSameLevel(t *testing.T) {
	for name, dynamic := range map[string]bool{"static": false, "dynamic": true} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			var a, b, c ObjectHandle
			f.write(func(w *World) {
				a = w.CreateObject(ObjectDesc{Name: "A", LocalPosition: xmath.V3(1, 0, 0), Dynamic: dynamic})
				c = w.CreateObject(ObjectDesc{Name: "C", Parent: a, LocalPosition: xmath.V3(0, 1, 0)})
				// B takes the last root slot, which moves into the hole A leaves.
				b = w.CreateObject(ObjectDesc{Name: "B", LocalPosition: xmath.V3(10, 0, 0), Dynamic: dynamic})
				w.SetParent(a, b, false)
			})
			f.world.Update(frame)

			pb, pa, pc := f.object(t, b), f.object(t, a), f.object(t, c)
			assert.Equal(t, 0, pb.Level())
			assert.Equal(t, 1, pa.Level())
			assert.Equal(t, 2, pc.Level())
			assert.False(t, f.world.td(pb.transform).parent.valid(), "B stays a root")
			assert.Equal(t, pb.transform, f.world.td(pa.transform).parent)
			assert.Equal(t, pa.transform, f.world.td(pc.transform).parent)
			for _, h := range []ObjectHandle{a, b, c} {
				obj := f.object(t, h)
				assert.Equal(t, obj.handle, f.world.objects.At(int(f.world.td(obj.transform).owner)).handle)
			}
			assert.True(t, pa.GlobalPosition().ApproxEqual(xmath.V3(11, 0, 0), xmath.Epsilon), pa.GlobalPosition())
			assert.True(t, pc.GlobalPosition().ApproxEqual(xmath.V3(11, 1, 0), xmath.Epsilon), pc.GlobalPosition())

			f.write(func(*World) { f.object(t, b).SetLocalPosition(xmath.V3(20, 0, 0)) })
			f.world.Update(frame)
			assert.True(t, f.object(t, c).GlobalPosition().ApproxEqual(xmath.V3(21, 1, 0), xmath.Epsilon))
		})
	}
}

func TestSetParentRejectsCycles(t *testing.T) {
	f := newFixture(t)
	f.write(func(w *World) {
		a := w.CreateObject(ObjectDesc{Name: "A"})
		b := w.CreateObject(ObjectDesc{Name: "B", Parent: a})
		assert.Panics(t, func() { w.SetParent(a, b, false) })
	})
}

func TestMakeDynamicMovesSubtree(t *testing.T) {
	f := newFixture(t)
	var r, c ObjectHandle
	f.write(func(w *World) {
		r = w.CreateObject(ObjectDesc{Name: "R", LocalPosition: xmath.V3(1, 0, 0)})
		c = w.CreateObject(ObjectDesc{Name: "C", Parent: r, LocalPosition: xmath.V3(1, 0, 0)})
		w.MakeDynamic(r)
	})
	for _, h := range []ObjectHandle{r, c} {
		obj := f.object(t, h)
		assert.True(t, obj.IsDynamic())
		assert.Equal(t, dynamicHierarchy, obj.transform.kind)
	}
	f.write(func(*World) { f.object(t, r).SetLocalPosition(xmath.V3(3, 0, 0)) })
	f.world.Update(frame)
	assert.True(t, f.object(t, c).GlobalPosition().ApproxEqual(xmath.V3(4, 0, 0), xmath.Epsilon))
}

func TestActiveStatePropagates(t *testing.T) {
	f := newFixture(t)
	var root, child ObjectHandle
	var ch ComponentHandle
	f.write(func(w *World) {
		root = w.CreateObject(ObjectDesc{Name: "root"})
		child = w.CreateObject(ObjectDesc{Name: "child", Parent: root})
		ch, _ = f.trackers().Create(child)
	})
	f.world.Update(frame)

	p := f.trackerOf(t, ch)
	assert.True(t, p.IsActiveAndInitialized())
	assert.Equal(t, 1, p.activated)

	f.write(func(*World) { f.object(t, root).SetActiveFlag(false) })
	assert.False(t, f.object(t, child).IsActive())
	assert.True(t, f.object(t, child).ActiveFlag())
	assert.Equal(t, 1, p.deactivated)

	f.write(func(*World) { f.object(t, root).SetActiveFlag(true) })
	assert.True(t, f.object(t, child).IsActive())
	assert.Equal(t, 2, p.activated)
	assert.Equal(t, 1, p.started, "simulation starts once")
}

func TestDeleteObjectAndEmptyParents(t *testing.T) {
	f := newFixture(t)
	var top, mid, leaf, sibling ObjectHandle
	f.write(func(w *World) {
		top = w.CreateObject(ObjectDesc{Name: "top"})
		sibling = w.CreateObject(ObjectDesc{Name: "sibling", Parent: top})
		mid = w.CreateObject(ObjectDesc{Name: "mid", Parent: top})
		leaf = w.CreateObject(ObjectDesc{Name: "leaf", Parent: mid})

		require.True(t, w.DeleteObjectAndEmptyParents(leaf))
		assert.False(t, w.IsValidObject(leaf))
		assert.False(t, w.IsValidObject(mid))
		assert.True(t, w.IsValidObject(top), "top still has a child")
		assert.True(t, w.IsValidObject(sibling))
	})
}

func TestGlobalKeysAreUnique(t *testing.T) {
	f := newFixture(t)
	f.write(func(w *World) {
		a := w.CreateObject(ObjectDesc{Name: "a", GlobalKey: "spawn"})
		b := w.CreateObject(ObjectDesc{Name: "b"})

		got, ok := w.TryGetObjectWithGlobalKey("spawn")
		require.True(t, ok)
		assert.Equal(t, a, got)

		require.ErrorIs(t, w.SetObjectGlobalKey(b, "spawn"), ErrGlobalKeyInUse)

		w.DeleteObject(a)
		_, ok = w.TryGetObjectWithGlobalKey("spawn")
		assert.False(t, ok)
		require.NoError(t, w.SetObjectGlobalKey(b, "spawn"))
		assert.Equal(t, "spawn", f.object(t, b).GlobalKey())
	})
}

func TestStableRandomSeeds(t *testing.T) {
	seeds := func() [3]uint32 {
		f := newFixture(t)
		var out [3]uint32
		f.write(func(w *World) {
			root := w.CreateObject(ObjectDesc{Name: "root", StableRandomSeed: SeedRandom})
			child := w.CreateObject(ObjectDesc{Name: "child", Parent: root, StableRandomSeed: SeedFromParent})
			fixed := w.CreateObject(ObjectDesc{Name: "fixed", StableRandomSeed: 42})
			out = [3]uint32{
				f.object(t, root).StableRandomSeed(),
				f.object(t, child).StableRandomSeed(),
				f.object(t, fixed).StableRandomSeed(),
			}
		})
		return out
	}
	first, second := seeds(), seeds()
	assert.Equal(t, first, second, "same world seed gives the same object seeds")
	assert.Equal(t, deriveSeed(first[0]), first[1])
	assert.Equal(t, uint32(42), first[2])
	for _, s := range first {
		assert.NotEqual(t, SeedRandom, s)
		assert.NotEqual(t, SeedFromParent, s)
	}
}

func TestMutationsRequireWriteAccess(t *testing.T) {
	f := newFixture(t)
	assert.Panics(t, func() { f.world.CreateObject(ObjectDesc{Name: "x"}) })

	f.world.RLock()
	defer f.world.RUnlock()
	assert.Panics(t, func() { f.world.CreateObject(ObjectDesc{Name: "x"}) })
	assert.NotPanics(t, func() { f.world.IsValidObject(ObjectHandle{}) })
}

func TestFindChildByName(t *testing.T) {
	f := newFixture(t)
	f.write(func(w *World) {
		root := w.CreateObject(ObjectDesc{Name: "root"})
		a := w.CreateObject(ObjectDesc{Name: "a", Parent: root})
		deep := w.CreateObject(ObjectDesc{Name: "deep", Parent: a})

		_, ok := f.object(t, root).FindChildByName("deep", false)
		assert.False(t, ok)
		got, ok := f.object(t, root).FindChildByName("deep", true)
		require.True(t, ok)
		assert.Equal(t, deep, got)
	})
}

func TestTraverse(t *testing.T) {
	f := newFixture(t)
	f.write(func(w *World) {
		r := w.CreateObject(ObjectDesc{Name: "R"})
		c1 := w.CreateObject(ObjectDesc{Name: "C1", Parent: r})
		w.CreateObject(ObjectDesc{Name: "C2", Parent: r})
		w.CreateObject(ObjectDesc{Name: "G", Parent: c1})
	})

	collect := func(order TraversalOrder, at string, res VisitResult) []string {
		var names []string
		f.world.RLock()
		defer f.world.RUnlock()
		f.world.Traverse(order, func(obj *GameObject) VisitResult {
			names = append(names, obj.Name())
			if obj.Name() == at {
				return res
			}
			return Continue
		})
		return names
	}

	assert.Equal(t, []string{"R", "C1", "C2", "G"}, collect(BreadthFirst, "", Continue))
	assert.Equal(t, []string{"R", "C1", "G", "C2"}, collect(DepthFirst, "", Continue))
	assert.Equal(t, []string{"R", "C1", "C2"}, collect(DepthFirst, "C1", SkipSubtree))
	assert.Equal(t, []string{"R", "C1"}, collect(DepthFirst, "C1", Stop))
	assert.Equal(t, []string{"R", "C1"}, collect(BreadthFirst, "C1", Stop))
	assert.Panics(t, func() { collect(BreadthFirst, "C1", SkipSubtree) })
}

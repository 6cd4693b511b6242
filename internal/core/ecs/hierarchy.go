package ecs

import (
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hmcore/world/internal/core/xmath"
)

type hierarchyKind uint8

const (
	staticHierarchy hierarchyKind = iota
	dynamicHierarchy
	hierarchyCount
)

// transformRef locates a TransformationData slot. Index -1 means none.
type transformRef struct {
	kind  hierarchyKind
	level int32
	index int32
}

var noTransform = transformRef{index: -1}

func (r transformRef) valid() bool { return r.index >= 0 }

// TransformationData is the per-object transform slot. A slot at level k
// has its parent at level k-1 of either hierarchy.
type TransformationData struct {
	owner        int32 // dense index in the object storage
	parent       transformRef
	local        xmath.Transform
	uniformScale float32
	global       xmath.Transform
	velocity     xmath.Vec3
}

func (td *TransformationData) localTransform() xmath.Transform {
	t := td.local
	t.Scale = t.Scale.Mul(td.uniformScale)
	return t
}

// hierarchy is one array of depth levels.
type hierarchy struct {
	levels []*BlockStorage[TransformationData]
}

func (h *hierarchy) level(l int) *BlockStorage[TransformationData] {
	for len(h.levels) <= l {
		h.levels = append(h.levels, NewBlockStorage[TransformationData](DefaultBlockSize))
	}
	return h.levels[l]
}

func (h *hierarchy) depth() int { return len(h.levels) }

func (w *World) td(ref transformRef) *TransformationData {
	return w.hierarchies[ref.kind].levels[ref.level].At(int(ref.index))
}

func (w *World) createTransformData(kind hierarchyKind, level int, owner int, parent transformRef) transformRef {
	storage := w.hierarchies[kind].level(level)
	td, idx := storage.Append()
	td.owner = int32(owner)
	td.parent = parent
	td.local = xmath.Identity()
	td.uniformScale = 1
	td.global = xmath.Identity()
	return transformRef{kind: kind, level: int32(level), index: int32(idx)}
}

// deleteTransformData removes the slot at ref. When the last slot of the
// level is moved into the hole, the mover's owner and the mover's
// children are repointed before returning.
func (w *World) deleteTransformData(ref transformRef) {
	storage := w.hierarchies[ref.kind].levels[ref.level]
	mv, moved := storage.RemoveAndCompact(int(ref.index))
	if !moved {
		return
	}
	to := transformRef{kind: ref.kind, level: ref.level, index: int32(mv.To)}
	owner := w.objects.At(int(storage.At(mv.To).owner))
	owner.transform = to
	for _, ch := range owner.children {
		// children whose own slot is being recreated have none
		if c, ok := w.objectPtr(ch); ok && c.transform.valid() {
			w.td(c.transform).parent = to
		}
	}
}

// recreateHierarchyData moves obj and its subtree to the slots matching its
// current parent and dynamic flag.
func (w *World) recreateHierarchyData(obj *GameObject) {
	oldRef := obj.transform
	old := *w.td(oldRef)
	obj.transform = noTransform
	w.deleteTransformData(oldRef)

	// The delete may have moved the parent's slot, so read it afterwards.
	parentRef := noTransform
	level := 0
	if p, ok := w.objectPtr(obj.parent); ok {
		parentRef = p.transform
		level = int(p.transform.level) + 1
		if p.flags.Has(FlagDynamic) {
			obj.flags |= FlagDynamic
		}
	}
	kind := staticHierarchy
	if obj.flags.Has(FlagDynamic) {
		kind = dynamicHierarchy
	}

	dense, _ := w.objectIDs.TryGet(obj.handle.ID)
	ref := w.createTransformData(kind, level, int(dense), parentRef)
	td := w.td(ref)
	td.local = old.local
	td.uniformScale = old.uniformScale
	td.global = old.global
	td.velocity = old.velocity
	obj.transform = ref
	if kind == staticHierarchy {
		w.staticDirty = true
	}

	for _, ch := range obj.children {
		if c, ok := w.objectPtr(ch); ok {
			w.recreateHierarchyData(c)
		}
	}
}

func (w *World) updateTransform(td *TransformationData, invDt float32) {
	global := td.localTransform()
	if td.parent.valid() {
		global = xmath.Compose(w.td(td.parent).global, global)
	}
	if invDt > 0 {
		td.velocity = global.Position.Sub(td.global.Position).Mul(invDt)
	}
	td.global = global
}

// updateSubtree recomputes globals of obj and its descendants right away.
func (w *World) updateSubtree(obj *GameObject) {
	w.updateTransform(w.td(obj.transform), 0)
	for _, ch := range obj.children {
		if c, ok := w.objectPtr(ch); ok {
			w.updateSubtree(c)
		}
	}
}

// updateGlobalTransforms propagates transforms level by level. The static
// hierarchy is only recomputed after it changed.
func (w *World) updateGlobalTransforms(dt time.Duration) {
	var invDt float32
	if dt > 0 {
		invDt = float32(1 / dt.Seconds())
	}
	if w.staticDirty {
		w.updateHierarchy(staticHierarchy, 0)
		w.staticDirty = false
	}
	w.updateHierarchy(dynamicHierarchy, invDt)
}

func (w *World) updateHierarchy(kind hierarchyKind, invDt float32) {
	h := &w.hierarchies[kind]
	for _, level := range h.levels {
		if w.spatial != nil || w.workers <= 1 || level.BlockCount() <= 1 {
			for b := 0; b < level.BlockCount(); b++ {
				w.updateBlock(level.Block(b), invDt)
			}
			continue
		}
		// Slots of one level only read the previous level, so blocks can
		// be processed concurrently.
		var g errgroup.Group
		g.SetLimit(w.workers)
		for b := 0; b < level.BlockCount(); b++ {
			blk := level.Block(b)
			g.Go(func() error {
				w.updateBlock(blk, invDt)
				return nil
			})
		}
		_ = g.Wait()
	}
}

func (w *World) updateBlock(blk []TransformationData, invDt float32) {
	for i := range blk {
		td := &blk[i]
		w.updateTransform(td, invDt)
		if w.spatial != nil {
			w.spatial.UpdateObject(w.objects.At(int(td.owner)).handle, td.global.Position)
		}
	}
}

package ecs

// VisitResult steers a traversal.
type VisitResult uint8

const (
	Continue VisitResult = iota
	// SkipSubtree is only valid for DepthFirst traversals.
	SkipSubtree
	Stop
)

type TraversalOrder uint8

const (
	// BreadthFirst visits level by level, static objects before dynamic
	// objects of the same level.
	BreadthFirst TraversalOrder = iota
	// DepthFirst starts at the root objects and descends into children in
	// insertion order.
	DepthFirst
)

// Visitor is called per object. It must not change the world structure.
type Visitor func(obj *GameObject) VisitResult

// Traverse visits every live object in the given order.
func (w *World) Traverse(order TraversalOrder, visit Visitor) {
	w.checkRead()
	switch order {
	case BreadthFirst:
		w.traverseBreadthFirst(visit)
	case DepthFirst:
		w.traverseDepthFirst(visit)
	}
}

func (w *World) traverseBreadthFirst(visit Visitor) {
	depth := max(w.hierarchies[staticHierarchy].depth(), w.hierarchies[dynamicHierarchy].depth())
	for l := 0; l < depth; l++ {
		for k := range w.hierarchies {
			h := &w.hierarchies[k]
			if l >= h.depth() {
				continue
			}
			stop := false
			h.levels[l].Each(func(_ int, td *TransformationData) bool {
				obj := w.objects.At(int(td.owner))
				if obj.flags.Has(flagDead) {
					return true
				}
				switch visit(obj) {
				case SkipSubtree:
					assertf(false, "SkipSubtree is not supported in breadth-first traversal")
				case Stop:
					stop = true
					return false
				}
				return true
			})
			if stop {
				return
			}
		}
	}
}

func (w *World) traverseDepthFirst(visit Visitor) {
	var roots []ObjectHandle
	for k := range w.hierarchies {
		h := &w.hierarchies[k]
		if h.depth() == 0 {
			continue
		}
		h.levels[0].Each(func(_ int, td *TransformationData) bool {
			if obj := w.objects.At(int(td.owner)); !obj.flags.Has(flagDead) {
				roots = append(roots, obj.handle)
			}
			return true
		})
	}
	for _, r := range roots {
		if !w.visitDepthFirst(r, visit) {
			return
		}
	}
}

// visitDepthFirst returns false when the traversal was stopped.
func (w *World) visitDepthFirst(h ObjectHandle, visit Visitor) bool {
	obj, ok := w.objectPtr(h)
	if !ok {
		return true
	}
	switch visit(obj) {
	case Stop:
		return false
	case SkipSubtree:
		return true
	}
	for _, ch := range obj.children {
		if !w.visitDepthFirst(ch, visit) {
			return false
		}
	}
	return true
}

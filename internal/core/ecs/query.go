package ecs

// FindComponent returns the first component of type T owned by obj.
func FindComponent[T any, PT interface {
	*T
	Component
}](w *World, obj ObjectHandle) (ComponentHandle, PT, bool) {
	o, ok := w.TryGetObject(obj)
	if !ok {
		return ComponentHandle{}, nil, false
	}
	for _, h := range o.components {
		c, ok := w.TryGetComponent(h)
		if !ok {
			continue
		}
		if t, ok := c.(PT); ok {
			return h, t, true
		}
	}
	return ComponentHandle{}, nil, false
}

// EachWith iterates over active components of manager a whose owner also
// has a component of type B.
func EachWith[A any, PA interface {
	*A
	Component
}, B any, PB interface {
	*B
	Component
}](a *Manager[A, PA], fn func(ca PA, cb PB)) {
	w := a.World()
	a.EachActive(func(ca PA) bool {
		if _, cb, ok := FindComponent[B, PB](w, ca.Base().Owner()); ok {
			fn(ca, cb)
		}
		return true
	})
}

// ObjectComponents collects the live components of obj.
func (w *World) ObjectComponents(obj ObjectHandle) []Component {
	o, ok := w.TryGetObject(obj)
	if !ok {
		return nil
	}
	out := make([]Component, 0, len(o.components))
	for _, h := range o.components {
		if c, ok := w.TryGetComponent(h); ok {
			out = append(out, c)
		}
	}
	return out
}

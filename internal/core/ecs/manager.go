package ecs

import "sort"

// Manager stores components of type T in block storage behind a
// generation-checked id table. Deleted components are compacted during
// the next world update.
//
// Pointers returned by Create, TryGet and the iteration helpers stay valid
// only until the next structural change of the world.
type Manager[T any, PT interface {
	*T
	Component
}] struct {
	world   *World
	info    *TypeInfo
	storage *BlockStorage[T]
	ids     *IDTable[int32]
	dead    []int
}

// NewManager creates the storage for info in w. Component packages call
// it from their ManagerFactory.
func NewManager[T any, PT interface {
	*T
	Component
}](w *World, info *TypeInfo) *Manager[T, PT] {
	return &Manager[T, PT]{
		world:   w,
		info:    info,
		storage: NewBlockStorage[T](DefaultBlockSize),
		ids:     NewIDTable[int32](w.index, info.ID),
	}
}

func (m *Manager[T, PT]) TypeInfo() *TypeInfo { return m.info }
func (m *Manager[T, PT]) World() *World       { return m.world }
func (m *Manager[T, PT]) Count() int          { return m.ids.Len() }
func (m *Manager[T, PT]) storageLen() int     { return m.storage.Len() }

// Create adds a component to owner and queues it in the current init batch.
func (m *Manager[T, PT]) Create(owner ObjectHandle) (ComponentHandle, PT) {
	h, c := m.CreateNoInit(owner)
	if c != nil {
		m.InitializeComponent(h)
	}
	return h, c
}

// CreateNoInit adds a component to owner without queuing initialization.
func (m *Manager[T, PT]) CreateNoInit(owner ObjectHandle) (ComponentHandle, PT) {
	w := m.world
	w.checkWrite()
	obj, ok := w.objectPtr(owner)
	assertf(ok, "create %s: invalid owner %v", m.info.Name, owner.ID)
	if !ok {
		return ComponentHandle{}, nil
	}

	ptr, dense := m.storage.Append()
	h := ComponentHandle{m.ids.Insert(int32(dense))}
	c := PT(ptr)
	b := c.Base()
	b.handle = h
	b.owner = owner
	b.core = m
	b.flags = FlagActiveFlag
	if obj.flags.Has(FlagCreatedByPrefab) {
		b.flags |= FlagCreatedByPrefab
	}
	obj.components = append(obj.components, h)
	return h, c
}

func (m *Manager[T, PT]) CreateComponentNoInit(owner ObjectHandle) (ComponentHandle, Component) {
	h, c := m.CreateNoInit(owner)
	if c == nil {
		return h, nil
	}
	return h, c
}

// InitializeComponent queues h in the world's current init batch.
func (m *Manager[T, PT]) InitializeComponent(h ComponentHandle) {
	m.world.addToInitBatch(h)
}

// DeleteComponent invalidates h immediately. The storage slot is reclaimed
// on the next update.
func (m *Manager[T, PT]) DeleteComponent(h ComponentHandle) bool {
	w := m.world
	w.checkWrite()
	dense, ok := m.lookup(h)
	if !ok {
		return false
	}
	c := PT(m.storage.At(dense))
	b := c.Base()
	m.setActiveState(c, false)
	if b.IsInitialized() {
		if d, ok := any(c).(Deinitializer); ok {
			d.Deinitialize()
		}
		b.flags.Set(FlagInitialized, false)
	}
	if obj, ok := w.objectPtr(b.owner); ok {
		obj.removeComponent(h)
	}
	m.ids.Remove(h.ID)
	b.flags |= flagDead
	m.dead = append(m.dead, dense)
	return true
}

func (m *Manager[T, PT]) lookup(h ComponentHandle) (int, bool) {
	if h.TypeID() != m.info.ID {
		return 0, false
	}
	dense, ok := m.ids.TryGet(h.ID)
	return int(dense), ok
}

// TryGet resolves h to the component.
func (m *Manager[T, PT]) TryGet(h ComponentHandle) (PT, bool) {
	m.world.checkRead()
	dense, ok := m.lookup(h)
	if !ok {
		return nil, false
	}
	return PT(m.storage.At(dense)), true
}

func (m *Manager[T, PT]) TryGetComponent(h ComponentHandle) (Component, bool) {
	c, ok := m.TryGet(h)
	if !ok {
		return nil, false
	}
	return c, true
}

// Each visits live components in storage order.
func (m *Manager[T, PT]) Each(fn func(c PT) bool) {
	m.storage.Each(func(_ int, v *T) bool {
		c := PT(v)
		if c.Base().isDead() {
			return true
		}
		return fn(c)
	})
}

// EachActive visits initialized, active components.
func (m *Manager[T, PT]) EachActive(fn func(c PT) bool) {
	m.Each(func(c PT) bool {
		if !c.Base().IsActiveAndInitialized() {
			return true
		}
		return fn(c)
	})
}

func (m *Manager[T, PT]) EachComponent(fn func(Component) bool) {
	m.Each(func(c PT) bool { return fn(c) })
}

// Range visits the active, initialized components with storage index in
// [first, first+count). Async update functions receive such ranges.
func (m *Manager[T, PT]) Range(first, count int, fn func(c PT)) {
	end := first + count
	if n := m.storage.Len(); end > n {
		end = n
	}
	for i := first; i < end; i++ {
		c := PT(m.storage.At(i))
		if b := c.Base(); b.isDead() || !b.IsActiveAndInitialized() {
			continue
		}
		fn(c)
	}
}

// RegisterUpdateFunction registers fn for this manager's components.
func (m *Manager[T, PT]) RegisterUpdateFunction(desc UpdateFunctionDesc) {
	desc.Manager = m
	m.world.RegisterUpdateFunction(desc)
}

func (m *Manager[T, PT]) updateActiveState(h ComponentHandle) {
	dense, ok := m.lookup(h)
	if !ok {
		return
	}
	c := PT(m.storage.At(dense))
	if !c.Base().IsInitialized() {
		return
	}
	m.setActiveState(c, m.wantsActive(c))
}

func (m *Manager[T, PT]) wantsActive(c PT) bool {
	b := c.Base()
	owner, ok := m.world.objectPtr(b.owner)
	return ok && b.ActiveFlag() && owner.IsActive()
}

func (m *Manager[T, PT]) setActiveState(c PT, active bool) {
	b := c.Base()
	if b.IsActive() == active {
		return
	}
	b.flags.Set(FlagActiveState, active)
	if a, ok := any(c).(Activator); ok {
		if active {
			a.OnActivated()
		} else {
			a.OnDeactivated()
		}
	}
	if active && m.world.simulating {
		m.startSimulationFor(c)
	}
}

func (m *Manager[T, PT]) startSimulationFor(c PT) {
	b := c.Base()
	if b.IsSimulationStarted() {
		return
	}
	b.flags |= FlagSimulationStarted
	if s, ok := any(c).(SimulationStarter); ok {
		s.OnSimulationStarted()
	}
}

func (m *Manager[T, PT]) initializeNow(h ComponentHandle) bool {
	dense, ok := m.lookup(h)
	if !ok {
		return false
	}
	c := PT(m.storage.At(dense))
	b := c.Base()
	if b.IsInitialized() {
		return false
	}
	b.flags |= FlagInitializing
	if i, ok := any(c).(Initializer); ok {
		i.Initialize()
	}
	b.flags = b.flags&^FlagInitializing | FlagInitialized
	return true
}

func (m *Manager[T, PT]) activateNow(h ComponentHandle) {
	m.updateActiveState(h)
}

func (m *Manager[T, PT]) startSimulation() {
	m.EachActive(func(c PT) bool {
		m.startSimulationFor(c)
		return true
	})
}

func (m *Manager[T, PT]) deleteDeadComponents() {
	if len(m.dead) == 0 {
		return
	}
	// Highest index first so the element moved into a hole is always live.
	sort.Sort(sort.Reverse(sort.IntSlice(m.dead)))
	for _, d := range m.dead {
		if mv, moved := m.storage.RemoveAndCompact(d); moved {
			c := PT(m.storage.At(mv.To))
			m.ids.Set(c.Base().handle.ID, int32(mv.To))
		}
	}
	m.dead = m.dead[:0]
}

func (m *Manager[T, PT]) deinitializeAll() {
	m.Each(func(c PT) bool {
		m.setActiveState(c, false)
		if c.Base().IsInitialized() {
			if d, ok := any(c).(Deinitializer); ok {
				d.Deinitialize()
			}
		}
		return true
	})
	m.storage.Clear()
	m.ids.Clear()
	m.dead = nil
}

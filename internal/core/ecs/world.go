package ecs

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/xmath"
)

// DefaultMaxInitTimePerFrame bounds how long non-urgent init batches may
// run per update.
const DefaultMaxInitTimePerFrame = 50 * time.Millisecond

var ErrGlobalKeyInUse = errors.New("global key already in use")

// WorldDesc configures a new World.
type WorldDesc struct {
	Name     string
	Index    uint8
	Registry *TypeRegistry
	Logger   *zap.Logger

	// Spatial, when set, receives every propagated global position and
	// forces single-threaded propagation.
	Spatial          SpatialIndex
	CoordinateSystem CoordinateSystemProvider

	// Workers bounds parallel propagation and async updates. Zero means
	// GOMAXPROCS.
	Workers             int
	RandomSeed          uint64
	MaxInitTimePerFrame time.Duration
	Simulate            bool
}

// World owns game objects, component managers, the transform hierarchy,
// message queues and update functions. Mutations require the write marker
// (Lock); lookups require at least the read marker (RLock). Update and
// instantiation steps take the write marker themselves.
type World struct {
	marker

	name        string
	index       uint8
	registry    *TypeRegistry
	log         *zap.Logger
	spatial     SpatialIndex
	coords      CoordinateSystemProvider
	workers     int
	rng         *rand.Rand
	maxInitTime time.Duration

	objects     *BlockStorage[GameObject]
	objectIDs   *IDTable[int32]
	deadObjects []int
	hierarchies [hierarchyCount]hierarchy
	staticDirty bool
	globalKeys  map[string]ObjectHandle

	managers []ComponentManager

	queues messageQueues

	initBatches  *IDTable[*initBatch]
	defaultBatch InitBatchHandle
	currentBatch InitBatchHandle

	updateFuncs  [phaseCount][]*updateFunction
	pendingFuncs []*updateFunction

	simulating      bool
	simStartPending bool
	clock           time.Duration
	dt              time.Duration
	frame           uint64
}

func NewWorld(desc WorldDesc) *World {
	log := desc.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := desc.Registry
	if reg == nil {
		reg = NewTypeRegistry()
	}
	workers := desc.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	maxInit := desc.MaxInitTimePerFrame
	if maxInit <= 0 {
		maxInit = DefaultMaxInitTimePerFrame
	}

	w := &World{
		name:        desc.Name,
		index:       desc.Index,
		registry:    reg,
		log:         log.With(zap.String("world", desc.Name)),
		spatial:     desc.Spatial,
		coords:      desc.CoordinateSystem,
		workers:     workers,
		rng:         rand.New(rand.NewPCG(desc.RandomSeed, desc.RandomSeed^0x9E3779B97F4A7C15)),
		maxInitTime: maxInit,
		objects:     NewBlockStorage[GameObject](DefaultBlockSize),
		objectIDs:   NewIDTable[int32](desc.Index, 0),
		globalKeys:  make(map[string]ObjectHandle),
		initBatches: NewIDTable[*initBatch](desc.Index, 0),
		simulating:  desc.Simulate,
	}
	w.defaultBatch = InitBatchHandle{w.initBatches.Insert(&initBatch{
		name:       "Default",
		mustFinish: true,
		ready:      true,
	})}
	w.currentBatch = w.defaultBatch
	return w
}

func (w *World) Name() string             { return w.name }
func (w *World) Index() uint8             { return w.index }
func (w *World) Registry() *TypeRegistry  { return w.registry }
func (w *World) Logger() *zap.Logger      { return w.log }
func (w *World) Spatial() SpatialIndex    { return w.spatial }
func (w *World) Workers() int             { return w.workers }
func (w *World) IsSimulating() bool       { return w.simulating }
func (w *World) Clock() time.Duration     { return w.clock }
func (w *World) DeltaTime() time.Duration { return w.dt }
func (w *World) FrameCounter() uint64     { return w.frame }

// Random is the world's deterministic random source. Only use it with
// write access.
func (w *World) Random() *rand.Rand { return w.rng }

// SetSimulation starts or pauses simulation. Components that are active
// when simulation starts receive OnSimulationStarted on the next update.
func (w *World) SetSimulation(on bool) {
	w.checkWrite()
	if on && !w.simulating {
		w.simStartPending = true
	}
	w.simulating = on
}

// CoordinateSystem returns the axes at pos, defaulting to X forward,
// Y right, Z up.
func (w *World) CoordinateSystem(pos xmath.Vec3) CoordinateSystem {
	if w.coords != nil {
		return w.coords.CoordinateSystem(pos)
	}
	return DefaultCoordinateSystem()
}

// ---- objects ----

func (w *World) objectPtr(h ObjectHandle) (*GameObject, bool) {
	if h.WorldIndex() != w.index {
		return nil, false
	}
	dense, ok := w.objectIDs.TryGet(h.ID)
	if !ok {
		return nil, false
	}
	return w.objects.At(int(dense)), true
}

// TryGetObject resolves h. The pointer is valid until the next structural
// change.
func (w *World) TryGetObject(h ObjectHandle) (*GameObject, bool) {
	w.checkRead()
	return w.objectPtr(h)
}

func (w *World) IsValidObject(h ObjectHandle) bool {
	w.checkRead()
	_, ok := w.objectPtr(h)
	return ok
}

// ObjectCount is the number of live objects.
func (w *World) ObjectCount() int { return w.objectIDs.Len() }

// CreateObject creates a game object at level 0, or one level below its
// parent. Children of dynamic parents are always dynamic.
func (w *World) CreateObject(desc ObjectDesc) ObjectHandle {
	w.checkWrite()

	var parent *GameObject
	if !desc.Parent.IsZero() {
		p, ok := w.objectPtr(desc.Parent)
		if ok {
			parent = p
		} else {
			w.log.Warn("parent of new object does not exist, creating a root object",
				zap.String("name", desc.Name), zap.Stringer("parent", desc.Parent.ID))
		}
	}

	obj, dense := w.objects.Append()
	h := ObjectHandle{w.objectIDs.Insert(int32(dense))}
	obj.world = w
	obj.handle = h
	obj.name = desc.Name
	obj.tags = desc.Tags.Clone()
	obj.teamID = desc.TeamID

	obj.flags.Set(FlagDynamic, desc.Dynamic || desc.ForceDynamic)
	obj.flags.Set(FlagForceDynamic, desc.ForceDynamic)
	obj.flags.Set(FlagActiveFlag, !desc.Inactive)
	obj.flags.Set(FlagChildChangesNotifications, desc.ChildChangesNotifications)
	obj.flags.Set(FlagParentChangesNotifications, desc.ParentChangesNotifications)
	obj.flags.Set(FlagCreatedByPrefab, desc.CreatedByPrefab)

	level := 0
	parentRef := noTransform
	if parent != nil {
		level = parent.Level() + 1
		parentRef = parent.transform
		obj.parent = parent.handle
		if parent.IsDynamic() {
			obj.flags |= FlagDynamic
		}
	}
	kind := staticHierarchy
	if obj.IsDynamic() {
		kind = dynamicHierarchy
	}
	obj.transform = w.createTransformData(kind, level, dense, parentRef)

	td := w.td(obj.transform)
	td.local.Position = desc.LocalPosition
	if desc.LocalRotation != (xmath.Quat{}) {
		td.local.Rotation = desc.LocalRotation
	}
	if desc.LocalScaling != (xmath.Vec3{}) {
		td.local.Scale = desc.LocalScaling
	}
	if desc.LocalUniformScale != 0 {
		td.uniformScale = desc.LocalUniformScale
	}
	td.global = w.globalOf(td)

	seed := desc.StableRandomSeed
	if seed == SeedFromParent && parent != nil {
		seed = deriveSeed(parent.seed + uint32(len(parent.children)))
	}
	for seed == SeedRandom || seed == SeedFromParent {
		seed = w.rng.Uint32()
	}
	obj.seed = seed

	obj.flags.Set(FlagActiveState, obj.ActiveFlag() && (parent == nil || parent.IsActive()))

	if parent != nil {
		parent.children = append(parent.children, h)
		w.notifyChildrenChanged(parent, h, ChildAdded)
	}
	if desc.GlobalKey != "" {
		_ = w.setGlobalKey(obj, desc.GlobalKey)
	}
	return h
}

// DeleteObject deletes h, its descendants and all their components. The
// handles are invalid when it returns; storage is reclaimed on the next
// update.
func (w *World) DeleteObject(h ObjectHandle) bool {
	return w.deleteObject(h, false)
}

// DeleteObjectAndEmptyParents also deletes ancestors that are left without
// children and components.
func (w *World) DeleteObjectAndEmptyParents(h ObjectHandle) bool {
	return w.deleteObject(h, true)
}

// DeleteObjectDelayed queues the deletion for the next PostAsync message
// delivery. Safe to call from async update functions.
func (w *World) DeleteObjectDelayed(h ObjectHandle, alsoDeleteEmptyParents bool) {
	w.PostMessage(h, MsgDeleteObject{AlsoDeleteEmptyParents: alsoDeleteEmptyParents}, QueuePostAsync, 0)
}

func (w *World) deleteObject(h ObjectHandle, emptyParents bool) bool {
	w.checkWrite()
	obj, ok := w.objectPtr(h)
	if !ok {
		return false
	}
	if emptyParents {
		for {
			p, ok := w.objectPtr(obj.parent)
			if !ok || len(p.children) != 1 || len(p.components) != 0 {
				break
			}
			obj = p
		}
	}
	w.deleteObjectNow(obj)
	return true
}

func (w *World) deleteObjectNow(obj *GameObject) {
	obj.flags.Set(FlagActiveFlag, false)
	w.updateActiveState(obj)

	for n := len(obj.children); n > 0; n = len(obj.children) {
		c, ok := w.objectPtr(obj.children[n-1])
		if !ok {
			obj.children = obj.children[:n-1]
			continue
		}
		w.deleteObjectNow(c)
	}
	for n := len(obj.components); n > 0; n = len(obj.components) {
		h := obj.components[n-1]
		if m := w.Manager(h.TypeID()); m == nil || !m.DeleteComponent(h) {
			obj.components = obj.components[:n-1]
		}
	}

	if p, ok := w.objectPtr(obj.parent); ok {
		p.removeChild(obj.handle)
		w.notifyChildrenChanged(p, obj.handle, ChildRemoved)
	}
	obj.parent = ObjectHandle{}
	if obj.globalKey != "" {
		delete(w.globalKeys, obj.globalKey)
		obj.globalKey = ""
	}
	if w.spatial != nil {
		w.spatial.RemoveObject(obj.handle)
	}

	dense, _ := w.objectIDs.TryGet(obj.handle.ID)
	w.objectIDs.Remove(obj.handle.ID)
	obj.flags |= flagDead
	w.deadObjects = append(w.deadObjects, int(dense))
}

// deleteDeadObjects reclaims the storage of deleted objects and patches
// every reference to elements moved by compaction.
func (w *World) deleteDeadObjects() {
	if len(w.deadObjects) == 0 {
		return
	}
	sort.Sort(sort.Reverse(sort.IntSlice(w.deadObjects)))
	for _, d := range w.deadObjects {
		w.deleteTransformData(w.objects.At(d).transform)
	}
	for _, d := range w.deadObjects {
		if mv, moved := w.objects.RemoveAndCompact(d); moved {
			obj := w.objects.At(mv.To)
			w.objectIDs.Set(obj.handle.ID, int32(mv.To))
			w.td(obj.transform).owner = int32(mv.To)
		}
	}
	w.deadObjects = w.deadObjects[:0]
}

func (w *World) deleteDeadComponents() {
	for _, m := range w.managers {
		if m != nil {
			m.deleteDeadComponents()
		}
	}
}

// SetParent moves h below parent, or to the root level when parent is the
// zero handle. With preserveGlobal the object keeps its global transform.
func (w *World) SetParent(h, parent ObjectHandle, preserveGlobal bool) {
	w.checkWrite()
	obj, ok := w.objectPtr(h)
	if !ok || obj.parent == parent {
		return
	}
	var newParent *GameObject
	if !parent.IsZero() {
		p, ok := w.objectPtr(parent)
		if !ok {
			w.log.Warn("set parent: parent does not exist", zap.Stringer("object", h.ID))
			return
		}
		if w.isSelfOrAncestor(h, p) {
			assertf(false, "set parent: %v would become its own ancestor", h.ID)
			return
		}
		newParent = p
	}

	global := obj.GlobalTransform()
	oldParent := obj.parent
	if old, ok := w.objectPtr(oldParent); ok {
		old.removeChild(h)
		w.notifyChildrenChanged(old, h, ChildRemoved)
		w.notifyParentChanged(obj, ParentUnlinked, oldParent)
	}
	obj.parent = ObjectHandle{}
	if newParent != nil {
		obj.parent = parent
		newParent.children = append(newParent.children, h)
	}

	w.recreateHierarchyData(obj)
	if preserveGlobal {
		obj.SetGlobalTransform(global)
	}
	w.updateSubtree(obj)
	w.updateActiveState(obj)

	if newParent != nil {
		w.notifyChildrenChanged(newParent, h, ChildAdded)
		w.notifyParentChanged(obj, ParentLinked, parent)
	}
}

func (w *World) isSelfOrAncestor(h ObjectHandle, o *GameObject) bool {
	for {
		if o.handle == h {
			return true
		}
		p, ok := w.objectPtr(o.parent)
		if !ok {
			return false
		}
		o = p
	}
}

// MakeDynamic moves h and its subtree into the dynamic hierarchy.
func (w *World) MakeDynamic(h ObjectHandle) {
	w.checkWrite()
	obj, ok := w.objectPtr(h)
	if !ok || obj.IsDynamic() {
		return
	}
	obj.flags |= FlagDynamic
	w.recreateHierarchyData(obj)
	w.updateSubtree(obj)
}

// ---- global keys ----

// SetObjectGlobalKey assigns a world-unique key. An empty key clears it.
func (w *World) SetObjectGlobalKey(h ObjectHandle, key string) error {
	w.checkWrite()
	obj, ok := w.objectPtr(h)
	if !ok {
		return fmt.Errorf("set global key %q: invalid object", key)
	}
	return w.setGlobalKey(obj, key)
}

func (w *World) setGlobalKey(obj *GameObject, key string) error {
	if key == obj.globalKey {
		return nil
	}
	if other, ok := w.globalKeys[key]; ok && key != "" && w.objectIDs.Contains(other.ID) {
		w.log.Error("global key already in use",
			zap.String("key", key), zap.String("object", obj.name))
		return fmt.Errorf("set global key %q: %w", key, ErrGlobalKeyInUse)
	}
	if obj.globalKey != "" {
		delete(w.globalKeys, obj.globalKey)
	}
	obj.globalKey = key
	if key != "" {
		w.globalKeys[key] = obj.handle
	}
	return nil
}

func (w *World) TryGetObjectWithGlobalKey(key string) (ObjectHandle, bool) {
	w.checkRead()
	h, ok := w.globalKeys[key]
	if !ok || !w.objectIDs.Contains(h.ID) {
		return ObjectHandle{}, false
	}
	return h, true
}

// ---- managers ----

// Manager returns the manager for id, or nil if none was created.
func (w *World) Manager(id TypeID) ComponentManager {
	if int(id) >= len(w.managers) {
		return nil
	}
	return w.managers[id]
}

// GetOrCreateManager returns the manager for info, creating it on first
// use. Calling it repeatedly returns the same manager.
func (w *World) GetOrCreateManager(info *TypeInfo) ComponentManager {
	w.checkWrite()
	if m := w.Manager(info.ID); m != nil {
		return m
	}
	for int(info.ID) >= len(w.managers) {
		w.managers = append(w.managers, nil)
	}
	m := info.NewManager(w, info)
	w.managers[info.ID] = m
	w.log.Debug("component manager created", zap.String("type", info.Name))
	return m
}

// ManagerOf is GetOrCreateManager with a typed result.
func ManagerOf[M ComponentManager](w *World, info *TypeInfo) M {
	m, _ := w.GetOrCreateManager(info).(M)
	return m
}

// TryGetComponent resolves h through its type's manager.
func (w *World) TryGetComponent(h ComponentHandle) (Component, bool) {
	m := w.Manager(h.TypeID())
	if m == nil {
		return nil, false
	}
	return m.TryGetComponent(h)
}

func (w *World) DeleteComponent(h ComponentHandle) bool {
	m := w.Manager(h.TypeID())
	return m != nil && m.DeleteComponent(h)
}

// Close deinitializes all components and releases every object.
func (w *World) Close() {
	w.Lock()
	defer w.Unlock()

	for _, m := range w.managers {
		if m != nil {
			m.deinitializeAll()
		}
	}
	w.objects.Clear()
	w.objectIDs.Clear()
	w.deadObjects = nil
	for i := range w.hierarchies {
		w.hierarchies[i] = hierarchy{}
	}
	w.globalKeys = make(map[string]ObjectHandle)
	w.queues.clear()
	w.log.Debug("world closed")
}

package ecs

import "github.com/hmcore/world/internal/core/xmath"

// Stable random seed sentinels for ObjectDesc.StableRandomSeed.
const (
	// SeedRandom draws the seed from the world's random source.
	SeedRandom uint32 = 0
	// SeedFromParent derives the seed from the parent's seed and child
	// count. Root objects fall back to a random seed.
	SeedFromParent uint32 = 0xFFFFFFFF
)

// ObjectDesc describes a game object to create.
type ObjectDesc struct {
	Name      string
	GlobalKey string
	Parent    ObjectHandle

	LocalPosition     xmath.Vec3
	LocalRotation     xmath.Quat // zero value means identity
	LocalScaling      xmath.Vec3 // zero value means (1,1,1)
	LocalUniformScale float32    // zero value means 1

	Dynamic      bool
	ForceDynamic bool
	Inactive     bool

	ChildChangesNotifications  bool
	ParentChangesNotifications bool
	CreatedByPrefab            bool

	Tags             TagSet
	TeamID           uint16
	StableRandomSeed uint32
}

// GameObject is a node of the world hierarchy. Pointers to it are valid
// until the next structural change; hold ObjectHandles across frames.
type GameObject struct {
	world      *World
	handle     ObjectHandle
	parent     ObjectHandle
	children   []ObjectHandle
	components []ComponentHandle
	name       string
	globalKey  string
	flags      Flags
	tags       TagSet
	teamID     uint16
	seed       uint32
	transform  transformRef
}

func (o *GameObject) Handle() ObjectHandle         { return o.handle }
func (o *GameObject) World() *World                { return o.world }
func (o *GameObject) Name() string                 { return o.name }
func (o *GameObject) SetName(name string)          { o.name = name }
func (o *GameObject) GlobalKey() string            { return o.globalKey }
func (o *GameObject) Parent() ObjectHandle         { return o.parent }
func (o *GameObject) ChildCount() int              { return len(o.children) }
func (o *GameObject) Flags() Flags                 { return o.flags }
func (o *GameObject) IsDynamic() bool              { return o.flags.Has(FlagDynamic) }
func (o *GameObject) IsStatic() bool               { return !o.flags.Has(FlagDynamic) }
func (o *GameObject) ActiveFlag() bool             { return o.flags.Has(FlagActiveFlag) }
func (o *GameObject) IsActive() bool               { return o.flags.Has(FlagActiveState) }
func (o *GameObject) WasCreatedByPrefab() bool     { return o.flags.Has(FlagCreatedByPrefab) }
func (o *GameObject) SetCreatedByPrefab(on bool)   { o.flags.Set(FlagCreatedByPrefab, on) }
func (o *GameObject) Tags() *TagSet                { return &o.tags }
func (o *GameObject) TeamID() uint16               { return o.teamID }
func (o *GameObject) SetTeamID(id uint16)          { o.teamID = id }
func (o *GameObject) StableRandomSeed() uint32     { return o.seed }
func (o *GameObject) SetStableRandomSeed(s uint32) { o.seed = s }
func (o *GameObject) Level() int                   { return int(o.transform.level) }

// Children returns the child handles in insertion order. The slice must not
// be modified.
func (o *GameObject) Children() []ObjectHandle { return o.children }

// Components returns the owned component handles. The slice must not be
// modified.
func (o *GameObject) Components() []ComponentHandle { return o.components }

func (o *GameObject) EnableChildChangesNotifications(on bool) {
	o.flags.Set(FlagChildChangesNotifications, on)
}

func (o *GameObject) EnableParentChangesNotifications(on bool) {
	o.flags.Set(FlagParentChangesNotifications, on)
}

// SetActiveFlag toggles the object's own flag and updates the active state
// of its subtree and components.
func (o *GameObject) SetActiveFlag(active bool) {
	o.world.checkWrite()
	if o.ActiveFlag() == active {
		return
	}
	o.flags.Set(FlagActiveFlag, active)
	o.world.updateActiveState(o)
}

func (o *GameObject) data() *TransformationData { return o.world.td(o.transform) }

func (o *GameObject) LocalPosition() xmath.Vec3  { return o.data().local.Position }
func (o *GameObject) LocalRotation() xmath.Quat  { return o.data().local.Rotation }
func (o *GameObject) LocalScaling() xmath.Vec3   { return o.data().local.Scale }
func (o *GameObject) LocalUniformScale() float32 { return o.data().uniformScale }

// LocalTransform returns the local transform with uniform scale applied.
func (o *GameObject) LocalTransform() xmath.Transform { return o.data().localTransform() }

func (o *GameObject) GlobalTransform() xmath.Transform { return o.data().global }
func (o *GameObject) GlobalPosition() xmath.Vec3       { return o.data().global.Position }
func (o *GameObject) GlobalRotation() xmath.Quat       { return o.data().global.Rotation }
func (o *GameObject) GlobalScaling() xmath.Vec3        { return o.data().global.Scale }

// Velocity is the global position delta of the last propagation divided by
// the frame time.
func (o *GameObject) Velocity() xmath.Vec3 { return o.data().velocity }

func (o *GameObject) SetLocalPosition(p xmath.Vec3) {
	o.data().local.Position = p
	o.localChanged()
}

func (o *GameObject) SetLocalRotation(q xmath.Quat) {
	o.data().local.Rotation = q
	o.localChanged()
}

func (o *GameObject) SetLocalScaling(s xmath.Vec3) {
	o.data().local.Scale = s
	o.localChanged()
}

func (o *GameObject) SetLocalUniformScale(s float32) {
	o.data().uniformScale = s
	o.localChanged()
}

// SetGlobalTransform sets the local transform so the object ends up at t.
func (o *GameObject) SetGlobalTransform(t xmath.Transform) {
	td := o.data()
	if td.parent.valid() {
		t = xmath.Relative(o.world.td(td.parent).global, t)
	}
	td.local = t
	td.uniformScale = 1
	o.localChanged()
	td.global = o.world.globalOf(td)
}

func (o *GameObject) SetGlobalPosition(p xmath.Vec3) {
	t := o.GlobalTransform()
	t.Position = p
	o.SetGlobalTransform(t)
}

// UpdateGlobalTransform recomputes the cached global transform of this
// object only, from its parent's cached global.
func (o *GameObject) UpdateGlobalTransform() {
	td := o.data()
	td.global = o.world.globalOf(td)
}

func (o *GameObject) localChanged() {
	if o.IsStatic() {
		o.world.staticDirty = true
	}
}

// MakeDynamic moves the object and its subtree into the dynamic hierarchy.
func (o *GameObject) MakeDynamic() {
	o.world.MakeDynamic(o.handle)
}

// FindChildByName searches direct children, or the whole subtree when
// recursive is set.
func (o *GameObject) FindChildByName(name string, recursive bool) (ObjectHandle, bool) {
	for _, ch := range o.children {
		c, ok := o.world.objectPtr(ch)
		if !ok {
			continue
		}
		if c.name == name {
			return ch, true
		}
		if recursive {
			if h, ok := c.FindChildByName(name, true); ok {
				return h, true
			}
		}
	}
	return ObjectHandle{}, false
}

func (o *GameObject) removeComponent(h ComponentHandle) {
	for i, c := range o.components {
		if c == h {
			o.components = append(o.components[:i], o.components[i+1:]...)
			return
		}
	}
}

func (o *GameObject) removeChild(h ObjectHandle) bool {
	for i, c := range o.children {
		if c == h {
			o.children = append(o.children[:i], o.children[i+1:]...)
			return true
		}
	}
	return false
}

func (w *World) globalOf(td *TransformationData) xmath.Transform {
	local := td.localTransform()
	if td.parent.valid() {
		return xmath.Compose(w.td(td.parent).global, local)
	}
	return local
}

func (w *World) updateActiveState(obj *GameObject) {
	parentActive := true
	if p, ok := w.objectPtr(obj.parent); ok {
		parentActive = p.IsActive()
	}
	active := parentActive && obj.ActiveFlag()
	if obj.IsActive() == active {
		return
	}
	obj.flags.Set(FlagActiveState, active)
	for _, h := range obj.components {
		if m := w.Manager(h.TypeID()); m != nil {
			m.updateActiveState(h)
		}
	}
	for _, ch := range obj.children {
		if c, ok := w.objectPtr(ch); ok {
			w.updateActiveState(c)
		}
	}
}

// NextStableRandomSeed advances seed and returns the next value of a small
// LCG. Instantiation uses it to derive per-object seeds from a root value.
func NextStableRandomSeed(seed *uint32) uint32 {
	next := 214013*(*seed) + 2531011
	*seed = next
	return (next >> 16) & 0x7FFFF
}

// deriveSeed returns a seed that is neither sentinel.
func deriveSeed(base uint32) uint32 {
	for {
		if s := NextStableRandomSeed(&base); s != SeedRandom && s != SeedFromParent {
			return s
		}
	}
}

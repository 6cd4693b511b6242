package ecs

// Component is implemented by every component type through an embedded
// ComponentBase.
type Component interface {
	Base() *ComponentBase
}

// Optional lifecycle hooks. A component implements the ones it needs.
type (
	// Initializer runs once when the component's init batch reaches it.
	Initializer interface{ Initialize() }
	// Deinitializer runs before an initialized component is deleted.
	Deinitializer interface{ Deinitialize() }
	// Activator is notified when the active state changes after init.
	Activator interface {
		OnActivated()
		OnDeactivated()
	}
	// SimulationStarter runs once for active components while simulating.
	SimulationStarter interface{ OnSimulationStarted() }
	// MessageHandler receives messages addressed to the component or its
	// owner.
	MessageHandler interface{ HandleMessage(msg any) }
)

// ComponentBase carries the identity and state every component shares.
// It must be embedded by value.
type ComponentBase struct {
	handle ComponentHandle
	owner  ObjectHandle
	core   ComponentManager
	flags  Flags
}

func (c *ComponentBase) Base() *ComponentBase { return c }

func (c *ComponentBase) Handle() ComponentHandle      { return c.handle }
func (c *ComponentBase) Owner() ObjectHandle          { return c.owner }
func (c *ComponentBase) World() *World                { return c.core.World() }
func (c *ComponentBase) Flags() Flags                 { return c.flags }
func (c *ComponentBase) ActiveFlag() bool             { return c.flags.Has(FlagActiveFlag) }
func (c *ComponentBase) IsActive() bool               { return c.flags.Has(FlagActiveState) }
func (c *ComponentBase) IsInitialized() bool          { return c.flags.Has(FlagInitialized) }
func (c *ComponentBase) IsSimulationStarted() bool    { return c.flags.Has(FlagSimulationStarted) }
func (c *ComponentBase) WasCreatedByPrefab() bool     { return c.flags.Has(FlagCreatedByPrefab) }
func (c *ComponentBase) SetCreatedByPrefab(on bool)   { c.flags.Set(FlagCreatedByPrefab, on) }
func (c *ComponentBase) IsActiveAndInitialized() bool { return c.IsActive() && c.IsInitialized() }

func (c *ComponentBase) isDead() bool { return c.flags.Has(flagDead) }

// UserFlags returns the eight user-defined bits.
func (c *ComponentBase) UserFlags() uint8 {
	return uint8((c.flags & userFlagMask) >> userFlagShift)
}

func (c *ComponentBase) SetUserFlags(v uint8) {
	c.flags = c.flags&^userFlagMask | Flags(v)<<userFlagShift
}

func (c *ComponentBase) UserFlag(i int) bool {
	assertf(i >= 0 && i < 8, "user flag %d out of range", i)
	return c.UserFlags()&(1<<i) != 0
}

func (c *ComponentBase) SetUserFlag(i int, on bool) {
	assertf(i >= 0 && i < 8, "user flag %d out of range", i)
	v := c.UserFlags()
	if on {
		v |= 1 << i
	} else {
		v &^= 1 << i
	}
	c.SetUserFlags(v)
}

// SetActiveFlag toggles the component's own active flag. Activation
// callbacks fire only for initialized components of active owners.
func (c *ComponentBase) SetActiveFlag(active bool) {
	if c.ActiveFlag() == active {
		return
	}
	c.flags.Set(FlagActiveFlag, active)
	c.core.updateActiveState(c.handle)
}

// Manager returns the manager registered for the component's type, which
// may be a wrapper around the embedded storage manager.
func (c *ComponentBase) Manager() ComponentManager {
	return c.World().Manager(c.handle.TypeID())
}

// ComponentManager owns the storage of one component type in one world.
// Implementations embed *Manager[T, PT].
type ComponentManager interface {
	TypeInfo() *TypeInfo
	World() *World
	// Count is the number of live components.
	Count() int
	CreateComponentNoInit(owner ObjectHandle) (ComponentHandle, Component)
	InitializeComponent(h ComponentHandle)
	DeleteComponent(h ComponentHandle) bool
	TryGetComponent(h ComponentHandle) (Component, bool)
	EachComponent(fn func(Component) bool)

	storageLen() int
	updateActiveState(h ComponentHandle)
	initializeNow(h ComponentHandle) bool
	activateNow(h ComponentHandle)
	startSimulation()
	deleteDeadComponents()
	deinitializeAll()
}

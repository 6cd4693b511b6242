package ecs

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// UpdatePhase orders update functions within a frame.
type UpdatePhase uint8

const (
	PhasePreAsync UpdatePhase = iota
	// PhaseAsync functions run concurrently and must not change the world
	// structure. They may post messages.
	PhaseAsync
	PhasePostAsync
	PhasePostTransform
	phaseCount
)

func (p UpdatePhase) String() string {
	switch p {
	case PhasePreAsync:
		return "PreAsync"
	case PhaseAsync:
		return "Async"
	case PhasePostAsync:
		return "PostAsync"
	case PhasePostTransform:
		return "PostTransform"
	}
	return fmt.Sprintf("UpdatePhase(%d)", uint8(p))
}

// UpdateContext is passed to update functions. FirstIndex and Count select
// the manager storage range the call is responsible for.
type UpdateContext struct {
	World      *World
	DT         time.Duration
	FirstIndex int
	Count      int
}

type UpdateFunc func(ctx UpdateContext)

// UpdateFunctionDesc registers a per-frame callback.
type UpdateFunctionDesc struct {
	Name  string
	Func  UpdateFunc
	Phase UpdatePhase
	// OnlyWhenSimulating skips the function while simulation is paused.
	OnlyWhenSimulating bool
	// Granularity splits async functions into ranges of this many
	// components. Zero runs one call over the whole manager.
	Granularity int
	// Priority orders functions of one phase, higher first.
	Priority float32
	// DependsOn names functions that must run before this one.
	DependsOn []string
	// Manager supplies the component count for range splitting.
	Manager ComponentManager
}

type updateFunction struct {
	UpdateFunctionDesc
}

// RegisterUpdateFunction queues desc; it becomes active at the start of the
// next update, once all of its dependencies are registered.
func (w *World) RegisterUpdateFunction(desc UpdateFunctionDesc) {
	w.checkWrite()
	assertf(desc.Func != nil, "update function %q has no func", desc.Name)
	assertf(desc.Phase < phaseCount, "update function %q has invalid phase", desc.Name)
	w.pendingFuncs = append(w.pendingFuncs, &updateFunction{desc})
}

// DeregisterUpdateFunction removes the function with the given name.
func (w *World) DeregisterUpdateFunction(name string) {
	w.checkWrite()
	for p := range w.updateFuncs {
		fns := w.updateFuncs[p]
		for i, fn := range fns {
			if fn.Name == name {
				w.updateFuncs[p] = append(fns[:i], fns[i+1:]...)
				return
			}
		}
	}
	for i, fn := range w.pendingFuncs {
		if fn.Name == name {
			w.pendingFuncs = append(w.pendingFuncs[:i], w.pendingFuncs[i+1:]...)
			return
		}
	}
}

func (w *World) isRegistered(name string) bool {
	for _, fns := range w.updateFuncs {
		for _, fn := range fns {
			if fn.Name == name {
				return true
			}
		}
	}
	return false
}

func (w *World) registerPendingUpdateFunctions() {
	if len(w.pendingFuncs) == 0 {
		return
	}
	sort.SliceStable(w.pendingFuncs, func(i, j int) bool {
		return w.pendingFuncs[i].Priority > w.pendingFuncs[j].Priority
	})
	for progress := true; progress && len(w.pendingFuncs) > 0; {
		progress = false
		rest := w.pendingFuncs[:0]
		for _, fn := range w.pendingFuncs {
			if !w.dependenciesRegistered(fn) {
				rest = append(rest, fn)
				continue
			}
			w.insertUpdateFunction(fn)
			progress = true
		}
		w.pendingFuncs = rest
	}
	for _, fn := range w.pendingFuncs {
		w.log.Warn("update function waits for unregistered dependencies",
			zap.String("function", fn.Name), zap.Strings("dependsOn", fn.DependsOn))
	}
}

func (w *World) dependenciesRegistered(fn *updateFunction) bool {
	for _, dep := range fn.DependsOn {
		if !w.isRegistered(dep) {
			return false
		}
	}
	return true
}

// insertUpdateFunction places fn after its dependencies of the same phase
// and after functions with equal or higher priority.
func (w *World) insertUpdateFunction(fn *updateFunction) {
	fns := w.updateFuncs[fn.Phase]
	at := 0
	for i, other := range fns {
		for _, dep := range fn.DependsOn {
			if other.Name == dep && i+1 > at {
				at = i + 1
			}
		}
	}
	for at < len(fns) && fns[at].Priority >= fn.Priority {
		at++
	}
	fns = append(fns, nil)
	copy(fns[at+1:], fns[at:])
	fns[at] = fn
	w.updateFuncs[fn.Phase] = fns
}

// Update advances the world by one frame. It takes the write marker.
//
// Order: component initialization, NextFrame messages and PreAsync
// functions, Async functions, PostAsync messages and functions, removal of
// deleted objects and components, transform propagation, PostTransform
// messages and functions, then a second initialization pass followed by
// AfterInitialized messages.
func (w *World) Update(dt time.Duration) {
	w.Lock()
	defer w.Unlock()

	w.frame++
	w.dt = dt
	if w.simulating {
		w.clock += dt
	}

	w.registerPendingUpdateFunctions()
	w.processComponentsToInitialize(time.Now().Add(w.maxInitTime))
	if w.simStartPending && w.simulating {
		w.simStartPending = false
		for _, m := range w.managers {
			if m != nil {
				m.startSimulation()
			}
		}
	}
	w.deliverQueue(QueueAfterInitialized)

	w.deliverQueue(QueueNextFrame)
	w.runUpdatePhase(PhasePreAsync)

	w.runAsyncPhase()

	w.deliverQueue(QueuePostAsync)
	w.runUpdatePhase(PhasePostAsync)

	w.deleteDeadObjects()
	w.deleteDeadComponents()

	w.updateGlobalTransforms(dt)

	w.deliverQueue(QueuePostTransform)
	w.runUpdatePhase(PhasePostTransform)

	def, _ := w.initBatches.TryGet(w.defaultBatch.ID)
	w.processInitBatch(def, time.Time{})
	def.reset()
	w.deliverQueue(QueueAfterInitialized)
}

func (w *World) skip(fn *updateFunction) bool {
	return fn.OnlyWhenSimulating && !w.simulating
}

func (w *World) runUpdatePhase(phase UpdatePhase) {
	for _, fn := range w.updateFuncs[phase] {
		if w.skip(fn) {
			continue
		}
		count := 0
		if fn.Manager != nil {
			count = fn.Manager.storageLen()
		}
		fn.Func(UpdateContext{World: w, DT: w.dt, Count: count})
	}
}

// runAsyncPhase runs async functions on a bounded errgroup, split into
// storage ranges by granularity. Structural changes assert meanwhile.
func (w *World) runAsyncPhase() {
	fns := w.updateFuncs[PhaseAsync]
	if len(fns) == 0 {
		return
	}
	w.async.Store(true)
	defer w.async.Store(false)

	var g errgroup.Group
	g.SetLimit(w.workers)
	for _, fn := range fns {
		if w.skip(fn) {
			continue
		}
		total := 0
		if fn.Manager != nil {
			total = fn.Manager.storageLen()
		}
		gran := fn.Granularity
		if gran <= 0 || gran > total {
			gran = total
		}
		if gran == 0 {
			f := fn.Func
			g.Go(func() error {
				f(UpdateContext{World: w, DT: w.dt})
				return nil
			})
			continue
		}
		for first := 0; first < total; first += gran {
			f, ctx := fn.Func, UpdateContext{World: w, DT: w.dt, FirstIndex: first, Count: min(gran, total-first)}
			g.Go(func() error {
				f(ctx)
				return nil
			})
		}
	}
	_ = g.Wait()
}

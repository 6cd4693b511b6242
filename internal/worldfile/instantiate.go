package worldfile

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/xmath"
	"github.com/hmcore/world/internal/stream"
)

// Phase is a state of an Instantiation. Phases run strictly in order.
type Phase uint8

const (
	PhaseCreateRootObjects Phase = iota
	PhaseCreateChildObjects
	PhaseCreateComponents
	PhaseDeserializeComponents
	PhaseAddComponentsToBatch
	PhaseInitComponents
	phaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseCreateRootObjects:
		return "CreateRootObjects"
	case PhaseCreateChildObjects:
		return "CreateChildObjects"
	case PhaseCreateComponents:
		return "CreateComponents"
	case PhaseDeserializeComponents:
		return "DeserializeComponents"
	case PhaseAddComponentsToBatch:
		return "AddComponentsToBatch"
	case PhaseInitComponents:
		return "InitComponents"
	case phaseDone:
		return "Done"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// StepResult tells the caller how to continue an instantiation.
type StepResult uint8

const (
	// Continue means the step ran out of time; step again right away.
	Continue StepResult = iota
	// ContinueNextFrame means components wait for initialization in the
	// next world update.
	ContinueNextFrame
	Finished
)

func (r StepResult) String() string {
	switch r {
	case Continue:
		return "Continue"
	case ContinueNextFrame:
		return "ContinueNextFrame"
	case Finished:
		return "Finished"
	}
	return fmt.Sprintf("StepResult(%d)", uint8(r))
}

// RandomSeedMode selects how stable random seeds of created objects are
// assigned.
type RandomSeedMode uint8

const (
	// DeterministicFromParent derives seeds from the parent object.
	DeterministicFromParent RandomSeedMode = iota
	CompletelyRandom
	// FixedFromSerialization keeps the seeds stored in the snapshot.
	FixedFromSerialization
	// CustomRootValue derives every seed from Options.CustomRootSeed.
	CustomRootValue
)

// Options configures Reader.Instantiate.
type Options struct {
	// Parent receives the snapshot's root objects.
	Parent ecs.ObjectHandle
	// OverrideTeamID replaces the team id of every created object.
	OverrideTeamID *uint16
	ForceDynamic   bool
	// CreatedByPrefab marks created objects and components, so they are not
	// written by WriteWorld.
	CreatedByPrefab bool
	// ReplaceNamedRootWithParent uses Parent in place of the snapshot's
	// single root object when that root has this name.
	ReplaceNamedRootWithParent string
	RandomSeedMode             RandomSeedMode
	CustomRootSeed             uint32
	// MaxStepTime bounds each Step. Zero instantiates synchronously.
	MaxStepTime time.Duration
	// Progress is called with the completion of the current phase.
	Progress func(phase Phase, completion float64)
}

// Instantiation creates the objects and components of a parsed snapshot
// in a world, optionally spread over several frames. Steps take the
// world's write marker.
type Instantiation struct {
	r            *Reader
	world        *ecs.World
	log          *zap.Logger
	useTransform bool
	root         xmath.Transform
	opts         Options

	phase    Phase
	started  bool
	seed     uint32
	batch    ecs.InitBatchHandle
	hasBatch bool

	objects    []ecs.ObjectHandle
	components [][]ecs.ComponentHandle
	typeIdx    int
	idx        int
	payload    *stream.Reader

	createdRoots    []ecs.ObjectHandle
	createdChildren []ecs.ObjectHandle
}

// Instantiate creates the snapshot's objects below opts.Parent with root
// applied to the root objects. With MaxStepTime == 0 it runs to completion
// before returning; otherwise the caller steps the returned instantiation.
// The caller must not hold the world's marker.
func (r *Reader) Instantiate(w *ecs.World, root xmath.Transform, opts Options) *Instantiation {
	return r.instantiate(w, true, root, opts)
}

// InstantiateWorld recreates the snapshot as it was written, keeping the
// stored random seeds.
func (r *Reader) InstantiateWorld(w *ecs.World, overrideTeamID *uint16, maxStepTime time.Duration, progress func(Phase, float64)) *Instantiation {
	return r.instantiate(w, false, xmath.Identity(), Options{
		OverrideTeamID: overrideTeamID,
		RandomSeedMode: FixedFromSerialization,
		MaxStepTime:    maxStepTime,
		Progress:       progress,
	})
}

func (r *Reader) instantiate(w *ecs.World, useTransform bool, root xmath.Transform, opts Options) *Instantiation {
	inst := &Instantiation{
		r:            r,
		world:        w,
		log:          r.log,
		useTransform: useTransform,
		root:         root,
		opts:         opts,
		seed:         opts.CustomRootSeed,
		objects:      make([]ecs.ObjectHandle, 1, 1+len(r.roots)+len(r.children)),
		components:   make([][]ecs.ComponentHandle, len(r.types)),
	}
	for i := range inst.components {
		inst.components[i] = make([]ecs.ComponentHandle, 1, 1+len(r.types[i].creation))
	}
	if opts.MaxStepTime <= 0 {
		res := inst.StepUntil(time.Time{})
		if res != Finished {
			panic(fmt.Sprintf("synchronous instantiation ended with %v", res))
		}
	}
	return inst
}

func (inst *Instantiation) Phase() Phase { return inst.phase }
func (inst *Instantiation) Done() bool   { return inst.phase == phaseDone }

// CreatedRoots returns the created root objects, including the parent when
// it replaced the snapshot's root.
func (inst *Instantiation) CreatedRoots() []ecs.ObjectHandle { return inst.createdRoots }

func (inst *Instantiation) CreatedChildren() []ecs.ObjectHandle { return inst.createdChildren }

// Step runs until MaxStepTime has passed.
func (inst *Instantiation) Step() StepResult {
	var deadline time.Time
	if inst.opts.MaxStepTime > 0 {
		deadline = time.Now().Add(inst.opts.MaxStepTime)
	}
	return inst.StepUntil(deadline)
}

// StepUntil processes records until deadline passes. The deadline is only
// checked between records and at least one record is processed per call.
// A zero deadline means no limit.
func (inst *Instantiation) StepUntil(deadline time.Time) StepResult {
	if inst.phase == phaseDone {
		return Finished
	}
	w := inst.world
	w.Lock()
	defer w.Unlock()

	expired := func() bool {
		return !deadline.IsZero() && !time.Now().Before(deadline)
	}

	if !inst.started {
		inst.started = true
		if inst.opts.MaxStepTime > 0 {
			inst.batch = w.CreateComponentInitBatch("worldfile", false)
			inst.hasBatch = true
		}
		inst.replaceRoot()
	}

	if inst.phase == PhaseCreateRootObjects {
		if !inst.createObjects(inst.r.roots, true, expired) {
			return Continue
		}
		inst.nextPhase(PhaseCreateChildObjects)
	}
	if inst.phase == PhaseCreateChildObjects {
		if !inst.createObjects(inst.r.children, false, expired) {
			return Continue
		}
		inst.nextPhase(PhaseCreateComponents)
	}
	if inst.phase == PhaseCreateComponents {
		if !inst.createComponents(expired) {
			return Continue
		}
		inst.nextPhase(PhaseDeserializeComponents)
	}
	if inst.phase == PhaseDeserializeComponents {
		if !inst.deserializeComponents(expired) {
			return Continue
		}
		inst.nextPhase(PhaseAddComponentsToBatch)
	}
	if inst.phase == PhaseAddComponentsToBatch {
		if !inst.addComponentsToBatch(expired) {
			return Continue
		}
		inst.nextPhase(PhaseInitComponents)
	}
	if inst.phase == PhaseInitComponents && inst.hasBatch {
		done, completion := w.IsComponentInitBatchCompleted(inst.batch)
		if !done {
			inst.progress(completion)
			return ContinueNextFrame
		}
		w.DeleteComponentInitBatch(inst.batch)
		inst.hasBatch = false
	}
	inst.nextPhase(phaseDone)
	inst.log.Debug("instantiation finished",
		zap.String("world", w.Name()),
		zap.Int("roots", len(inst.createdRoots)),
		zap.Int("children", len(inst.createdChildren)))
	return Finished
}

// Cancel stops the instantiation. Objects and components created so far
// stay valid; components that were not initialized yet stay uninitialized.
func (inst *Instantiation) Cancel() {
	if inst.phase == phaseDone {
		return
	}
	w := inst.world
	w.Lock()
	defer w.Unlock()
	if inst.hasBatch {
		w.CancelComponentInitBatch(inst.batch)
		w.DeleteComponentInitBatch(inst.batch)
		inst.hasBatch = false
	}
	inst.phase = phaseDone
	inst.payload = nil
}

func (inst *Instantiation) nextPhase(p Phase) {
	inst.progress(1)
	inst.phase = p
	inst.typeIdx, inst.idx = 0, 0
	inst.payload = nil
}

func (inst *Instantiation) progress(completion float64) {
	if inst.opts.Progress != nil && inst.phase != phaseDone {
		inst.opts.Progress(inst.phase, completion)
	}
}

func (inst *Instantiation) replaceRoot() {
	name := inst.opts.ReplaceNamedRootWithParent
	if name == "" || len(inst.r.roots) != 1 || inst.r.roots[0].name != name {
		return
	}
	parent, ok := inst.world.TryGetObject(inst.opts.Parent)
	if !ok {
		inst.log.Warn("root replacement requested without a valid parent", zap.String("root", name))
		return
	}
	inst.objects = append(inst.objects, inst.opts.Parent)
	inst.createdRoots = append(inst.createdRoots, inst.opts.Parent)
	if inst.r.roots[0].dynamic {
		parent.MakeDynamic()
	}
	inst.idx = 1
}

func (inst *Instantiation) createObjects(records []objectRecord, roots bool, expired func() bool) bool {
	for inst.idx < len(records) {
		rec := &records[inst.idx]
		desc := ecs.ObjectDesc{
			Name:              rec.name,
			GlobalKey:         rec.globalKey,
			Parent:            inst.objects[rec.parent],
			LocalPosition:     rec.local.Position,
			LocalRotation:     rec.local.Rotation,
			LocalScaling:      rec.local.Scale,
			LocalUniformScale: rec.uniform,
			Dynamic:           rec.dynamic || inst.opts.ForceDynamic,
			Inactive:          !rec.active,
			CreatedByPrefab:   inst.opts.CreatedByPrefab,
			Tags:              ecs.NewTagSet(rec.tags...),
			TeamID:            rec.team,
			StableRandomSeed:  rec.seed,
		}
		if roots && !inst.opts.Parent.IsZero() {
			desc.Parent = inst.opts.Parent
		}
		switch inst.opts.RandomSeedMode {
		case DeterministicFromParent:
			desc.StableRandomSeed = ecs.SeedFromParent
		case CompletelyRandom:
			desc.StableRandomSeed = ecs.SeedRandom
		case CustomRootValue:
			desc.StableRandomSeed = ecs.NextStableRandomSeed(&inst.seed)
		}
		if inst.opts.OverrideTeamID != nil {
			desc.TeamID = *inst.opts.OverrideTeamID
		}
		if roots && inst.useTransform {
			t := xmath.Compose(inst.root, rec.local)
			desc.LocalPosition, desc.LocalRotation, desc.LocalScaling = t.Position, t.Rotation, t.Scale
		}

		h := inst.world.CreateObject(desc)
		if desc.LocalScaling == (xmath.Vec3{}) || desc.LocalUniformScale == 0 {
			// ObjectDesc reads zero scales as unset; restore the stored ones.
			obj, _ := inst.world.TryGetObject(h)
			obj.SetLocalScaling(desc.LocalScaling)
			obj.SetLocalUniformScale(desc.LocalUniformScale)
		}
		inst.objects = append(inst.objects, h)
		if roots {
			inst.createdRoots = append(inst.createdRoots, h)
		} else {
			inst.createdChildren = append(inst.createdChildren, h)
		}
		inst.idx++
		if expired() {
			inst.progress(float64(inst.idx) / float64(len(records)))
			return false
		}
	}
	return true
}

func (inst *Instantiation) createComponents(expired func() bool) bool {
	w := inst.world
	for ; inst.typeIdx < len(inst.r.types); inst.typeIdx++ {
		t := &inst.r.types[inst.typeIdx]
		if t.info == nil || len(t.creation) == 0 {
			continue
		}
		m := w.GetOrCreateManager(t.info)
		for inst.idx < len(t.creation) {
			rec := t.creation[inst.idx]
			inst.idx++
			var h ecs.ComponentHandle
			// The world may have deleted created objects between steps.
			if owner := inst.objects[rec.owner]; !w.IsValidObject(owner) {
				inst.log.Warn("component owner no longer exists",
					zap.String("type", t.name), zap.Stringer("owner", owner.ID))
			} else {
				var c ecs.Component
				h, c = m.CreateComponentNoInit(owner)
				b := c.Base()
				b.SetActiveFlag(rec.active)
				b.SetUserFlags(rec.userFlags)
				if inst.opts.CreatedByPrefab {
					b.SetCreatedByPrefab(true)
				}
			}
			inst.components[inst.typeIdx] = append(inst.components[inst.typeIdx], h)
			if expired() {
				inst.progress(float64(inst.idx) / float64(len(t.creation)))
				return false
			}
		}
		inst.idx = 0
	}
	return true
}

func (inst *Instantiation) deserializeComponents(expired func() bool) bool {
	w := inst.world
	for ; inst.typeIdx < len(inst.r.types); inst.typeIdx++ {
		t := &inst.r.types[inst.typeIdx]
		if t.info == nil {
			continue
		}
		if inst.payload == nil {
			inst.payload = stream.NewReaderWithStrings(t.payload, inst.r.strings)
		}
		handles := inst.components[inst.typeIdx]
		truncated := false
		for inst.idx+1 < len(handles) {
			inst.idx++
			c, ok := w.TryGetComponent(handles[inst.idx])
			if !ok {
				// Payloads have no per-component length, so the rest of
				// this type cannot be located any more.
				inst.log.Warn("component missing during instantiation, skipping the rest of its type",
					zap.String("type", t.name), zap.Int("skipped", len(handles)-inst.idx))
				truncated = true
				break
			}
			if d, ok := c.(ecs.Deserializer); ok {
				d.Deserialize(componentReader{inst: inst, version: t.version})
			}
			if expired() {
				return false
			}
		}
		switch err := inst.payload.Err(); {
		case truncated:
		case err != nil:
			inst.log.Error("component payload is corrupt",
				zap.String("type", t.name), zap.Error(err))
		case inst.payload.Remaining() != 0:
			inst.log.Warn("component payload not fully consumed",
				zap.String("type", t.name), zap.Int("bytes", inst.payload.Remaining()))
		}
		inst.payload = nil
		inst.idx = 0
	}
	return true
}

func (inst *Instantiation) addComponentsToBatch(expired func() bool) bool {
	w := inst.world
	if inst.hasBatch {
		w.BeginAddingComponentsToInitBatch(inst.batch)
	}
	for ; inst.typeIdx < len(inst.r.types); inst.typeIdx++ {
		handles := inst.components[inst.typeIdx]
		for inst.idx+1 < len(handles) {
			inst.idx++
			h := handles[inst.idx]
			if h.IsZero() {
				continue
			}
			if m := w.Manager(h.TypeID()); m != nil {
				m.InitializeComponent(h)
			}
			if expired() {
				if inst.hasBatch {
					w.EndAddingComponentsToInitBatch(inst.batch)
				}
				return false
			}
		}
		inst.idx = 0
	}
	if inst.hasBatch {
		w.EndAddingComponentsToInitBatch(inst.batch)
		w.SubmitComponentInitBatch(inst.batch)
	}
	return true
}

// componentReader resolves snapshot references for Deserializer
// implementations.
type componentReader struct {
	inst    *Instantiation
	version uint32
}

func (cr componentReader) Stream() *stream.Reader { return cr.inst.payload }
func (cr componentReader) Version() uint32        { return cr.version }

func (cr componentReader) ReadObjectRef() ecs.ObjectHandle {
	idx := cr.inst.payload.ReadU32()
	if int(idx) >= len(cr.inst.objects) {
		return ecs.ObjectHandle{}
	}
	return cr.inst.objects[idx]
}

func (cr componentReader) ReadComponentRef() ecs.ComponentHandle {
	typeIdx := int(cr.inst.payload.ReadU16())
	idx := int(cr.inst.payload.ReadU32())
	if typeIdx >= len(cr.inst.components) || idx >= len(cr.inst.components[typeIdx]) {
		return ecs.ComponentHandle{}
	}
	return cr.inst.components[typeIdx][idx]
}

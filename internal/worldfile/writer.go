package worldfile

import (
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/stream"
)

// Version is the snapshot format written by Writer. Version 9 files,
// which lack stable random seeds, are still readable.
const (
	Version    = 10
	minVersion = 9
)

type writtenType struct {
	info       *ecs.TypeInfo
	components []ecs.Component
	index      map[ecs.ComponentHandle]uint32
	serialized uint16
}

// Writer serializes objects and components of a world into the snapshot
// format. A Writer can be reused but not shared between goroutines.
type Writer struct {
	log     *zap.Logger
	world   *ecs.World
	exclude ecs.TagSet

	roots    []*ecs.GameObject
	children []*ecs.GameObject
	objects  map[ecs.ObjectHandle]uint32
	types    map[ecs.TypeID]*writtenType

	out *stream.Writer
}

func NewWriter(log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{log: log}
}

func (wr *Writer) reset(w *ecs.World) {
	wr.world = w
	wr.exclude = ecs.TagSet{}
	wr.roots = wr.roots[:0]
	wr.children = wr.children[:0]
	wr.objects = map[ecs.ObjectHandle]uint32{{}: 0}
	wr.types = make(map[ecs.TypeID]*writtenType)
	wr.out = nil
}

// WriteWorld writes every object of w except subtrees tagged with one of
// exclude's tags and subtrees created from prefabs. It takes the world's
// read marker.
func (wr *Writer) WriteWorld(out io.Writer, w *ecs.World, exclude ecs.TagSet) error {
	w.RLock()
	defer w.RUnlock()

	wr.reset(w)
	wr.exclude = exclude
	w.Traverse(ecs.DepthFirst, func(obj *ecs.GameObject) ecs.VisitResult {
		if !wr.collect(obj, obj.Parent().IsZero()) {
			return ecs.SkipSubtree
		}
		return ecs.Continue
	})
	return wr.flush(out)
}

// WriteObjects writes the given objects and their subtrees. The given
// objects become the roots of the snapshot.
func (wr *Writer) WriteObjects(out io.Writer, w *ecs.World, roots []ecs.ObjectHandle) error {
	w.RLock()
	defer w.RUnlock()

	wr.reset(w)
	for _, h := range roots {
		obj, ok := w.TryGetObject(h)
		if !ok {
			wr.log.Warn("object to write does not exist", zap.Stringer("object", h.ID))
			continue
		}
		wr.collectSubtree(obj, true)
	}
	return wr.flush(out)
}

func (wr *Writer) collectSubtree(obj *ecs.GameObject, root bool) {
	if !wr.collect(obj, root) {
		return
	}
	for _, ch := range obj.Children() {
		if c, ok := wr.world.TryGetObject(ch); ok {
			wr.collectSubtree(c, false)
		}
	}
}

// collect records obj and its components and reports whether its subtree
// should be written.
func (wr *Writer) collect(obj *ecs.GameObject, root bool) bool {
	if wr.exclude.Len() > 0 && obj.Tags().IsAnySet(wr.exclude) {
		return false
	}
	if obj.WasCreatedByPrefab() {
		return false
	}
	if root {
		wr.roots = append(wr.roots, obj)
	} else {
		wr.children = append(wr.children, obj)
	}
	for _, h := range obj.Components() {
		c, ok := wr.world.TryGetComponent(h)
		if !ok || c.Base().WasCreatedByPrefab() {
			continue
		}
		t := wr.types[h.TypeID()]
		if t == nil {
			m := wr.world.Manager(h.TypeID())
			if m == nil {
				continue
			}
			t = &writtenType{info: m.TypeInfo(), index: map[ecs.ComponentHandle]uint32{{}: 0}}
			wr.types[h.TypeID()] = t
		}
		t.components = append(t.components, c)
	}
	return true
}

func (wr *Writer) flush(out io.Writer) error {
	sorted := make([]*writtenType, 0, len(wr.types))
	for _, t := range wr.types {
		sorted = append(sorted, t)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].info.Name < sorted[j].info.Name })
	if len(sorted) > 0xFFFF {
		return fmt.Errorf("write world: %d component types exceed the format limit", len(sorted))
	}

	idx := uint32(1)
	for _, list := range [][]*ecs.GameObject{wr.roots, wr.children} {
		for _, obj := range list {
			wr.objects[obj.Handle()] = idx
			idx++
		}
	}
	for i, t := range sorted {
		t.serialized = uint16(i)
		for j, c := range t.components {
			t.index[c.Base().Handle()] = uint32(j + 1)
		}
	}

	table := stream.NewStringTable()
	body := stream.NewWriterWithStrings(table)
	wr.out = body

	body.WriteU32(uint32(len(wr.roots)))
	body.WriteU32(uint32(len(wr.children)))
	body.WriteU32(uint32(len(sorted)))
	for _, obj := range wr.roots {
		wr.writeObject(obj, true)
	}
	for _, obj := range wr.children {
		wr.writeObject(obj, false)
	}
	for _, t := range sorted {
		body.WriteString(t.info.Name)
		body.WriteU32(t.info.Version)
	}

	block := stream.NewWriterWithStrings(table)
	wr.out = block
	for _, t := range sorted {
		block.Reset()
		block.WriteU32(uint32(len(t.components)))
		for j, c := range t.components {
			b := c.Base()
			wr.WriteObjectRef(b.Owner())
			block.WriteU32(uint32(j + 1))
			block.WriteBool(b.ActiveFlag())
			block.WriteU8(b.UserFlags())
		}
		body.WriteBlock(block.Bytes())
	}
	for _, t := range sorted {
		block.Reset()
		for _, c := range t.components {
			if s, ok := c.(ecs.Serializer); ok {
				s.Serialize(wr)
			}
		}
		body.WriteBlock(block.Bytes())
	}
	wr.out = nil

	head := stream.NewWriter()
	head.WriteU8(Version)
	table.WriteTo(head)
	if _, err := out.Write(head.Bytes()); err != nil {
		return fmt.Errorf("write world header: %w", err)
	}
	if _, err := out.Write(body.Bytes()); err != nil {
		return fmt.Errorf("write world body: %w", err)
	}
	wr.log.Debug("world written",
		zap.String("world", wr.world.Name()),
		zap.Int("roots", len(wr.roots)),
		zap.Int("children", len(wr.children)),
		zap.Int("types", len(sorted)),
		zap.Int("bytes", head.Len()+body.Len()))
	return nil
}

func (wr *Writer) writeObject(obj *ecs.GameObject, root bool) {
	s := wr.out
	if root {
		s.WriteU32(0)
	} else {
		wr.WriteObjectRef(obj.Parent())
	}
	s.WriteString(obj.Name())
	s.WriteString(obj.GlobalKey())
	s.WriteVec3(obj.LocalPosition())
	s.WriteQuat(obj.LocalRotation())
	s.WriteVec3(obj.LocalScaling())
	s.WriteF32(obj.LocalUniformScale())
	s.WriteBool(obj.ActiveFlag())
	s.WriteBool(obj.IsDynamic())
	tags := obj.Tags().Values()
	s.WriteU16(uint16(len(tags)))
	for _, tag := range tags {
		s.WriteString(tag)
	}
	s.WriteU16(obj.TeamID())
	s.WriteU32(obj.StableRandomSeed())
}

// Stream returns the stream component payloads are written to.
func (wr *Writer) Stream() *stream.Writer { return wr.out }

// WriteObjectRef writes the snapshot index of h. Objects that are not part
// of the snapshot are written as "no object".
func (wr *Writer) WriteObjectRef(h ecs.ObjectHandle) {
	idx, ok := wr.objects[h]
	if !ok {
		wr.log.Warn("referenced object is not part of the snapshot",
			zap.Stringer("object", h.ID))
	}
	wr.out.WriteU32(idx)
}

// WriteComponentRef writes h as (type index, index within type).
func (wr *Writer) WriteComponentRef(h ecs.ComponentHandle) {
	var typeIdx uint16
	var idx uint32
	if !h.IsZero() {
		if t, ok := wr.types[h.TypeID()]; ok {
			if i, ok := t.index[h]; ok {
				typeIdx, idx = t.serialized, i
			}
		}
		if idx == 0 {
			wr.log.Warn("referenced component is not part of the snapshot",
				zap.Stringer("component", h.ID))
		}
	}
	wr.out.WriteU16(typeIdx)
	wr.out.WriteU32(idx)
}

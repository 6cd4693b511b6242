package worldfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/xmath"
	"github.com/hmcore/world/internal/stream"
)

var (
	ErrUnsupportedVersion = errors.New("worldfile: unsupported version")
	ErrCorrupt            = errors.New("worldfile: corrupt snapshot")
)

// minObjectRecord is the encoded size of an object record without tags.
func minObjectRecord(version uint8) int {
	n := 4 + 4 + 4 + 12 + 16 + 12 + 4 + 1 + 1 + 2 + 2
	if version >= 10 {
		n += 4 // stable random seed
	}
	return n
}

type objectRecord struct {
	parent    uint32
	name      string
	globalKey string
	local     xmath.Transform
	uniform   float32
	active    bool
	dynamic   bool
	tags      []string
	team      uint16
	seed      uint32
}

type creationRecord struct {
	owner     uint32
	active    bool
	userFlags uint8
}

type typeRecord struct {
	name     string
	version  uint32
	info     *ecs.TypeInfo // nil when the type is unknown and skipped
	creation []creationRecord
	payload  []byte
}

// TypeSummary describes one component type stored in a snapshot.
type TypeSummary struct {
	Name       string
	Version    uint32
	Components int
	Known      bool
}

// Reader parses a snapshot into memory. The parsed description can be
// instantiated any number of times, into any world.
type Reader struct {
	registry *ecs.TypeRegistry
	log      *zap.Logger

	// Resolve, when set, replaces the registry lookup of component types by
	// name. Returning nil skips the type.
	Resolve func(name string) *ecs.TypeInfo

	version    uint8
	strings    []string
	roots      []objectRecord
	children   []objectRecord
	types      []typeRecord
	components int
}

func NewReader(registry *ecs.TypeRegistry, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{registry: registry, log: log}
}

// ReadDescription parses src without touching any world. On error the
// reader holds no description.
func (r *Reader) ReadDescription(src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	r.clear()
	if err := r.parse(data); err != nil {
		r.clear()
		return err
	}
	r.log.Debug("snapshot description read",
		zap.Uint8("version", r.version),
		zap.Int("roots", len(r.roots)),
		zap.Int("children", len(r.children)),
		zap.Int("components", r.components))
	return nil
}

// ReadDescriptionBytes is ReadDescription over an in-memory snapshot.
func (r *Reader) ReadDescriptionBytes(data []byte) error {
	return r.ReadDescription(bytes.NewReader(data))
}

func (r *Reader) clear() {
	r.version = 0
	r.strings = nil
	r.roots = nil
	r.children = nil
	r.types = nil
	r.components = 0
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

func (r *Reader) parse(data []byte) error {
	s := stream.NewReader(data)
	r.version = s.ReadU8()
	if s.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, s.Err())
	}
	if r.version < minVersion || r.version > Version {
		return fmt.Errorf("%w: got %d, want %d to %d", ErrUnsupportedVersion, r.version, minVersion, Version)
	}

	table, err := stream.ReadStringTable(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	r.strings = table
	s = stream.NewReaderWithStrings(data[s.Offset():], table)

	numRoots := s.ReadU32()
	numChildren := s.ReadU32()
	numTypes := s.ReadU32()
	if s.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, s.Err())
	}
	if numTypes > 0xFFFF {
		return corrupt("%d component types", numTypes)
	}
	if uint64(numRoots)+uint64(numChildren) > uint64(s.Remaining()/minObjectRecord(r.version)) {
		return corrupt("%d objects do not fit into %d bytes", uint64(numRoots)+uint64(numChildren), s.Remaining())
	}

	r.roots = make([]objectRecord, numRoots)
	for i := range r.roots {
		rec := &r.roots[i]
		r.readObject(s, rec)
		if s.Err() == nil && rec.parent != 0 {
			return corrupt("root object %d has parent index %d", i+1, rec.parent)
		}
	}
	r.children = make([]objectRecord, numChildren)
	for i := range r.children {
		rec := &r.children[i]
		r.readObject(s, rec)
		self := numRoots + uint32(i) + 1
		if s.Err() == nil && (rec.parent == 0 || rec.parent >= self) {
			return corrupt("child object %d has parent index %d", self, rec.parent)
		}
	}
	if s.Err() != nil {
		return fmt.Errorf("%w: objects: %w", ErrCorrupt, s.Err())
	}

	r.types = make([]typeRecord, numTypes)
	for i := range r.types {
		t := &r.types[i]
		t.name = s.ReadString()
		t.version = s.ReadU32()
		if s.Err() != nil {
			break
		}
		t.info = r.resolve(t.name)
	}
	if s.Err() != nil {
		return fmt.Errorf("%w: component types: %w", ErrCorrupt, s.Err())
	}

	total := numRoots + numChildren
	for i := range r.types {
		t := &r.types[i]
		block := s.ReadBlock()
		if s.Err() != nil {
			return fmt.Errorf("%w: creation data of %q: %w", ErrCorrupt, t.name, s.Err())
		}
		if t.info == nil {
			r.log.Warn("skipping components of unknown type",
				zap.String("type", t.name), zap.Int("bytes", len(block)))
			continue
		}
		if err := r.readCreation(t, block, total); err != nil {
			return err
		}
		r.components += len(t.creation)
	}
	for i := range r.types {
		t := &r.types[i]
		payload := s.ReadBlock()
		if s.Err() != nil {
			return fmt.Errorf("%w: payload of %q: %w", ErrCorrupt, t.name, s.Err())
		}
		if t.info != nil {
			t.payload = payload
		}
	}
	if s.Remaining() != 0 {
		return corrupt("%d trailing bytes", s.Remaining())
	}
	return nil
}

func (r *Reader) resolve(name string) *ecs.TypeInfo {
	if r.Resolve != nil {
		return r.Resolve(name)
	}
	if r.registry == nil {
		return nil
	}
	info, ok := r.registry.Lookup(name)
	if !ok {
		return nil
	}
	return info
}

func (r *Reader) readObject(s *stream.Reader, rec *objectRecord) {
	rec.parent = s.ReadU32()
	rec.name = s.ReadString()
	rec.globalKey = s.ReadString()
	rec.local.Position = s.ReadVec3()
	rec.local.Rotation = s.ReadQuat()
	rec.local.Scale = s.ReadVec3()
	rec.uniform = s.ReadF32()
	rec.active = s.ReadBool()
	rec.dynamic = s.ReadBool()
	n := int(s.ReadU16())
	if n > 0 {
		rec.tags = make([]string, 0, n)
		for j := 0; j < n; j++ {
			rec.tags = append(rec.tags, s.ReadString())
		}
	}
	rec.team = s.ReadU16()
	if r.version >= 10 {
		rec.seed = s.ReadU32()
	}
}

func (r *Reader) readCreation(t *typeRecord, block []byte, objects uint32) error {
	s := stream.NewReader(block)
	n := s.ReadU32()
	if s.Err() == nil && uint64(n) > uint64(s.Remaining()/10) {
		return corrupt("%d components of %q do not fit into %d bytes", n, t.name, s.Remaining())
	}
	t.creation = make([]creationRecord, 0, n)
	for i := uint32(0); i < n && s.Err() == nil; i++ {
		owner := s.ReadU32()
		idx := s.ReadU32()
		rec := creationRecord{owner: owner, active: s.ReadBool(), userFlags: s.ReadU8()}
		if s.Err() != nil {
			break
		}
		if owner == 0 || owner > objects {
			return corrupt("component %d of %q has owner %d", idx, t.name, owner)
		}
		if idx != i+1 {
			return corrupt("component %d of %q is stored at position %d", idx, t.name, i+1)
		}
		t.creation = append(t.creation, rec)
	}
	if s.Err() != nil {
		return fmt.Errorf("%w: creation data of %q: %w", ErrCorrupt, t.name, s.Err())
	}
	return nil
}

// Version returns the format version of the parsed snapshot.
func (r *Reader) Version() uint8 { return r.version }

func (r *Reader) RootObjectCount() int  { return len(r.roots) }
func (r *Reader) ChildObjectCount() int { return len(r.children) }

// ComponentCount counts components of known types.
func (r *Reader) ComponentCount() int { return r.components }

// Types lists the component types of the snapshot in file order.
func (r *Reader) Types() []TypeSummary {
	out := make([]TypeSummary, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, TypeSummary{
			Name:       t.name,
			Version:    t.version,
			Components: len(t.creation),
			Known:      t.info != nil,
		})
	}
	return out
}

// RootNames returns the names of the root objects.
func (r *Reader) RootNames() []string {
	out := make([]string, 0, len(r.roots))
	for _, rec := range r.roots {
		out = append(out, rec.name)
	}
	return out
}

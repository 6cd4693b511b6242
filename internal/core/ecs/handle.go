package ecs

import "fmt"

// ID packs a 32-bit instance index, an 8-bit generation, an 8-bit world
// index and a 16-bit type id. Index 0 is never allocated, so the zero ID is
// always invalid.
type ID uint64

func MakeID(index uint32, generation, world uint8, typeID uint16) ID {
	return ID(uint64(typeID)<<48 | uint64(world)<<40 | uint64(generation)<<32 | uint64(index))
}

func (id ID) Index() uint32     { return uint32(id) }
func (id ID) Generation() uint8 { return uint8(id >> 32) }
func (id ID) WorldIndex() uint8 { return uint8(id >> 40) }
func (id ID) TypeID() TypeID    { return TypeID(id >> 48) }
func (id ID) IsZero() bool      { return id == 0 }

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Index(), id.Generation())
}

// ObjectHandle refers to a game object. Stale handles fail lookup.
type ObjectHandle struct{ ID }

// ComponentHandle refers to a component; its type id selects the manager.
type ComponentHandle struct{ ID }

type idSlot[T any] struct {
	value T
	gen   uint8
	used  bool
}

// IDTable maps generation-checked IDs to values. Freed slots are reused
// LIFO with a bumped generation.
type IDTable[T any] struct {
	slots  []idSlot[T]
	free   []uint32
	count  int
	world  uint8
	typeID TypeID
}

func NewIDTable[T any](world uint8, typeID TypeID) *IDTable[T] {
	return &IDTable[T]{
		slots:  make([]idSlot[T], 1, 64),
		free:   make([]uint32, 0, 16),
		world:  world,
		typeID: typeID,
	}
}

// Insert stores v in a free slot and returns its ID.
func (t *IDTable[T]) Insert(v T) ID {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, idSlot[T]{gen: 1})
	}
	s := &t.slots[idx]
	s.value = v
	s.used = true
	t.count++
	return MakeID(idx, s.gen, t.world, uint16(t.typeID))
}

func (t *IDTable[T]) slot(id ID) *idSlot[T] {
	idx := id.Index()
	if idx == 0 || int(idx) >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if !s.used || s.gen != id.Generation() {
		return nil
	}
	return s
}

// TryGet returns the value for id if the generation still matches.
func (t *IDTable[T]) TryGet(id ID) (T, bool) {
	if s := t.slot(id); s != nil {
		return s.value, true
	}
	var zero T
	return zero, false
}

func (t *IDTable[T]) Contains(id ID) bool { return t.slot(id) != nil }

// Set replaces the value of a live id. Used to patch dense indices after
// compaction.
func (t *IDTable[T]) Set(id ID, v T) bool {
	s := t.slot(id)
	if s == nil {
		return false
	}
	s.value = v
	return true
}

// Remove frees the slot and bumps its generation.
func (t *IDTable[T]) Remove(id ID) bool {
	s := t.slot(id)
	if s == nil {
		return false
	}
	var zero T
	s.value = zero
	s.used = false
	s.gen++
	t.free = append(t.free, id.Index())
	t.count--
	return true
}

func (t *IDTable[T]) Len() int { return t.count }

// Each visits live entries in index order.
func (t *IDTable[T]) Each(fn func(id ID, v T) bool) {
	for i := 1; i < len(t.slots); i++ {
		s := &t.slots[i]
		if !s.used {
			continue
		}
		if !fn(MakeID(uint32(i), s.gen, t.world, uint16(t.typeID)), s.value) {
			return
		}
	}
}

// Clear frees every slot, bumping generations so old IDs stay invalid.
func (t *IDTable[T]) Clear() {
	t.Each(func(id ID, _ T) bool {
		t.Remove(id)
		return true
	})
}

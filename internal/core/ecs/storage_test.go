package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDPacking(t *testing.T) {
	id := MakeID(123456, 7, 3, 999)
	assert.Equal(t, uint32(123456), id.Index())
	assert.Equal(t, uint8(7), id.Generation())
	assert.Equal(t, uint8(3), id.WorldIndex())
	assert.Equal(t, TypeID(999), id.TypeID())
	assert.True(t, ID(0).IsZero())
}

func TestIDTableRejectsStaleHandles(t *testing.T) {
	tbl := NewIDTable[string](0, 0)
	a := tbl.Insert("a")
	v, ok := tbl.TryGet(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	require.True(t, tbl.Remove(a))
	_, ok = tbl.TryGet(a)
	assert.False(t, ok)
	assert.False(t, tbl.Remove(a), "double free must fail")

	b := tbl.Insert("b")
	assert.Equal(t, a.Index(), b.Index(), "slot is reused")
	assert.NotEqual(t, a.Generation(), b.Generation())
	_, ok = tbl.TryGet(a)
	assert.False(t, ok, "old generation stays invalid after reuse")
	assert.Equal(t, 1, tbl.Len())
}

func TestIDTableZeroIDIsNeverValid(t *testing.T) {
	tbl := NewIDTable[int](0, 0)
	tbl.Insert(1)
	_, ok := tbl.TryGet(0)
	assert.False(t, ok)
	_, ok = tbl.TryGet(MakeID(99, 1, 0, 0))
	assert.False(t, ok, "never allocated index")
}

func TestIDTableGenerationWraps(t *testing.T) {
	tbl := NewIDTable[int](0, 0)
	first := tbl.Insert(0)
	id := first
	for i := 0; i < 300; i++ {
		require.True(t, tbl.Remove(id))
		id = tbl.Insert(i)
		require.Equal(t, first.Index(), id.Index())
	}
	v, ok := tbl.TryGet(id)
	require.True(t, ok)
	assert.Equal(t, 299, v)
}

func TestBlockStorageKeepsAddressesOnGrowth(t *testing.T) {
	s := NewBlockStorage[[64]byte](1024)
	require.Equal(t, 16, s.BlockCapacity())

	var ptrs []*[64]byte
	for i := 0; i < 100; i++ {
		p, idx := s.Append()
		p[0] = byte(i)
		require.Equal(t, i, idx)
		ptrs = append(ptrs, p)
	}
	assert.Equal(t, 7, s.BlockCount())
	for i, p := range ptrs {
		assert.Same(t, p, s.At(i))
		assert.Equal(t, byte(i), p[0])
	}
}

func TestBlockStorageRemoveAndCompact(t *testing.T) {
	s := NewBlockStorage[int](DefaultBlockSize)
	for i := 0; i < 5; i++ {
		p, _ := s.Append()
		*p = i * 10
	}

	mv, moved := s.RemoveAndCompact(1)
	require.True(t, moved)
	assert.Equal(t, Move{From: 4, To: 1}, mv)
	assert.Equal(t, 40, *s.At(1))
	assert.Equal(t, 4, s.Len())

	_, moved = s.RemoveAndCompact(3)
	assert.False(t, moved, "removing the last element moves nothing")

	var got []int
	s.Each(func(_ int, v *int) bool {
		got = append(got, *v)
		return true
	})
	assert.Equal(t, []int{0, 40, 20}, got)
}

func TestBlockStorageDropsEmptyBlocks(t *testing.T) {
	s := NewBlockStorage[[512]byte](1024)
	for i := 0; i < 3; i++ {
		s.Append()
	}
	require.Equal(t, 2, s.BlockCount())
	s.RemoveAndCompact(0)
	assert.Equal(t, 1, s.BlockCount())
	assert.Equal(t, 2, s.Len())
}

func TestTypeRegistry(t *testing.T) {
	reg := NewTypeRegistry()
	b, err := reg.Register("b", 1, nil)
	require.NoError(t, err)
	a, err := reg.Register("a", 2, nil)
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)

	_, err = reg.Register("a", 3, nil)
	require.ErrorIs(t, err, ErrTypeRegistered)

	types := reg.Types()
	require.Len(t, types, 2)
	assert.Equal(t, "a", types[0].Name)
	assert.Equal(t, "b", types[1].Name)

	got, ok := reg.ByID(b.ID)
	require.True(t, ok)
	assert.Same(t, b, got)

	require.True(t, reg.Unregister("b"))
	_, ok = reg.Lookup("b")
	assert.False(t, ok)
	c, err := reg.Register("c", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, b.ID, c.ID, "freed ids are recycled")
}

func TestTagSet(t *testing.T) {
	ts := NewTagSet("b", "a", "b")
	assert.Equal(t, []string{"a", "b"}, ts.Values())
	assert.True(t, ts.IsSet("a"))
	ts.Remove("a")
	assert.False(t, ts.IsSet("a"))
	assert.True(t, ts.IsAnySet(NewTagSet("x", "b")))
	assert.False(t, ts.IsAnySet(NewTagSet("x")))
}

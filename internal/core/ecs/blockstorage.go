package ecs

import "unsafe"

// DefaultBlockSize is the byte size of one storage block.
const DefaultBlockSize = 16 * 1024

// Move reports that the element at From now lives at To.
type Move struct {
	From, To int
}

// BlockStorage is a dense array split into fixed-capacity blocks. Blocks
// are never reallocated, so element addresses stay stable until the
// element is moved by RemoveAndCompact.
type BlockStorage[T any] struct {
	blocks   [][]T
	perBlock int
	count    int
}

func NewBlockStorage[T any](blockBytes int) *BlockStorage[T] {
	var zero T
	per := 1
	if size := int(unsafe.Sizeof(zero)); size > 0 {
		per = blockBytes / size
	}
	if per < 1 {
		per = 1
	}
	return &BlockStorage[T]{perBlock: per}
}

// BlockCapacity is the number of elements per block.
func (s *BlockStorage[T]) BlockCapacity() int { return s.perBlock }

func (s *BlockStorage[T]) Len() int { return s.count }

// BlockCount returns the number of allocated blocks.
func (s *BlockStorage[T]) BlockCount() int { return len(s.blocks) }

// Block returns the filled part of block b.
func (s *BlockStorage[T]) Block(b int) []T { return s.blocks[b] }

// Append adds a zero element and returns its address and dense index.
func (s *BlockStorage[T]) Append() (*T, int) {
	n := len(s.blocks)
	if n == 0 || len(s.blocks[n-1]) == s.perBlock {
		s.blocks = append(s.blocks, make([]T, 0, s.perBlock))
		n++
	}
	var zero T
	s.blocks[n-1] = append(s.blocks[n-1], zero)
	idx := s.count
	s.count++
	return &s.blocks[n-1][len(s.blocks[n-1])-1], idx
}

func (s *BlockStorage[T]) At(i int) *T {
	return &s.blocks[i/s.perBlock][i%s.perBlock]
}

// RemoveAndCompact removes element i by moving the last element into its
// place. It returns the move and true when an element was relocated.
func (s *BlockStorage[T]) RemoveAndCompact(i int) (Move, bool) {
	assertf(i >= 0 && i < s.count, "block storage: index %d out of range %d", i, s.count)
	last := s.count - 1
	moved := i != last
	if moved {
		*s.At(i) = *s.At(last)
	}
	var zero T
	*s.At(last) = zero

	b := len(s.blocks) - 1
	s.blocks[b] = s.blocks[b][:len(s.blocks[b])-1]
	if len(s.blocks[b]) == 0 {
		s.blocks[b] = nil
		s.blocks = s.blocks[:b]
	}
	s.count--
	return Move{From: last, To: i}, moved
}

// Each visits elements in dense order until fn returns false.
func (s *BlockStorage[T]) Each(fn func(i int, v *T) bool) {
	i := 0
	for _, blk := range s.blocks {
		for j := range blk {
			if !fn(i, &blk[j]) {
				return
			}
			i++
		}
	}
}

// EachReverse visits elements from last to first.
func (s *BlockStorage[T]) EachReverse(fn func(i int, v *T) bool) {
	for i := s.count - 1; i >= 0; i-- {
		if !fn(i, s.At(i)) {
			return
		}
	}
}

// Clear drops every block.
func (s *BlockStorage[T]) Clear() {
	s.blocks = nil
	s.count = 0
}

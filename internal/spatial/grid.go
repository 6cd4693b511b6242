package spatial

import (
	"math"
	"sort"
	"sync"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/xmath"
)

// Grid is a regular 3D grid of cells implementing ecs.SpatialIndex. The
// world writes it during transform propagation; queries may run from
// async update functions, hence the lock.
type Grid struct {
	mu    sync.RWMutex
	size  float32
	cells map[cellKey]map[ecs.ObjectHandle]struct{}
	where map[ecs.ObjectHandle]entry
}

type cellKey struct{ x, y, z int32 }

type entry struct {
	key cellKey
	pos xmath.Vec3
}

func NewGrid(cellSize float32) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Grid{
		size:  cellSize,
		cells: make(map[cellKey]map[ecs.ObjectHandle]struct{}),
		where: make(map[ecs.ObjectHandle]entry),
	}
}

func (g *Grid) coord(v float32) int32 {
	return int32(math.Floor(float64(v / g.size)))
}

func (g *Grid) key(p xmath.Vec3) cellKey {
	return cellKey{g.coord(p.X), g.coord(p.Y), g.coord(p.Z)}
}

// UpdateObject places h at pos, moving it between cells when needed.
func (g *Grid) UpdateObject(h ecs.ObjectHandle, pos xmath.Vec3) {
	g.mu.Lock()
	defer g.mu.Unlock()
	k := g.key(pos)
	if old, ok := g.where[h]; ok {
		if old.key == k {
			g.where[h] = entry{key: k, pos: pos}
			return
		}
		g.removeLocked(h, old.key)
	}
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[ecs.ObjectHandle]struct{})
		g.cells[k] = cell
	}
	cell[h] = struct{}{}
	g.where[h] = entry{key: k, pos: pos}
}

func (g *Grid) RemoveObject(h ecs.ObjectHandle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if old, ok := g.where[h]; ok {
		g.removeLocked(h, old.key)
		delete(g.where, h)
	}
}

func (g *Grid) removeLocked(h ecs.ObjectHandle, k cellKey) {
	cell := g.cells[k]
	delete(cell, h)
	if len(cell) == 0 {
		delete(g.cells, k)
	}
}

// Len is the number of tracked objects.
func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.where)
}

// Position returns the last position reported for h.
func (g *Grid) Position(h ecs.ObjectHandle) (xmath.Vec3, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.where[h]
	return e.pos, ok
}

// QueryRadius returns the objects within radius of center, nearest first.
func (g *Grid) QueryRadius(center xmath.Vec3, radius float32) []ecs.ObjectHandle {
	g.mu.RLock()
	defer g.mu.RUnlock()

	type hit struct {
		h    ecs.ObjectHandle
		dist float32
	}
	var hits []hit
	r := xmath.V3(radius, radius, radius)
	lo, hi := g.key(center.Sub(r)), g.key(center.Add(r))
	r2 := radius * radius
	for x := lo.x; x <= hi.x; x++ {
		for y := lo.y; y <= hi.y; y++ {
			for z := lo.z; z <= hi.z; z++ {
				for h := range g.cells[cellKey{x, y, z}] {
					d := g.where[h].pos.Sub(center).LengthSquared()
					if d <= r2 {
						hits = append(hits, hit{h, d})
					}
				}
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].h.ID < hits[j].h.ID
	})
	out := make([]ecs.ObjectHandle, len(hits))
	for i, h := range hits {
		out[i] = h.h
	}
	return out
}

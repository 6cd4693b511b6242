package ecs

import (
	"sync"
	"sync/atomic"
)

// marker is the world's read/write marker: many readers or one writer.
// The atomics only feed access assertions.
type marker struct {
	mu      sync.RWMutex
	writing atomic.Bool
	readers atomic.Int32
	// async is set while async update functions run; structural changes
	// are rejected then.
	async atomic.Bool
}

// Lock acquires write access.
func (w *World) Lock() {
	w.mu.Lock()
	w.writing.Store(true)
}

func (w *World) Unlock() {
	w.writing.Store(false)
	w.mu.Unlock()
}

// RLock acquires read access.
func (w *World) RLock() {
	w.mu.RLock()
	w.readers.Add(1)
}

func (w *World) RUnlock() {
	w.readers.Add(-1)
	w.mu.RUnlock()
}

func (w *World) checkWrite() {
	assertf(w.writing.Load() && !w.async.Load(), "world %q: write access required", w.name)
}

func (w *World) checkRead() {
	assertf(w.writing.Load() || w.readers.Load() > 0, "world %q: read access required", w.name)
}

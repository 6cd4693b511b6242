package ecs

import (
	"time"

	"go.uber.org/zap"
)

// InitBatchHandle refers to a component initialization batch.
type InitBatchHandle struct{ ID }

// initBatch collects components whose initialization should be processed
// together. Initialization runs in two passes: Initialize for every
// component, then activation and simulation start.
type initBatch struct {
	name       string
	mustFinish bool
	ready      bool

	toInit    []ComponentHandle
	toStart   []ComponentHandle
	nextInit  int
	nextStart int
}

func (b *initBatch) done() bool {
	return b.nextInit == len(b.toInit) && b.nextStart == len(b.toStart)
}

// CreateComponentInitBatch creates a batch. Batches that must finish within
// one frame ignore the per-frame init time budget.
func (w *World) CreateComponentInitBatch(name string, mustFinishWithinOneFrame bool) InitBatchHandle {
	w.checkWrite()
	return InitBatchHandle{w.initBatches.Insert(&initBatch{name: name, mustFinish: mustFinishWithinOneFrame})}
}

func (w *World) DeleteComponentInitBatch(h InitBatchHandle) {
	w.checkWrite()
	assertf(h != w.defaultBatch, "the default init batch cannot be deleted")
	if h == w.currentBatch {
		w.currentBatch = w.defaultBatch
	}
	w.initBatches.Remove(h.ID)
}

// BeginAddingComponentsToInitBatch routes InitializeComponent calls into h
// until EndAddingComponentsToInitBatch.
func (w *World) BeginAddingComponentsToInitBatch(h InitBatchHandle) {
	w.checkWrite()
	assertf(w.currentBatch == w.defaultBatch, "nested init batches are not supported")
	assertf(w.initBatches.Contains(h.ID), "invalid init batch")
	w.currentBatch = h
}

func (w *World) EndAddingComponentsToInitBatch(h InitBatchHandle) {
	w.checkWrite()
	assertf(w.currentBatch == h, "init batch %v is not being filled", h.ID)
	w.currentBatch = w.defaultBatch
}

// SubmitComponentInitBatch marks h ready; processing starts on the next
// update.
func (w *World) SubmitComponentInitBatch(h InitBatchHandle) {
	w.checkWrite()
	if b, ok := w.initBatches.TryGet(h.ID); ok {
		b.ready = true
	}
}

// IsComponentInitBatchCompleted reports whether every component of h was
// initialized and started, plus a completion factor in [0, 1].
func (w *World) IsComponentInitBatchCompleted(h InitBatchHandle) (bool, float64) {
	w.checkRead()
	b, ok := w.initBatches.TryGet(h.ID)
	if !ok {
		return true, 1
	}
	if !b.ready {
		return false, 0
	}
	if b.done() {
		return true, 1
	}
	// Every component passes through both lists once.
	return false, float64(b.nextInit+b.nextStart) / float64(2*len(b.toInit))
}

// CancelComponentInitBatch stops processing h. Components that were
// already initialized stay initialized.
func (w *World) CancelComponentInitBatch(h InitBatchHandle) {
	w.checkWrite()
	if b, ok := w.initBatches.TryGet(h.ID); ok {
		b.ready = false
		b.toInit = b.toInit[:0]
		b.toStart = b.toStart[:0]
		b.nextInit, b.nextStart = 0, 0
	}
}

func (w *World) addToInitBatch(h ComponentHandle) {
	w.checkWrite()
	b, ok := w.initBatches.TryGet(w.currentBatch.ID)
	if !ok {
		b, _ = w.initBatches.TryGet(w.defaultBatch.ID)
	}
	b.toInit = append(b.toInit, h)
}

// processComponentsToInitialize runs the default batch completely and the
// other ready batches until deadline.
func (w *World) processComponentsToInitialize(deadline time.Time) {
	def, _ := w.initBatches.TryGet(w.defaultBatch.ID)
	w.processInitBatch(def, time.Time{})
	def.reset()

	w.initBatches.Each(func(id ID, b *initBatch) bool {
		if id == w.defaultBatch.ID || !b.ready || b.done() {
			return true
		}
		limit := deadline
		if b.mustFinish {
			limit = time.Time{}
		}
		if !w.processInitBatch(b, limit) {
			w.log.Debug("init batch continues next frame",
				zap.String("batch", b.name),
				zap.Int("initialized", b.nextInit),
				zap.Int("total", len(b.toInit)))
			return false
		}
		return true
	})
}

// processInitBatch returns true when b finished. A zero deadline means no
// limit. At least one component is processed per call.
func (w *World) processInitBatch(b *initBatch, deadline time.Time) bool {
	expired := func() bool {
		return !deadline.IsZero() && time.Now().After(deadline)
	}
	for b.nextInit < len(b.toInit) {
		h := b.toInit[b.nextInit]
		b.nextInit++
		if m := w.Manager(h.TypeID()); m != nil && m.initializeNow(h) {
			b.toStart = append(b.toStart, h)
		}
		if expired() {
			return b.done()
		}
	}
	for b.nextStart < len(b.toStart) {
		h := b.toStart[b.nextStart]
		b.nextStart++
		if m := w.Manager(h.TypeID()); m != nil {
			m.activateNow(h)
		}
		if expired() {
			return b.done()
		}
	}
	return true
}

func (b *initBatch) reset() {
	if !b.done() {
		return
	}
	b.toInit = b.toInit[:0]
	b.toStart = b.toStart[:0]
	b.nextInit, b.nextStart = 0, 0
}

package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/ecs"
	coresys "github.com/hmcore/world/internal/core/system"
)

// StatsSystem logs the world's size at the end of every interval ticks.
// Phase 4 (Cleanup).
type StatsSystem struct {
	world     *ecs.World
	log       *zap.Logger
	tickCount int
	interval  int
}

func NewStatsSystem(w *ecs.World, log *zap.Logger, intervalTicks int) *StatsSystem {
	return &StatsSystem{world: w, log: log, interval: intervalTicks}
}

func (s *StatsSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *StatsSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.log.Info("world stats", s.Fields()...)
}

// Fields describes the world as log fields.
func (s *StatsSystem) Fields() []zap.Field {
	w := s.world
	w.RLock()
	defer w.RUnlock()
	pending := 0
	for _, q := range []ecs.QueueType{ecs.QueuePostAsync, ecs.QueuePostTransform, ecs.QueueNextFrame, ecs.QueueAfterInitialized} {
		pending += w.PendingMessages(q)
	}
	return []zap.Field{
		zap.String("world", w.Name()),
		zap.Uint64("frame", w.FrameCounter()),
		zap.Duration("clock", w.Clock()),
		zap.Int("objects", w.ObjectCount()),
		zap.Int("pending_messages", pending),
		zap.Bool("simulating", w.IsSimulating()),
	}
}

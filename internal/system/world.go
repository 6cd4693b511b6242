package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/ecs"
	coresys "github.com/hmcore/world/internal/core/system"
)

// WorldUpdateSystem advances the world by one frame per tick. Phase 2
// (World).
type WorldUpdateSystem struct {
	world *ecs.World
	log   *zap.Logger
	slow  time.Duration // frames slower than this are logged, 0 = never
}

func NewWorldUpdateSystem(w *ecs.World, log *zap.Logger, slow time.Duration) *WorldUpdateSystem {
	return &WorldUpdateSystem{world: w, log: log, slow: slow}
}

func (s *WorldUpdateSystem) Phase() coresys.Phase { return coresys.PhaseWorld }

func (s *WorldUpdateSystem) Update(dt time.Duration) {
	start := time.Now()
	s.world.Update(dt)
	if took := time.Since(start); s.slow > 0 && took > s.slow {
		s.log.Warn("slow world update",
			zap.String("world", s.world.Name()),
			zap.Uint64("frame", s.world.FrameCounter()),
			zap.Duration("took", took),
			zap.Int("objects", s.world.ObjectCount()))
	}
}

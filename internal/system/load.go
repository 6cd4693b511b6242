package system

import (
	"time"

	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/event"
	coresys "github.com/hmcore/world/internal/core/system"
	"github.com/hmcore/world/internal/worldfile"
)

type pendingLoad struct {
	source  string
	inst    *worldfile.Instantiation
	started time.Time
	steps   int
}

// LoadSystem steps time-sliced instantiations once per tick, before the
// world update that initializes their components. Phase 1 (Load).
type LoadSystem struct {
	world   *ecs.World
	bus     *event.Bus
	log     *zap.Logger
	pending []*pendingLoad
}

func NewLoadSystem(w *ecs.World, bus *event.Bus, log *zap.Logger) *LoadSystem {
	return &LoadSystem{world: w, bus: bus, log: log}
}

func (s *LoadSystem) Phase() coresys.Phase { return coresys.PhaseLoad }

// Add schedules inst. Source names it in logs and events.
func (s *LoadSystem) Add(source string, inst *worldfile.Instantiation) {
	s.pending = append(s.pending, &pendingLoad{source: source, inst: inst, started: time.Now()})
}

// Pending is the number of unfinished instantiations.
func (s *LoadSystem) Pending() int { return len(s.pending) }

func (s *LoadSystem) Update(_ time.Duration) {
	rest := s.pending[:0]
	for _, p := range s.pending {
		p.steps++
		if res := p.inst.Step(); res != worldfile.Finished {
			rest = append(rest, p)
			continue
		}
		s.finish(p, false)
	}
	clear(s.pending[len(rest):])
	s.pending = rest
}

// CancelAll stops every pending instantiation. Objects created so far
// stay in the world.
func (s *LoadSystem) CancelAll() {
	for _, p := range s.pending {
		p.inst.Cancel()
		s.finish(p, true)
	}
	s.pending = nil
}

func (s *LoadSystem) finish(p *pendingLoad, cancelled bool) {
	roots, children := len(p.inst.CreatedRoots()), len(p.inst.CreatedChildren())
	s.log.Info("instantiation finished",
		zap.String("source", p.source),
		zap.Int("roots", roots),
		zap.Int("children", children),
		zap.Int("ticks", p.steps),
		zap.Bool("cancelled", cancelled),
		zap.Duration("took", time.Since(p.started)))
	event.Emit(s.bus, event.InstantiationFinished{
		World:     s.world.Name(),
		Source:    p.source,
		Roots:     roots,
		Children:  children,
		Cancelled: cancelled,
	})
}

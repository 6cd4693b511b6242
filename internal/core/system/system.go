package system

import "time"

// Phase defines execution ordering within a single host tick.
type Phase int

const (
	PhaseEvents  Phase = iota // 0: deliver last tick's events
	PhaseLoad                 // 1: step pending instantiations
	PhaseWorld                // 2: World.Update
	PhasePersist              // 3: snapshots
	PhaseCleanup              // 4: housekeeping
)

// System is one step of the host tick.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

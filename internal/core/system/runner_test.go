package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type step struct {
	name  string
	phase Phase
	log   *[]string
}

func (s step) Phase() Phase         { return s.phase }
func (s step) Update(time.Duration) { *s.log = append(*s.log, s.name) }

func TestRunnerOrdersByPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(step{"persist", PhasePersist, &log})
	r.Register(step{"world", PhaseWorld, &log})
	r.Register(step{"events", PhaseEvents, &log})
	r.Register(step{"world-2", PhaseWorld, &log})

	r.Tick(time.Millisecond)
	assert.Equal(t, []string{"events", "world", "world-2", "persist"}, log)
	assert.Equal(t, uint64(1), r.Ticks())

	log = nil
	r.TickPhase(PhaseWorld, time.Millisecond)
	assert.Equal(t, []string{"world", "world-2"}, log)
	assert.Equal(t, uint64(1), r.Ticks())
}

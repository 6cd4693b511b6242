package ecs

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const frame = 16 * time.Millisecond

// tracker is a component that records its lifecycle.
type tracker struct {
	ComponentBase
	Value int

	initialized  int
	activated    int
	deactivated  int
	started      int
	deinitalized int
	messages     []any
}

func (p *tracker) Initialize()          { p.initialized++ }
func (p *tracker) Deinitialize()        { p.deinitalized++ }
func (p *tracker) OnActivated()         { p.activated++ }
func (p *tracker) OnDeactivated()       { p.deactivated++ }
func (p *tracker) OnSimulationStarted() { p.started++ }
func (p *tracker) HandleMessage(m any)  { p.messages = append(p.messages, m) }

type trackerManager = Manager[tracker, *tracker]

type fixture struct {
	world   *World
	tracker *TypeInfo
}

func newFixture(t *testing.T, opts ...func(*WorldDesc)) *fixture {
	t.Helper()
	reg := NewTypeRegistry()
	info, err := reg.Register("tracker", 1, func(w *World, info *TypeInfo) ComponentManager {
		return NewManager[tracker](w, info)
	})
	require.NoError(t, err)
	desc := WorldDesc{
		Name:       "test",
		Registry:   reg,
		Logger:     zap.NewNop(),
		Workers:    4,
		RandomSeed: 7,
		Simulate:   true,
	}
	for _, o := range opts {
		o(&desc)
	}
	w := NewWorld(desc)
	t.Cleanup(w.Close)
	return &fixture{world: w, tracker: info}
}

// write runs fn with the write marker held.
func (f *fixture) write(fn func(w *World)) {
	f.world.Lock()
	defer f.world.Unlock()
	fn(f.world)
}

func (f *fixture) trackers() *trackerManager {
	return ManagerOf[*trackerManager](f.world, f.tracker)
}

func (f *fixture) object(t *testing.T, h ObjectHandle) *GameObject {
	t.Helper()
	obj, ok := f.world.objectPtr(h)
	require.True(t, ok, "object %v should be valid", h.ID)
	return obj
}

func (f *fixture) trackerOf(t *testing.T, h ComponentHandle) *tracker {
	t.Helper()
	var p *tracker
	f.write(func(*World) {
		var ok bool
		p, ok = f.trackers().TryGet(h)
		require.True(t, ok, "component %v should be valid", h.ID)
	})
	return p
}

// recorder collects strings from concurrent update functions.
type recorder struct {
	mu  sync.Mutex
	log []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.log = append(r.log, s)
	r.mu.Unlock()
}

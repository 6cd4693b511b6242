package system

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/event"
	coresys "github.com/hmcore/world/internal/core/system"
	"github.com/hmcore/world/internal/persist"
	"github.com/hmcore/world/internal/worldfile"
)

// SnapshotStore receives written snapshots. persist.SnapshotRepo and
// persist.DirStore implement it.
type SnapshotStore interface {
	Save(ctx context.Context, name string, data []byte) (persist.SnapshotInfo, error)
}

// SnapshotSystem periodically writes the world and hands the snapshot to a
// store. Phase 3 (Persist).
type SnapshotSystem struct {
	world     *ecs.World
	store     SnapshotStore
	bus       *event.Bus
	log       *zap.Logger
	name      string
	exclude   ecs.TagSet
	writer    *worldfile.Writer
	tickCount int
	interval  int // save every N ticks, 0 = only on demand
}

func NewSnapshotSystem(w *ecs.World, store SnapshotStore, bus *event.Bus, log *zap.Logger, name string, exclude []string, intervalTicks int) *SnapshotSystem {
	return &SnapshotSystem{
		world:    w,
		store:    store,
		bus:      bus,
		log:      log,
		name:     name,
		exclude:  ecs.NewTagSet(exclude...),
		writer:   worldfile.NewWriter(log),
		interval: intervalTicks,
	}
}

func (s *SnapshotSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *SnapshotSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// failures are logged and emitted by SaveNow
	_, _ = s.SaveNow(ctx)
}

// SaveNow writes and stores a snapshot immediately. Called on shutdown.
func (s *SnapshotSystem) SaveNow(ctx context.Context) (persist.SnapshotInfo, error) {
	start := time.Now()
	var buf bytes.Buffer
	if err := s.writer.WriteWorld(&buf, s.world, s.exclude); err != nil {
		return persist.SnapshotInfo{}, s.fail(fmt.Errorf("write world: %w", err))
	}
	si, err := s.store.Save(ctx, s.name, buf.Bytes())
	if err != nil {
		return persist.SnapshotInfo{}, s.fail(err)
	}
	took := time.Since(start)
	s.log.Info("snapshot saved",
		zap.String("world", s.world.Name()),
		zap.String("name", s.name),
		zap.Int("bytes", si.Size),
		zap.String("checksum", si.Checksum[:16]),
		zap.Duration("took", took))
	event.Emit(s.bus, event.SnapshotSaved{
		World:    s.world.Name(),
		Name:     s.name,
		Bytes:    si.Size,
		Checksum: si.Checksum,
		Took:     took,
	})
	return si, nil
}

func (s *SnapshotSystem) fail(err error) error {
	s.log.Error("snapshot failed", zap.String("name", s.name), zap.Error(err))
	event.Emit(s.bus, event.SnapshotFailed{World: s.world.Name(), Name: s.name, Err: err})
	return err
}

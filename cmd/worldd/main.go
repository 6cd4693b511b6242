package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hmcore/world/internal/component"
	"github.com/hmcore/world/internal/config"
	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/event"
	coresys "github.com/hmcore/world/internal/core/system"
	"github.com/hmcore/world/internal/data"
	"github.com/hmcore/world/internal/persist"
	"github.com/hmcore/world/internal/scripting"
	"github.com/hmcore/world/internal/spatial"
	"github.com/hmcore/world/internal/system"
	"github.com/hmcore/world/internal/worldfile"
)

// statsInterval is the number of ticks between "world stats" log lines.
const statsInterval = 1200

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name string, index uint8) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              worldd  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mworld:\033[0m %s \033[90m(index: %d)\033[0m\n\n", name, index)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Host ───────────────────────────────────────────────────────────

// snapshotStore is implemented by persist.SnapshotRepo and persist.DirStore.
type snapshotStore interface {
	system.SnapshotStore
	Load(ctx context.Context, name string) ([]byte, error)
}

func run() error {
	// 1. Load config
	cfgPath := "config/world.toml"
	if p := os.Getenv("WORLD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.World.Name, cfg.World.Index)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 3. Snapshot storage: PostgreSQL when enabled, a directory otherwise
	printSection("Storage")
	var store snapshotStore
	if cfg.Database.Enabled {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := persist.RunMigrations(ctx, db.Pool, log); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")
		store = persist.NewSnapshotRepo(db)
	} else {
		dir, err := persist.NewDirStore(cfg.Snapshot.Dir)
		if err != nil {
			return fmt.Errorf("snapshot dir: %w", err)
		}
		printOK(fmt.Sprintf("snapshots in %s", cfg.Snapshot.Dir))
		store = dir
	}
	fmt.Println()

	// 4. Scripting and component types
	printSection("Components")
	var engine *scripting.Engine
	if cfg.Scripting.Dir != "" {
		engine, err = scripting.NewEngine(cfg.Scripting.Dir, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer engine.Close()
		printOK("Lua scripts loaded")
	}
	registry := ecs.NewTypeRegistry()
	if err := component.RegisterAll(registry, component.Env{Scripts: engine}); err != nil {
		return fmt.Errorf("register components: %w", err)
	}
	printStat("component types", len(registry.Types()))
	fmt.Println()

	// 5. Create the world
	seed := cfg.World.RandomSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	desc := ecs.WorldDesc{
		Name:                cfg.World.Name,
		Index:               cfg.World.Index,
		Registry:            registry,
		Logger:              log,
		Workers:             cfg.World.Workers,
		RandomSeed:          seed,
		MaxInitTimePerFrame: cfg.World.MaxInitTime,
		Simulate:            cfg.World.Simulate,
	}
	if cfg.World.SpatialCellSize > 0 {
		desc.Spatial = spatial.NewGrid(cfg.World.SpatialCellSize)
	}
	w := ecs.NewWorld(desc)
	defer w.Close()

	bus := event.NewBus()
	loads := system.NewLoadSystem(w, bus, log)
	event.Subscribe(bus, func(e event.InstantiationFinished) {
		printOK(fmt.Sprintf("%s loaded (%d roots, %d children)", e.Source, e.Roots, e.Children))
	})
	event.Subscribe(bus, func(e event.SnapshotFailed) {
		log.Warn("snapshot not stored", zap.String("name", e.Name), zap.Error(e.Err))
	})

	// 6. Load the initial content
	printSection("Content")
	if err := loadContent(ctx, cfg, w, store, loads, log); err != nil {
		return err
	}
	fmt.Println()

	// 7. Create systems and register with runner
	snapshots := system.NewSnapshotSystem(w, store, bus, log, cfg.Snapshot.Name, cfg.Snapshot.ExcludeTags, cfg.Snapshot.IntervalTicks)
	runner := coresys.NewRunner()
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(loads)
	runner.Register(system.NewWorldUpdateSystem(w, log, cfg.Loop.TickRate))
	runner.Register(snapshots)
	runner.Register(system.NewStatsSystem(w, log, statsInterval))

	// 8. Start the tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Loop.TickRate)
	defer ticker.Stop()

	printSection("Running")
	printReady(fmt.Sprintf("tick loop started (tick: %s)", cfg.Loop.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Loop.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			loads.CancelAll()
			saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
			_, err := snapshots.SaveNow(saveCtx)
			saveCancel()
			if err != nil {
				log.Error("final snapshot failed", zap.Error(err))
			}
			log.Info("world stopped", zap.Uint64("ticks", runner.Ticks()))
			return nil
		}
	}
}

// loadContent restores the configured snapshot, or spawns the YAML scene
// when no snapshot is configured or stored yet.
func loadContent(ctx context.Context, cfg *config.Config, w *ecs.World, store snapshotStore, loads *system.LoadSystem, log *zap.Logger) error {
	if name := cfg.Scene.Snapshot; name != "" {
		raw, err := store.Load(ctx, name)
		switch {
		case err == nil:
			r := worldfile.NewReader(w.Registry(), log)
			if err := r.ReadDescriptionBytes(raw); err != nil {
				return fmt.Errorf("snapshot %s: %w", name, err)
			}
			printStat("snapshot objects", r.RootObjectCount()+r.ChildObjectCount())
			printStat("snapshot components", r.ComponentCount())
			inst := r.InstantiateWorld(w, nil, cfg.Scene.StepTime, nil)
			loads.Add(name, inst)
			return nil
		case errors.Is(err, persist.ErrNotFound) && cfg.Scene.Path != "":
			log.Info("no stored snapshot, spawning scene", zap.String("snapshot", name), zap.String("scene", cfg.Scene.Path))
		default:
			return fmt.Errorf("load snapshot: %w", err)
		}
	}
	if cfg.Scene.Path == "" {
		printOK("empty world")
		return nil
	}
	scene, err := data.LoadScene(cfg.Scene.Path)
	if err != nil {
		return fmt.Errorf("load scene: %w", err)
	}
	res, err := data.Spawn(w, scene, data.SpawnOptions{})
	if err != nil {
		return fmt.Errorf("spawn scene %s: %w", scene.Name, err)
	}
	printStat("scene objects", res.Objects)
	printStat("scene components", res.Components)
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

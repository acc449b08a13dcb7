package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/anima-memory/engine/config"
	"github.com/spaghettifunk/anima-memory/engine/core"
	"github.com/spaghettifunk/anima-memory/engine/math"
	"github.com/spaghettifunk/anima-memory/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently booting up
	EngineStageBooting
	// Engine completed boot process and is ready to be initialized
	EngineStageBootComplete
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine has released every system
	EngineStageShutdown
)

var stageNames = [...]string{
	"uninitialized", "booting", "boot complete", "initializing",
	"initialized", "running", "shutting down", "shut down",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", s)
}

var ErrInvalidStage = errors.New("engine: operation not valid in the current stage")

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	systemManager *systems.SystemManager
	config        *config.Config
	watcher       *config.Watcher
	clock         *core.Clock
	lastTime      time.Duration
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("engine: game has no application config")
	}
	cfg := g.ApplicationConfig.Config
	if cfg == nil {
		cfg = config.Default()
	}
	core.SetLogLevel(g.ApplicationConfig.LogLevel)

	e := &Engine{
		currentStage: EngineStageBooting,
		gameInstance: g,
		config:       cfg,
		clock:        core.NewClock(),
	}

	sm, err := systems.NewSystemManager(cfg)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	e.systemManager = sm
	g.SystemManager = sm

	if g.FnBoot != nil {
		if err := g.FnBoot(); err != nil {
			core.LogError("game boot failed: %s", err)
			return nil, errors.Join(err, sm.Shutdown())
		}
	}
	e.currentStage = EngineStageBootComplete
	return e, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageBootComplete {
		return fmt.Errorf("%w: initialize while %s", ErrInvalidStage, e.currentStage)
	}
	e.currentStage = EngineStageInitializing

	if path := e.gameInstance.ApplicationConfig.ConfigPath; path != "" {
		w, err := config.NewWatcher(path, e.onConfigChange)
		if err != nil {
			return err
		}
		e.watcher = w
	}

	e.currentStage = EngineStageInitialized
	core.LogInfo("%s initialized", e.gameInstance.ApplicationConfig.Name)
	return nil
}

// Run drives the game until ctx is done or an update fails. The game's
// update hook and a telemetry summary run once per report interval.
func (e *Engine) Run(ctx context.Context) error {
	switch {
	case e.currentStage < EngineStageInitialized:
		return fmt.Errorf("%w: run while %s", core.ErrNotInitialized, e.currentStage)
	case e.currentStage != EngineStageInitialized:
		return fmt.Errorf("%w: run while %s", ErrInvalidStage, e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.clock.Start()

	if e.watcher != nil {
		go func() {
			if err := e.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				core.LogError("config watcher stopped: %s", err)
			}
		}()
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(ctx); err != nil {
			core.LogError("game initialize failed: %s", err)
			return err
		}
	}

	interval := math.Clamp(e.config.Testbed.ReportInterval.Duration, time.Millisecond, time.Minute)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.clock.Stop()
			core.LogInfo("%s stopped after %s", e.gameInstance.ApplicationConfig.Name, e.clock.Elapsed().Round(time.Millisecond))
			return nil
		case <-ticker.C:
			e.clock.Update()
			currentTime := e.clock.Elapsed()
			delta := currentTime - e.lastTime

			if e.gameInstance.FnUpdate != nil {
				if err := e.gameInstance.FnUpdate(ctx, delta); err != nil {
					core.LogError("game update failed, shutting down: %s", err)
					return err
				}
			}
			e.logTelemetry(currentTime)

			e.lastTime = currentTime
		}
	}
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var errs []error
	if e.gameInstance.FnShutdown != nil {
		if err := e.gameInstance.FnShutdown(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.systemManager.Shutdown(); err != nil {
		errs = append(errs, err)
	}
	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) SystemManager() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) onConfigChange(cfg *config.Config) {
	e.systemManager.ApplyConfig(cfg)
}

func (e *Engine) logTelemetry(elapsed time.Duration) {
	s := e.systemManager.MemorySystem.Metrics().Snapshot()
	var live int64
	for _, h := range s.Heaps {
		live += h.Live()
	}
	core.LogInfo("t=%s allocs=%d live=%d fallbacks=%d faults=%d",
		elapsed.Round(time.Millisecond), s.TotalAllocs(), live, s.Fallbacks, s.Faults)
}

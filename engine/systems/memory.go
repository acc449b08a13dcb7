package systems

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-memory/engine/config"
	"github.com/spaghettifunk/anima-memory/engine/containers"
	"github.com/spaghettifunk/anima-memory/engine/core"
	"github.com/spaghettifunk/anima-memory/engine/memory"
)

type outstandingHeap interface {
	memory.Heap
	Outstanding() (blocks, bytes int64)
}

// MemorySystem owns the backing heap, the general purpose size-class
// allocator and the shared object id pool built from a Config.
type MemorySystem struct {
	heap      outstandingHeap
	allocator *memory.SizeClassAllocator
	metrics   *core.AllocationMetrics
	ids       *containers.SyncIdPool

	cfg config.AllocatorConfig
}

func NewMemorySystem(cfg *config.Config) (*MemorySystem, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, _ := cfg.Allocator.Policy()

	var heap outstandingHeap
	switch cfg.Allocator.Heap {
	case config.HeapMmap:
		heap = memory.NewMmapHeap(cfg.Allocator.Name + ".backing")
	default:
		heap = memory.NewGoHeap(cfg.Allocator.Name + ".backing")
	}

	metrics := core.NewAllocationMetrics(core.DEFAULT_HISTORY_SIZE)
	allocator := &memory.SizeClassAllocator{}
	if err := allocator.Setup(cfg.Allocator.Name, heap, cfg.Allocator.BudgetArray(),
		memory.WithSink(metrics),
		memory.WithExhaustionPolicy(policy),
		memory.WithDebugFill(cfg.Allocator.DebugFill),
	); err != nil {
		return nil, err
	}

	opts := []containers.IdPoolOption{containers.WithGrow(cfg.IdPool.Grow)}
	if cfg.IdPool.MaxID > 0 {
		opts = append(opts, containers.WithMaxID(cfg.IdPool.MaxID))
	}

	core.LogInfo("memory system ready: allocator=%s heap=%s exhaustion=%s", allocator.Source(), heap.Name(), policy)

	return &MemorySystem{
		heap:      heap,
		allocator: allocator,
		metrics:   metrics,
		ids:       containers.NewSyncIdPool(opts...),
		cfg:       cfg.Allocator,
	}, nil
}

func (ms *MemorySystem) Allocator() *memory.SizeClassAllocator {
	return ms.allocator
}

func (ms *MemorySystem) Heap() memory.Heap {
	return ms.heap
}

func (ms *MemorySystem) Metrics() *core.AllocationMetrics {
	return ms.metrics
}

// IDs is the id pool shared by every system that needs object ids.
func (ms *MemorySystem) IDs() *containers.SyncIdPool {
	return ms.ids
}

// ApplyConfig applies the settings that may change while running: the log
// level and debug fill. Anything else needs a restart and is only logged.
func (ms *MemorySystem) ApplyConfig(cfg *config.Config) {
	core.SetLogLevel(cfg.Level())

	if cfg.Allocator.DebugFill != ms.cfg.DebugFill {
		ms.allocator.SetDebugFill(cfg.Allocator.DebugFill)
		core.LogInfo("allocator %s debug fill set to %t", ms.allocator.Name(), cfg.Allocator.DebugFill)
	}
	if cfg.Allocator.Heap != ms.cfg.Heap ||
		cfg.Allocator.Exhaustion != ms.cfg.Exhaustion ||
		cfg.Allocator.BudgetArray() != ms.cfg.BudgetArray() {
		core.LogWarn("allocator %s: heap, exhaustion and budget changes apply on restart", ms.allocator.Name())
	}
	ms.cfg.DebugFill = cfg.Allocator.DebugFill
}

// Shutdown closes the allocator and reports anything still held by the
// backing heap. Leaks are returned after the allocator is torn down.
func (ms *MemorySystem) Shutdown() error {
	var errs []error
	if err := ms.allocator.Close(); err != nil {
		errs = append(errs, err)
	}
	if blocks, bytes := ms.heap.Outstanding(); blocks > 0 {
		errs = append(errs, fmt.Errorf("%w: heap %s still holds %d blocks (%d bytes)", memory.ErrLeakedBlocks, ms.heap.Name(), blocks, bytes))
	}
	if used, _ := ms.ids.Counts(); used > 0 {
		core.LogWarn("id pool: %d ids still in use at shutdown", used)
	}
	ms.metrics.Report()
	return errors.Join(errs...)
}

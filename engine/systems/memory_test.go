package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-memory/engine/config"
	"github.com/spaghettifunk/anima-memory/engine/core"
	"github.com/spaghettifunk/anima-memory/engine/memory"
)

func TestNewMemorySystem_BuildsFromConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Allocator.Exhaustion = "fallback"
	cfg.IdPool.MaxID = 3

	ms, err := NewMemorySystem(cfg)
	require.NoError(t, err)

	assert.Equal(t, "general", ms.Allocator().Name())
	assert.Equal(t, memory.ExhaustionFallback, ms.Allocator().Policy())
	assert.Equal(t, 4, ms.Allocator().Pool(0).NumBlocks())

	for i := 0; i < 3; i++ {
		_, err := ms.IDs().Alloc()
		require.NoError(t, err)
	}
	_, err = ms.IDs().Alloc()
	require.Error(t, err)

	b, err := ms.Allocator().Alloc(40)
	require.NoError(t, err)
	require.NoError(t, ms.Allocator().FreeSized(b, 40))

	snap := ms.Metrics().Snapshot()
	assert.EqualValues(t, 1, snap.Heaps[core.HeapTypePool].Allocs)
	assert.EqualValues(t, 1, snap.Heaps[core.HeapTypePool].Frees)

	require.NoError(t, ms.Shutdown())
}

func TestNewMemorySystem_RejectsInvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Allocator.Heap = "stack"
	_, err := NewMemorySystem(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestMemorySystem_MmapHeap(t *testing.T) {
	cfg := smallConfig()
	cfg.Allocator.Heap = config.HeapMmap

	ms, err := NewMemorySystem(cfg)
	require.NoError(t, err)

	big, err := ms.Allocator().Alloc(4096)
	require.NoError(t, err)
	assert.Len(t, big, 4096)
	require.NoError(t, ms.Allocator().Free(big))
	require.NoError(t, ms.Shutdown())
}

func TestMemorySystem_ShutdownReportsLeaks(t *testing.T) {
	ms, err := NewMemorySystem(smallConfig())
	require.NoError(t, err)

	_, err = ms.Allocator().Alloc(16)
	require.NoError(t, err)
	_, err = ms.Allocator().Alloc(1000)
	require.NoError(t, err)

	err = ms.Shutdown()
	require.ErrorIs(t, err, memory.ErrLeakedBlocks)
	assert.Contains(t, err.Error(), "1000 bytes")
	assert.EqualValues(t, 1, ms.Metrics().Snapshot().Leaks)
}

func TestMemorySystem_ApplyConfig(t *testing.T) {
	ms, err := NewMemorySystem(smallConfig())
	require.NoError(t, err)
	defer func() { core.SetLogLevel(core.InfoLevel) }()

	next := smallConfig()
	next.LogLevel = "error"
	next.Allocator.DebugFill = true
	ms.ApplyConfig(next)

	b, err := ms.Allocator().Alloc(10)
	require.NoError(t, err)
	full := b[:cap(b)]
	assert.Equal(t, byte(memory.AllocFill), full[len(b)])
	require.NoError(t, ms.Allocator().FreeSized(b, 10))
	require.NoError(t, ms.Shutdown())
}

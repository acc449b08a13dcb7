package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdPool_AllocSequentialThenReuse(t *testing.T) {
	p := NewIdPool()

	a, err := p.Alloc()
	require.NoError(t, err)
	b, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), a)
	assert.Equal(t, uint32(1), b)

	require.NoError(t, p.Dealloc(0))
	c, err := p.Alloc()
	require.NoError(t, err)
	// LIFO today; callers must not depend on it.
	assert.Equal(t, uint32(0), c)
}

func TestIdPool_GrowsInBatches(t *testing.T) {
	p := NewIdPool(WithGrow(4))

	_, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, uint32(4), p.Capacity())
	assert.Equal(t, uint32(1), p.NumUsed())
	assert.Equal(t, uint32(3), p.NumFree())

	for i := 0; i < 4; i++ {
		_, err = p.Alloc()
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(8), p.Capacity())
	assert.Equal(t, uint32(5), p.NumUsed())
}

func TestIdPool_GrowthCappedByMaxID(t *testing.T) {
	p := NewIdPool(WithMaxID(6), WithGrow(4))

	seen := map[uint32]bool{}
	for i := 0; i < 6; i++ {
		id, err := p.Alloc()
		require.NoError(t, err)
		assert.Less(t, id, uint32(6))
		assert.False(t, seen[id], "id %d issued twice", id)
		seen[id] = true
	}
	assert.Equal(t, uint32(6), p.Capacity())

	id, err := p.Alloc()
	require.ErrorIs(t, err, ErrIdPoolFull)
	assert.Equal(t, InvalidID, id)
	assert.Panics(t, func() { p.MustAlloc() })
}

func TestIdPool_Reserve(t *testing.T) {
	p := NewIdPool()
	require.NoError(t, p.Reserve(3))
	assert.Equal(t, uint32(3), p.MaxID())
	assert.Equal(t, uint32(3), p.NumFree())
	assert.Equal(t, uint32(0), p.NumUsed())

	for want := uint32(0); want < 3; want++ {
		got, err := p.Alloc()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := p.Alloc()
	require.ErrorIs(t, err, ErrIdPoolFull)

	require.ErrorIs(t, p.Reserve(10), ErrIdPoolInUse)
}

func TestIdPool_DeallocOutOfRange(t *testing.T) {
	p := NewIdPool(WithGrow(2))
	_, err := p.Alloc()
	require.NoError(t, err)
	require.ErrorIs(t, p.Dealloc(7), ErrIdOutOfRange)
}

func TestIdPool_CheckedModeDetectsDoubleDealloc(t *testing.T) {
	p := NewIdPool(WithChecks(true))
	id, err := p.Alloc()
	require.NoError(t, err)

	require.NoError(t, p.Dealloc(id))
	require.ErrorIs(t, p.Dealloc(id), ErrIdNotInUse)
	assert.Equal(t, p.Capacity(), p.NumFree())
}

func TestIdPool_ForEachFreeAndMoveCompactsIds(t *testing.T) {
	p := NewIdPool(WithGrow(8), WithChecks(true))
	ids := make([]uint32, 8)
	for i := range ids {
		id, err := p.Alloc()
		require.NoError(t, err)
		ids[i] = id
	}
	// free the low ids 1 and 2, keep 7 as the id to rehome
	require.NoError(t, p.Dealloc(1))
	require.NoError(t, p.Dealloc(2))

	var visited []uint32
	p.ForEachFree(func(id uint32, pos int) {
		visited = append(visited, id)
	}, 2)
	assert.ElementsMatch(t, []uint32{1}, visited)

	var lowPos = -1
	p.ForEachFree(func(id uint32, pos int) {
		if id == 1 {
			lowPos = pos
		}
	}, 8)
	require.NotEqual(t, -1, lowPos)

	require.NoError(t, p.Move(lowPos, 7))
	assert.Equal(t, uint32(6), p.NumUsed())

	var free []uint32
	p.ForEachFree(func(id uint32, _ int) { free = append(free, id) }, 8)
	assert.ElementsMatch(t, []uint32{2, 7}, free)

	// 1 is now owned by the caller, so releasing it is legal again
	require.NoError(t, p.Dealloc(1))
	require.ErrorIs(t, p.Move(99, 3), ErrIdOutOfRange)
}

func TestIdPool_ForEachFreeStopsAtLimitMatches(t *testing.T) {
	p := NewIdPool()
	require.NoError(t, p.Reserve(100))

	calls := 0
	p.ForEachFree(func(uint32, int) { calls++ }, 10)
	assert.Equal(t, 10, calls)
}

func TestIdPool_TotalNeverDecreases(t *testing.T) {
	p := NewIdPool(WithGrow(3))
	var live []uint32
	total := uint32(0)
	for step := 0; step < 200; step++ {
		if step%3 == 2 && len(live) > 0 {
			require.NoError(t, p.Dealloc(live[0]))
			live = live[1:]
		} else {
			id, err := p.Alloc()
			require.NoError(t, err)
			assert.NotContains(t, live, id)
			live = append(live, id)
		}
		now := p.NumUsed() + p.NumFree()
		require.GreaterOrEqual(t, now, total)
		total = now
	}
}

func TestSyncIdPool_ConcurrentAlloc(t *testing.T) {
	sp := NewSyncIdPool(WithGrow(16))
	const workers, each = 8, 100

	results := make(chan uint32, workers*each)
	done := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < each; i++ {
				id, err := sp.Alloc()
				if err == nil {
					results <- id
				}
			}
		}()
	}
	for w := 0; w < workers; w++ {
		<-done
	}
	close(results)

	seen := map[uint32]bool{}
	for id := range results {
		require.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, seen, workers*each)
	used, _ := sp.Counts()
	assert.Equal(t, uint32(workers*each), used)
}

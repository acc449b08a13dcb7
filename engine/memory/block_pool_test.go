package memory

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-memory/engine/core"
)

func TestFixedBlockPool_Setup(t *testing.T) {
	p, _ := newTestPool(t, 45, 4, WithName("scenario"))

	assert.Equal(t, "scenario", p.Name())
	assert.Equal(t, 45, p.BlockSize())
	assert.Equal(t, 48, p.AlignedBlockSize())
	assert.Equal(t, 4, p.NumBlocks())
	assert.Equal(t, 4*48, p.PoolSize())
	assert.Equal(t, 4, p.NumFree())
	require.NoError(t, p.Close())
}

func TestFixedBlockPool_ExhaustionAndReuse(t *testing.T) {
	p, _ := newTestPool(t, 45, 4)

	blocks := make([][]byte, 0, 4)
	seen := map[uintptr]bool{}
	for i := 0; i < 4; i++ {
		b, ok := p.Alloc()
		require.True(t, ok)
		require.Len(t, b, 45)
		require.True(t, p.IsPoolBlock(b))
		require.False(t, seen[blockAddr(b)], "block handed out twice")
		seen[blockAddr(b)] = true
		blocks = append(blocks, b)
	}

	b, ok := p.Alloc()
	assert.False(t, ok)
	assert.Nil(t, b)

	for _, b := range blocks {
		require.NoError(t, p.Free(b))
	}
	b, ok = p.Alloc()
	require.True(t, ok)
	assert.True(t, seen[blockAddr(b)], "reused block must come from the original region")
	require.NoError(t, p.Free(b))
	require.NoError(t, p.Close())
}

func TestFixedBlockPool_SlotsAreAlignedAndDisjoint(t *testing.T) {
	p, _ := newTestPool(t, 20, 8)
	var prev uintptr
	for i := 0; i < 8; i++ {
		b, ok := p.Alloc()
		require.True(t, ok)
		addr := blockAddr(b)
		assert.Zero(t, addr%BlockAlignment)
		if i > 0 {
			assert.GreaterOrEqual(t, addr-prev, uintptr(p.AlignedBlockSize()))
		}
		prev = addr
		defer func() { require.NoError(t, p.Free(b)) }()
	}
}

func TestFixedBlockPool_SetupFailures(t *testing.T) {
	var p FixedBlockPool
	err := p.Setup(failingHeap{}, 32, 4)
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	require.ErrorIs(t, err, ErrHeapExhausted)
	require.ErrorIs(t, err, errNoMemory)

	err = p.Setup(NewGoHeap("go"), 0, 4)
	assert.True(t, core.IsFatal(err))
	require.ErrorIs(t, err, ErrInvalidSize)

	err = p.Setup(NewGoHeap("go"), 32, 0)
	require.ErrorIs(t, err, ErrInvalidBlockCount)

	require.NoError(t, p.Setup(NewGoHeap("go"), 32, 4))
	err = p.Setup(NewGoHeap("go"), 32, 4)
	assert.True(t, core.IsFatal(err))
	require.ErrorIs(t, err, ErrAlreadySetup)
	require.NoError(t, p.Close())
}

func TestFixedBlockPool_RejectsContractViolations(t *testing.T) {
	p, metrics := newTestPool(t, 32, 2)

	b, ok := p.Alloc()
	require.True(t, ok)

	require.ErrorIs(t, p.Free(make([]byte, 32)), ErrNotPoolBlock)
	require.ErrorIs(t, p.Free(b[1:]), ErrMisalignedBlock)

	require.NoError(t, p.Free(b))
	require.ErrorIs(t, p.Free(b), ErrDoubleFree)
	assert.Equal(t, 2, p.NumFree())

	// the free list survived the double free: exactly two distinct blocks remain
	x, ok := p.Alloc()
	require.True(t, ok)
	y, ok := p.Alloc()
	require.True(t, ok)
	assert.NotEqual(t, blockAddr(x), blockAddr(y))
	_, ok = p.Alloc()
	assert.False(t, ok)

	assert.Equal(t, int64(3), metrics.Snapshot().Faults)
	require.NoError(t, p.Free(x))
	require.NoError(t, p.Free(y))
	require.NoError(t, p.Close())
}

func TestFixedBlockPool_DebugFill(t *testing.T) {
	p, _ := newTestPool(t, 24, 1, WithDebugFill(true))

	b, ok := p.Alloc()
	require.True(t, ok)
	for _, v := range b {
		require.Equal(t, AllocFill, v)
	}
	require.NoError(t, p.Free(b))
	for _, v := range b {
		require.Equal(t, FreeFill, v)
	}

	p.SetDebugFill(false)
	b, ok = p.Alloc()
	require.True(t, ok)
	assert.Equal(t, FreeFill, b[0])
	require.NoError(t, p.Free(b))
	require.NoError(t, p.Close())
}

func TestFixedBlockPool_CloseReportsLeaks(t *testing.T) {
	p, metrics := newTestPool(t, 16, 4)
	_, ok := p.Alloc()
	require.True(t, ok)
	_, ok = p.Alloc()
	require.True(t, ok)

	err := p.Close()
	require.ErrorIs(t, err, ErrLeakedBlocks)
	assert.Equal(t, int64(2), metrics.Snapshot().Leaks)

	require.ErrorIs(t, p.Close(), ErrClosed)
	_, ok = p.Alloc()
	assert.False(t, ok)
}

func TestFixedBlockPool_TelemetryCounts(t *testing.T) {
	p, metrics := newTestPool(t, 16, 4)
	b, ok := p.Alloc()
	require.True(t, ok)
	require.NoError(t, p.Free(b))

	s := metrics.Snapshot()
	pool := s.Heaps[core.HeapTypePool]
	assert.Equal(t, int64(1), pool.Allocs)
	assert.Equal(t, int64(1), pool.Frees)
	assert.Zero(t, pool.Live())
	require.NoError(t, p.Close())
}

func TestFixedBlockPool_ConcurrentNoDoubleIssue(t *testing.T) {
	const (
		workers = 8
		rounds  = 2000
	)
	p, _ := newTestPool(t, 16, 32)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(owner uint64) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				b, ok := p.Alloc()
				if !ok {
					continue
				}
				if !p.IsPoolBlock(b) {
					errs <- ErrNotPoolBlock
					return
				}
				stamp := owner<<32 | uint64(i)
				binary.LittleEndian.PutUint64(b, stamp)
				if got := binary.LittleEndian.Uint64(b); got != stamp {
					errs <- ErrDoubleFree
					return
				}
				if err := p.Free(b); err != nil {
					errs <- err
					return
				}
			}
		}(uint64(w))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Zero(t, p.NumAllocated())
	require.NoError(t, p.Close())
}

func BenchmarkFixedBlockPool_AllocFree(b *testing.B) {
	p, err := NewFixedBlockPool(NewGoHeap("bench"), 64, 1024)
	require.NoError(b, err)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			blk, ok := p.Alloc()
			if ok {
				_ = p.Free(blk)
			}
		}
	})
	b.StopTimer()
	require.NoError(b, p.Close())
}

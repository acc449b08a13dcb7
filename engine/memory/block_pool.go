package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-memory/engine/containers"
	"github.com/spaghettifunk/anima-memory/engine/core"
	"github.com/spaghettifunk/anima-memory/engine/math"
)

const (
	// BlockAlignment is the stride every slot is rounded up to.
	BlockAlignment = 16

	// AllocFill and FreeFill are written over blocks when debug fill is on.
	AllocFill byte = 0xCD
	FreeFill  byte = 0xDD
)

const (
	slotFree uint32 = iota
	slotAllocated
)

// FixedBlockPool hands out blocks of one size from a single region obtained
// from a Heap at Setup. The zero value is ready for Setup.
type FixedBlockPool struct {
	src  core.Source
	heap Heap
	sink core.AllocationSink

	blockSize        int
	headerSize       int
	alignedBlockSize int
	numBlocks        int

	region    []byte
	slots     []byte
	poolStart uintptr
	poolEnd   uintptr

	free      *containers.FreeStack
	state     []atomic.Uint32
	allocated atomic.Int64
	debugFill atomic.Bool

	isSetup bool
	closed  atomic.Bool
}

// NewFixedBlockPool allocates and sets up a pool in one step.
func NewFixedBlockPool(heap Heap, blockSize, numBlocks int, opts ...Option) (*FixedBlockPool, error) {
	p := &FixedBlockPool{}
	if err := p.Setup(heap, blockSize, numBlocks, opts...); err != nil {
		return nil, err
	}
	return p, nil
}

// Setup reserves numBlocks slots of blockSize bytes from heap and marks all
// of them free. Every failure is fatal for the pool.
func (p *FixedBlockPool) Setup(heap Heap, blockSize, numBlocks int, opts ...Option) error {
	o := buildOptions(opts)
	if o.name == "" {
		o.name = fmt.Sprintf("pool-%d", blockSize)
	}
	src := core.NewSource(o.name)

	switch {
	case p.isSetup:
		return core.NewFatalError("setup", src.String(), ErrAlreadySetup)
	case blockSize <= 0:
		return core.NewFatalError("setup", src.String(), fmt.Errorf("%w: block size %d", ErrInvalidSize, blockSize))
	case numBlocks <= 0:
		return core.NewFatalError("setup", src.String(), fmt.Errorf("%w: %d", ErrInvalidBlockCount, numBlocks))
	}

	aligned := math.AlignUp(blockSize+o.headerSize, BlockAlignment)
	free, err := containers.NewFreeStack(numBlocks)
	if err != nil {
		return core.NewFatalError("setup", src.String(), err)
	}

	regionSize := numBlocks*aligned + BlockAlignment
	region, err := heap.Allocate(regionSize, BlockAlignment)
	if err != nil {
		return core.NewFatalError("setup", src.String(), fmt.Errorf("%w: %d bytes from %s: %w", ErrHeapExhausted, regionSize, heap.Name(), err))
	}

	start := blockAddr(region)
	off := int(math.AlignUp(start, BlockAlignment) - start)

	p.src = src
	p.heap = heap
	p.sink = o.sink
	p.blockSize = blockSize
	p.headerSize = o.headerSize
	p.alignedBlockSize = aligned
	p.numBlocks = numBlocks
	p.region = region
	p.slots = region[off : off+numBlocks*aligned]
	p.poolStart = start + uintptr(off)
	p.poolEnd = p.poolStart + uintptr(numBlocks*aligned)
	p.free = free
	p.state = make([]atomic.Uint32, numBlocks)
	p.debugFill.Store(o.debugFill)
	p.isSetup = true

	// push in reverse so the first Alloc returns the lowest slot
	for i := numBlocks - 1; i >= 0; i-- {
		p.free.Push(i)
	}

	core.LogDebug("%s: %d blocks of %d bytes (stride %d) from %s", src, numBlocks, blockSize, aligned, heap.Name())
	return nil
}

// Alloc pops a free block. ok is false when the pool is exhausted, closed or
// not set up; that is an expected condition the caller must handle.
func (p *FixedBlockPool) Alloc() (block []byte, ok bool) {
	if !p.isSetup || p.closed.Load() {
		return nil, false
	}
	idx, ok := p.free.Pop()
	if !ok {
		return nil, false
	}
	p.state[idx].Store(slotAllocated)
	p.allocated.Add(1)

	block = p.slot(idx)
	if p.debugFill.Load() {
		fill(block, AllocFill)
	}
	p.sink.OnAlloc(p.src, core.HeapTypePool, p.blockSize)
	return block, true
}

// Free returns block to the pool. Blocks from another pool, pointers into
// the middle of a slot and blocks that are already free are rejected and the
// free list is left untouched.
func (p *FixedBlockPool) Free(block []byte) error {
	idx, err := p.index(block)
	if err != nil {
		if p.isSetup {
			p.sink.OnFault(p.src, err)
		}
		return err
	}
	if !p.state[idx].CompareAndSwap(slotAllocated, slotFree) {
		err := fmt.Errorf("%w: slot %d of %s", ErrDoubleFree, idx, p.src)
		p.sink.OnFault(p.src, err)
		return err
	}
	if p.debugFill.Load() {
		fill(p.slot(idx), FreeFill)
	}
	p.allocated.Add(-1)
	p.free.Push(idx)
	p.sink.OnFree(p.src, core.HeapTypePool, p.blockSize)
	return nil
}

// IsPoolBlock reports whether block starts inside this pool's region.
func (p *FixedBlockPool) IsPoolBlock(block []byte) bool {
	return p.Contains(blockAddr(block))
}

// Contains reports whether addr lies in [poolStart, poolEnd).
func (p *FixedBlockPool) Contains(addr uintptr) bool {
	return addr >= p.poolStart && addr < p.poolEnd
}

// Close releases the region to the heap. Blocks still allocated are reported
// as a leak and returned as ErrLeakedBlocks; the region is released anyway.
func (p *FixedBlockPool) Close() error {
	if !p.isSetup {
		return nil
	}
	if !p.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ErrClosed, p.src)
	}

	var leakErr error
	if n := p.allocated.Load(); n != 0 {
		p.sink.OnLeak(p.src, n)
		core.LogWarn("%s closed with %d of %d blocks outstanding", p.src, n, p.numBlocks)
		leakErr = fmt.Errorf("%w: %d in %s", ErrLeakedBlocks, n, p.src)
	}

	region := p.region
	p.region, p.slots = nil, nil
	if err := p.heap.Free(region); err != nil {
		return fmt.Errorf("release %s: %w", p.src, err)
	}
	return leakErr
}

// SetDebugFill toggles sentinel filling at runtime.
func (p *FixedBlockPool) SetDebugFill(enabled bool) {
	p.debugFill.Store(enabled)
}

func (p *FixedBlockPool) BlockSize() int {
	return p.blockSize
}

func (p *FixedBlockPool) AlignedBlockSize() int {
	return p.alignedBlockSize
}

func (p *FixedBlockPool) NumBlocks() int {
	return p.numBlocks
}

// PoolSize is the number of bytes spanned by the pool's slots.
func (p *FixedBlockPool) PoolSize() int {
	return p.numBlocks * p.alignedBlockSize
}

// NumAllocated is the number of blocks currently handed out.
func (p *FixedBlockPool) NumAllocated() int {
	return int(p.allocated.Load())
}

func (p *FixedBlockPool) NumFree() int {
	return p.numBlocks - p.NumAllocated()
}

func (p *FixedBlockPool) Name() string {
	return p.src.Name
}

func (p *FixedBlockPool) Source() core.Source {
	return p.src
}

func (p *FixedBlockPool) index(block []byte) (int, error) {
	if !p.isSetup {
		return -1, ErrNotSetup
	}
	if p.closed.Load() {
		return -1, fmt.Errorf("%w: %s", ErrClosed, p.src)
	}
	addr := blockAddr(block)
	if !p.Contains(addr) {
		return -1, fmt.Errorf("%w: %#x not in %s", ErrNotPoolBlock, addr, p.src)
	}
	off := int(addr - p.poolStart)
	if !math.IsAligned(off, BlockAlignment) || off%p.alignedBlockSize != 0 {
		return -1, fmt.Errorf("%w: offset %d in %s", ErrMisalignedBlock, off, p.src)
	}
	return off / p.alignedBlockSize, nil
}

func (p *FixedBlockPool) slot(idx int) []byte {
	off := idx * p.alignedBlockSize
	return p.slots[off : off+p.blockSize : off+p.blockSize]
}

// header returns the bookkeeping bytes that follow block idx.
func (p *FixedBlockPool) header(idx int) []byte {
	off := idx*p.alignedBlockSize + p.blockSize
	return p.slots[off : off+p.headerSize : off+p.headerSize]
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

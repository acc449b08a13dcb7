package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-memory/engine/core"
	"github.com/spaghettifunk/anima-memory/engine/math"
)

const (
	NumSizeClasses  = 8
	SizeClassStride = 32

	// sizeClassHeader is the tail word of each slot holding the requested size.
	sizeClassHeader = 4
	smallestClass   = SizeClassStride - sizeClassHeader

	// MaxPooledSize is the largest request served from a size-class pool.
	MaxPooledSize = smallestClass + SizeClassStride*(NumSizeClasses-1)
)

// DefaultBudgets gives every size class 64KiB.
var DefaultBudgets = [NumSizeClasses]int{
	64 << 10, 64 << 10, 64 << 10, 64 << 10,
	64 << 10, 64 << 10, 64 << 10, 64 << 10,
}

// ClassIndex maps a request size to its size class. Results of
// NumSizeClasses or more mean the request bypasses the pools.
func ClassIndex(size int) int {
	return (size + sizeClassHeader - 1) >> 5
}

// ClassBlockSize is the largest request size class i can hold.
func ClassBlockSize(i int) int {
	return smallestClass + SizeClassStride*i
}

// SizeClassAllocator routes small requests to per-size-class pools and larger
// ones to the backing heap. It holds no locks of its own; the zero value is
// ready for Setup.
type SizeClassAllocator struct {
	src    core.Source
	heap   Heap
	sink   core.AllocationSink
	policy ExhaustionPolicy
	pools  [NumSizeClasses]FixedBlockPool

	// fallbacks holds heap blocks that stood in for an exhausted class.
	fallbacks sync.Map

	isSetup bool
	closed  atomic.Bool
}

// Setup creates one pool per size class, each sized to budgets[i] bytes.
// The allocator does not own heap.
func (a *SizeClassAllocator) Setup(name string, heap Heap, budgets [NumSizeClasses]int, opts ...Option) error {
	o := buildOptions(opts)
	src := core.NewSource(name)
	if a.isSetup {
		return core.NewFatalError("setup", src.String(), ErrAlreadySetup)
	}

	for i := 0; i < NumSizeClasses; i++ {
		raw := ClassBlockSize(i)
		aligned := math.AlignUp(raw+sizeClassHeader, BlockAlignment)
		if aligned != SizeClassStride*(i+1) {
			a.closePools(i)
			return core.NewFatalError("setup", src.String(), fmt.Errorf("%w: class %d stride %d, expected %d", ErrAlignmentMismatch, i, aligned, SizeClassStride*(i+1)))
		}
		numBlocks := budgets[i] / aligned
		if numBlocks <= 0 {
			a.closePools(i)
			return core.NewFatalError("setup", src.String(), fmt.Errorf("%w: class %d budget %d, stride %d", ErrBudgetTooSmall, i, budgets[i], aligned))
		}
		err := a.pools[i].Setup(heap, raw, numBlocks,
			WithName(fmt.Sprintf("%s/%d", name, raw)),
			WithSink(o.sink),
			WithDebugFill(o.debugFill),
			withHeaderSize(sizeClassHeader),
		)
		if err != nil {
			a.closePools(i)
			return err
		}
		if a.pools[i].AlignedBlockSize() != SizeClassStride*(i+1) {
			a.closePools(i + 1)
			return core.NewFatalError("setup", src.String(), fmt.Errorf("%w: class %d", ErrAlignmentMismatch, i))
		}
	}

	a.src = src
	a.heap = heap
	a.sink = o.sink
	a.policy = o.policy
	a.isSetup = true
	core.LogInfo("%s: size classes ready, exhaustion policy %s, backing heap %s", src, o.policy, heap.Name())
	return nil
}

// Alloc returns a block of len size. Requests up to MaxPooledSize come from
// the matching size-class pool; larger ones from the backing heap.
func (a *SizeClassAllocator) Alloc(size int) ([]byte, error) {
	if !a.isSetup {
		return nil, ErrNotSetup
	}
	if a.closed.Load() {
		return nil, fmt.Errorf("%w: %s", ErrClosed, a.src)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	idx := ClassIndex(size)
	if idx >= NumSizeClasses {
		return a.heapAlloc(size, core.HeapTypeBacking)
	}

	p := &a.pools[idx]
	block, ok := p.Alloc()
	if !ok {
		exhausted := fmt.Errorf("%w: %s class %d, %d-byte blocks, %d blocks", ErrPoolExhausted, p.src, idx, p.BlockSize(), p.NumBlocks())
		if a.policy == ExhaustionFallback {
			a.sink.OnFallback(a.src, size)
			return a.heapAlloc(size, core.HeapTypeFallback)
		}
		err := core.NewFatalError("alloc", a.src.String(), exhausted)
		a.sink.OnFault(a.src, err)
		return nil, err
	}

	slot := (blockAddr(block) - p.poolStart) / uintptr(p.alignedBlockSize)
	binary.LittleEndian.PutUint32(p.header(int(slot)), uint32(size))
	return block[:size], nil
}

// FreeSized releases block, which must have been allocated with size. The
// size picks the pool directly; a size that disagrees with the allocation is
// rejected with ErrSizeMismatch.
func (a *SizeClassAllocator) FreeSized(block []byte, size int) error {
	if !a.isSetup {
		return ErrNotSetup
	}
	idx := ClassIndex(size)
	if idx < NumSizeClasses && a.pools[idx].IsPoolBlock(block) {
		return a.freePooled(&a.pools[idx], block, size)
	}
	if owner := a.owner(block); owner != nil {
		err := fmt.Errorf("%w: freed as %d bytes, block belongs to %s", ErrSizeMismatch, size, owner.src)
		a.sink.OnFault(a.src, err)
		return err
	}
	return a.heapFree(block)
}

// Free releases block without knowing its size by probing each pool's range.
func (a *SizeClassAllocator) Free(block []byte) error {
	if !a.isSetup {
		return ErrNotSetup
	}
	if p := a.owner(block); p != nil {
		return a.freePooled(p, block, -1)
	}
	return a.heapFree(block)
}

// SetDebugFill toggles sentinel filling on every size-class pool.
func (a *SizeClassAllocator) SetDebugFill(enabled bool) {
	for i := range a.pools {
		a.pools[i].SetDebugFill(enabled)
	}
}

// Close releases every pool, joining leak reports.
func (a *SizeClassAllocator) Close() error {
	if !a.isSetup || !a.closed.CompareAndSwap(false, true) {
		return nil
	}
	errs := make([]error, 0, NumSizeClasses)
	for i := range a.pools {
		if err := a.pools[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pool exposes size class i for inspection.
func (a *SizeClassAllocator) Pool(i int) *FixedBlockPool {
	return &a.pools[i]
}

func (a *SizeClassAllocator) Name() string {
	return a.src.Name
}

func (a *SizeClassAllocator) Source() core.Source {
	return a.src
}

func (a *SizeClassAllocator) Policy() ExhaustionPolicy {
	return a.policy
}

// closePools releases the first n pools after a failed Setup.
func (a *SizeClassAllocator) closePools(n int) {
	for i := 0; i < n; i++ {
		_ = a.pools[i].Close()
	}
}

func (a *SizeClassAllocator) owner(block []byte) *FixedBlockPool {
	addr := blockAddr(block)
	for i := range a.pools {
		if a.pools[i].Contains(addr) {
			return &a.pools[i]
		}
	}
	return nil
}

// freePooled checks the recorded size when want >= 0 and hands the block back.
func (a *SizeClassAllocator) freePooled(p *FixedBlockPool, block []byte, want int) error {
	idx, err := p.index(block)
	if err != nil {
		a.sink.OnFault(a.src, err)
		return err
	}
	if want >= 0 {
		if got := int(binary.LittleEndian.Uint32(p.header(idx))); got != want {
			err := fmt.Errorf("%w: freed as %d bytes, allocated as %d", ErrSizeMismatch, want, got)
			a.sink.OnFault(a.src, err)
			return err
		}
	}
	return p.Free(block)
}

func (a *SizeClassAllocator) heapAlloc(size int, heap core.HeapType) ([]byte, error) {
	block, err := a.heap.Allocate(size, BlockAlignment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.src, err)
	}
	if heap == core.HeapTypeFallback {
		a.fallbacks.Store(blockAddr(block), struct{}{})
	}
	a.sink.OnAlloc(a.src, heap, size)
	return block, nil
}

func (a *SizeClassAllocator) heapFree(block []byte) error {
	heap := core.HeapTypeBacking
	if _, ok := a.fallbacks.LoadAndDelete(blockAddr(block)); ok {
		heap = core.HeapTypeFallback
	}
	size := len(block)
	if err := a.heap.Free(block); err != nil {
		a.sink.OnFault(a.src, err)
		return err
	}
	a.sink.OnFree(a.src, heap, size)
	return nil
}

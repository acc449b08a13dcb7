package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/spaghettifunk/anima-memory/engine/math"
)

// Heap is the general-purpose allocator pools carve their regions from and
// oversized requests fall through to. Implementations must be safe for
// concurrent use and never return partially valid memory.
type Heap interface {
	// Allocate returns size bytes whose first byte is aligned to align,
	// which must be a power of two.
	Allocate(size, align int) ([]byte, error)
	// Free releases a block previously returned by Allocate or Reallocate.
	Free(block []byte) error
	// Reallocate resizes block, copying the common prefix.
	Reallocate(block []byte, newSize, align int) ([]byte, error)
	Name() string
}

// blockAddr is the identity of a block: the address of its first byte.
func blockAddr(block []byte) uintptr {
	if cap(block) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(block)))
}

type region struct {
	raw  []byte
	size int
}

// regionTable tracks live heap blocks by address so Free can validate them
// and find the underlying allocation.
type regionTable struct {
	live  sync.Map // uintptr -> region
	count atomic.Int64
	bytes atomic.Int64
}

func (t *regionTable) add(block []byte, raw []byte) {
	t.live.Store(blockAddr(block), region{raw: raw, size: len(block)})
	t.count.Add(1)
	t.bytes.Add(int64(len(block)))
}

func (t *regionTable) remove(block []byte) (region, error) {
	v, ok := t.live.LoadAndDelete(blockAddr(block))
	if !ok {
		return region{}, fmt.Errorf("%w: %#x", ErrUnknownRegion, blockAddr(block))
	}
	r := v.(region)
	t.count.Add(-1)
	t.bytes.Add(-int64(r.size))
	return r, nil
}

func checkRequest(size, align int) error {
	if size < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if !math.IsPowerOfTwo(align) {
		return fmt.Errorf("%w: %d", ErrInvalidAlignment, align)
	}
	return nil
}

// carve returns the aligned size-byte window of raw. Zero-sized requests keep
// a capacity of one byte so the block still carries its address.
func carve(raw []byte, size, align int) []byte {
	base := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	off := int(math.AlignUp(base, uintptr(align)) - base)
	return raw[off : off+size : off+max(size, 1)]
}

func reallocate(h Heap, block []byte, newSize, align int) ([]byte, error) {
	nb, err := h.Allocate(newSize, align)
	if err != nil {
		return nil, err
	}
	copy(nb, block)
	if err := h.Free(block); err != nil {
		_ = h.Free(nb)
		return nil, err
	}
	return nb, nil
}

// GoHeap serves memory from the Go runtime. Alignment is obtained by
// over-allocating; released blocks are left to the garbage collector.
type GoHeap struct {
	name    string
	regions regionTable
}

func NewGoHeap(name string) *GoHeap {
	return &GoHeap{name: name}
}

func (h *GoHeap) Allocate(size, align int) ([]byte, error) {
	if err := checkRequest(size, align); err != nil {
		return nil, err
	}
	raw := make([]byte, max(size, 1)+align-1)
	block := carve(raw, size, align)
	h.regions.add(block, raw)
	return block, nil
}

func (h *GoHeap) Free(block []byte) error {
	_, err := h.regions.remove(block)
	return err
}

func (h *GoHeap) Reallocate(block []byte, newSize, align int) ([]byte, error) {
	return reallocate(h, block, newSize, align)
}

func (h *GoHeap) Name() string {
	return h.name
}

// Outstanding returns the number of live blocks and their total size.
func (h *GoHeap) Outstanding() (blocks, bytes int64) {
	return h.regions.count.Load(), h.regions.bytes.Load()
}

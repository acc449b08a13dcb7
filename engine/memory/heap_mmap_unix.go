//go:build unix

package memory

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/spaghettifunk/anima-memory/engine/math"
)

// MmapHeap maps anonymous private memory for every block, keeping pool
// regions outside the Go heap. Each allocation costs at least one page, so it
// suits the few large regions pools ask for rather than small requests.
type MmapHeap struct {
	name     string
	pageSize int
	regions  regionTable
}

func NewMmapHeap(name string) *MmapHeap {
	return &MmapHeap{name: name, pageSize: os.Getpagesize()}
}

func (h *MmapHeap) Allocate(size, align int) ([]byte, error) {
	if err := checkRequest(size, align); err != nil {
		return nil, err
	}
	length := max(size, 1)
	if align > h.pageSize {
		length += align - 1
	}
	length = math.AlignUp(length, h.pageSize)
	raw, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %d bytes: %w", ErrHeapExhausted, length, err)
	}
	block := carve(raw, size, align)
	h.regions.add(block, raw)
	return block, nil
}

func (h *MmapHeap) Free(block []byte) error {
	r, err := h.regions.remove(block)
	if err != nil {
		return err
	}
	return unix.Munmap(r.raw)
}

func (h *MmapHeap) Reallocate(block []byte, newSize, align int) ([]byte, error) {
	return reallocate(h, block, newSize, align)
}

func (h *MmapHeap) Name() string {
	return h.name
}

func (h *MmapHeap) Outstanding() (blocks, bytes int64) {
	return h.regions.count.Load(), h.regions.bytes.Load()
}

//go:build !unix

package memory

// MmapHeap falls back to Go-managed memory where anonymous mappings are not
// available.
type MmapHeap struct {
	GoHeap
}

func NewMmapHeap(name string) *MmapHeap {
	return &MmapHeap{GoHeap: GoHeap{name: name}}
}

func (h *MmapHeap) Reallocate(block []byte, newSize, align int) ([]byte, error) {
	return reallocate(h, block, newSize, align)
}

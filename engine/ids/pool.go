package ids

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-memory/engine/containers"
)

var ErrStaleHandle = errors.New("ids: stale or invalid handle")

// HandlePool mints generational ID24x8 handles over a containers.IdPool.
// Releasing a handle bumps its slot's generation, so copies of the released
// handle stop validating. Like IdPool it is not synchronized.
type HandlePool[T any] struct {
	ids  *containers.IdPool
	gens []uint8
	// live is tracked apart from gens: the 8-bit generation wraps.
	live []bool
}

// NewHandlePool creates a pool of at most maxHandles live handles; zero or
// anything above the 24-bit index space means the whole index space.
func NewHandlePool[T any](maxHandles, grow uint32) *HandlePool[T] {
	if maxHandles == 0 || maxHandles > MaxIndex24 {
		maxHandles = MaxIndex24
	}
	return &HandlePool[T]{
		ids: containers.NewIdPool(
			containers.WithMaxID(maxHandles),
			containers.WithGrow(grow),
		),
	}
}

func (p *HandlePool[T]) Acquire() (ID24x8[T], error) {
	index, err := p.ids.Alloc()
	if err != nil {
		return InvalidID24x8[T](), err
	}
	for uint32(len(p.gens)) <= index {
		p.gens = append(p.gens, 0)
		p.live = append(p.live, false)
	}
	p.live[index] = true
	return NewID24x8[T](index, p.gens[index])
}

// Release invalidates id and recycles its index.
func (p *HandlePool[T]) Release(id ID24x8[T]) error {
	if !p.Valid(id) {
		return fmt.Errorf("%w: %s", ErrStaleHandle, id)
	}
	index := id.Index()
	p.gens[index]++
	p.live[index] = false
	return p.ids.Dealloc(index)
}

// Valid reports whether id is the live handle for its slot.
func (p *HandlePool[T]) Valid(id ID24x8[T]) bool {
	if !id.IsValid() {
		return false
	}
	index := id.Index()
	if index >= uint32(len(p.gens)) || !p.live[index] {
		return false
	}
	return p.gens[index] == id.Generation()
}

// Len returns the number of live handles.
func (p *HandlePool[T]) Len() int {
	return int(p.ids.NumUsed())
}

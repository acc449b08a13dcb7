package containers

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

const (
	// DefaultIdGrow is the number of ids reserved each time the free list runs dry.
	DefaultIdGrow uint32 = 512
	// InvalidID is returned alongside errors and is never minted.
	InvalidID uint32 = math.MaxUint32
)

var (
	ErrIdPoolFull   = errors.New("containers: id pool exhausted")
	ErrIdOutOfRange = errors.New("containers: id out of range")
	ErrIdNotInUse   = errors.New("containers: id is not in use")
	ErrIdPoolInUse  = errors.New("containers: id pool has ids in use")
)

// IdPool mints small dense ids and recycles released ones.
//
// IdPool is not synchronized. Confine it to one goroutine or guard every call
// with a lock; SyncIdPool does the latter.
type IdPool struct {
	maxID    uint32
	grow     uint32
	capacity uint32
	free     []uint32

	// used is only maintained in checked mode.
	checked bool
	used    []uint64
}

type IdPoolOption func(*IdPool)

// WithMaxID caps the ids the pool may mint to [0, max).
func WithMaxID(max uint32) IdPoolOption {
	return func(p *IdPool) {
		p.maxID = max
	}
}

// WithGrow sets how many ids are reserved at once when the pool grows.
func WithGrow(grow uint32) IdPoolOption {
	return func(p *IdPool) {
		if grow > 0 {
			p.grow = grow
		}
	}
}

// WithChecks makes Dealloc and Move reject ids that are not currently in use.
func WithChecks(enabled bool) IdPoolOption {
	return func(p *IdPool) {
		p.checked = enabled
	}
}

func NewIdPool(opts ...IdPoolOption) *IdPool {
	p := &IdPool{
		maxID: InvalidID,
		grow:  DefaultIdGrow,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Alloc returns a free id, growing the pool when the free list is empty.
func (p *IdPool) Alloc() (uint32, error) {
	if len(p.free) == 0 {
		if p.capacity >= p.maxID {
			return InvalidID, fmt.Errorf("%w: %d ids reserved, max %d", ErrIdPoolFull, p.capacity, p.maxID)
		}
		p.reserveMore(min(p.maxID-p.capacity, p.grow))
	}
	last := len(p.free) - 1
	id := p.free[last]
	p.free = p.free[:last]
	p.setUsed(id, true)
	return id, nil
}

// MustAlloc is Alloc for callers that size the pool up front.
func (p *IdPool) MustAlloc() uint32 {
	id, err := p.Alloc()
	if err != nil {
		panic(err)
	}
	return id
}

// Dealloc makes id available to a later Alloc. Releasing an id twice is only
// detected in checked mode.
func (p *IdPool) Dealloc(id uint32) error {
	if id >= p.capacity {
		return fmt.Errorf("%w: %d (capacity %d)", ErrIdOutOfRange, id, p.capacity)
	}
	if p.checked && !p.isUsed(id) {
		return fmt.Errorf("%w: %d", ErrIdNotInUse, id)
	}
	p.setUsed(id, false)
	p.free = append(p.free, id)
	return nil
}

// Reserve sets the pool's capacity and ceiling to exactly numIDs, all free.
// The pool must not have ids in use.
func (p *IdPool) Reserve(numIDs uint32) error {
	if p.NumUsed() != 0 {
		return fmt.Errorf("%w: %d", ErrIdPoolInUse, p.NumUsed())
	}
	p.maxID = numIDs
	p.capacity = 0
	p.free = make([]uint32, 0, numIDs)
	p.used = nil
	p.reserveMore(numIDs)
	return nil
}

// ForEachFree calls fn for free ids below limit, stopping after limit calls.
// pos is the id's position in the free list and can be passed to Move; fn may
// call Move while iterating.
func (p *IdPool) ForEachFree(fn func(id uint32, pos int), limit uint32) {
	var visited uint32
	for pos := 0; pos < len(p.free) && visited < limit; pos++ {
		if id := p.free[pos]; id < limit {
			fn(id, pos)
			visited++
		}
	}
}

// Move hands the free id at pos to the caller and frees id in its place.
// It is used to compact the id space: the owner of id moves its data into
// the lower slot and releases id.
func (p *IdPool) Move(pos int, id uint32) error {
	if pos < 0 || pos >= len(p.free) {
		return fmt.Errorf("%w: free list position %d", ErrIdOutOfRange, pos)
	}
	if id >= p.capacity {
		return fmt.Errorf("%w: %d (capacity %d)", ErrIdOutOfRange, id, p.capacity)
	}
	if p.checked && !p.isUsed(id) {
		return fmt.Errorf("%w: %d", ErrIdNotInUse, id)
	}
	p.setUsed(p.free[pos], true)
	p.setUsed(id, false)
	p.free[pos] = id
	return nil
}

func (p *IdPool) NumUsed() uint32 {
	return p.capacity - uint32(len(p.free))
}

func (p *IdPool) NumFree() uint32 {
	return uint32(len(p.free))
}

// Capacity is the number of ids reserved so far, used or free.
func (p *IdPool) Capacity() uint32 {
	return p.capacity
}

func (p *IdPool) MaxID() uint32 {
	return p.maxID
}

// reserveMore appends n new ids highest first, so they pop lowest first.
func (p *IdPool) reserveMore(n uint32) {
	start := p.capacity
	for id := start + n; id > start; id-- {
		p.free = append(p.free, id-1)
	}
	p.capacity += n
	if p.checked {
		words := int((p.capacity + 63) / 64)
		for len(p.used) < words {
			p.used = append(p.used, 0)
		}
	}
}

func (p *IdPool) isUsed(id uint32) bool {
	return p.used[id/64]&(1<<(id%64)) != 0
}

func (p *IdPool) setUsed(id uint32, used bool) {
	if !p.checked {
		return
	}
	if used {
		p.used[id/64] |= 1 << (id % 64)
	} else {
		p.used[id/64] &^= 1 << (id % 64)
	}
}

// SyncIdPool guards an IdPool with a mutex for pools shared across goroutines.
type SyncIdPool struct {
	mu   sync.Mutex
	pool *IdPool
}

func NewSyncIdPool(opts ...IdPoolOption) *SyncIdPool {
	return &SyncIdPool{pool: NewIdPool(opts...)}
}

func (s *SyncIdPool) Alloc() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Alloc()
}

func (s *SyncIdPool) Dealloc(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Dealloc(id)
}

func (s *SyncIdPool) Reserve(numIDs uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Reserve(numIDs)
}

// Do runs fn with exclusive access to the underlying pool, for sequences such
// as ForEachFree followed by Move that must not interleave with other calls.
func (s *SyncIdPool) Do(fn func(p *IdPool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.pool)
}

func (s *SyncIdPool) Counts() (used, free uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.NumUsed(), s.pool.NumFree()
}

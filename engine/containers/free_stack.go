package containers

import (
	"errors"
	"math"
	"sync/atomic"
)

var ErrStackCapacity = errors.New("containers: free stack capacity out of range")

// FreeStack is a lock-free LIFO of slot indices in [0, capacity).
//
// The head is a single 64-bit word: the low half holds index+1 of the top
// slot (0 means empty) and the high half a tag bumped on every successful
// push or pop, so a slot popped and pushed back between a reader's load and
// its compare-and-swap cannot be mistaken for an unchanged head.
type FreeStack struct {
	head  atomic.Uint64
	next  []atomic.Uint32
	count atomic.Int64
}

// NewFreeStack creates an empty stack able to hold every index below capacity.
func NewFreeStack(capacity int) (*FreeStack, error) {
	if capacity < 0 || capacity >= math.MaxUint32 {
		return nil, ErrStackCapacity
	}
	return &FreeStack{next: make([]atomic.Uint32, capacity)}, nil
}

// Cap returns the number of distinct indices the stack can hold.
func (s *FreeStack) Cap() int {
	return len(s.next)
}

// Len is exact when the stack is quiescent and approximate otherwise.
func (s *FreeStack) Len() int {
	return int(s.count.Load())
}

// Push puts index on top of the stack. The index must not already be in the
// stack; callers track ownership of indices themselves.
func (s *FreeStack) Push(index int) {
	link := uint32(index) + 1
	for {
		old := s.head.Load()
		s.next[index].Store(uint32(old))
		tagged := (old>>32+1)<<32 | uint64(link)
		if s.head.CompareAndSwap(old, tagged) {
			s.count.Add(1)
			return
		}
	}
}

// Pop removes the top index. ok is false when the stack is empty.
func (s *FreeStack) Pop() (index int, ok bool) {
	for {
		old := s.head.Load()
		top := uint32(old)
		if top == 0 {
			return -1, false
		}
		next := s.next[top-1].Load()
		tagged := (old>>32+1)<<32 | uint64(next)
		if s.head.CompareAndSwap(old, tagged) {
			s.count.Add(-1)
			return int(top - 1), true
		}
	}
}

// Package memory provides the engine's fixed-size block allocators.
//
// # Overview
//
// FixedBlockPool carves one contiguous region from a Heap into equally sized
// blocks and hands them out through a lock-free free list. SizeClassAllocator
// routes small requests to eight such pools by size class and sends anything
// larger to the backing heap.
//
//	heap := memory.NewGoHeap("general")
//	var a memory.SizeClassAllocator
//	if err := a.Setup("general", heap, memory.DefaultBudgets); err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	b, err := a.Alloc(13) // class 0, 28-byte blocks
//	if err != nil {
//	    return err
//	}
//	defer a.FreeSized(b, 13)
//
// # Size Classes
//
// Class i holds requests of up to 28+32*i bytes. Each slot reserves a 4-byte
// tail header recording the requested size, giving a slot stride of 32*(i+1):
//
//	Class 0:    0 -  28 bytes
//	Class 1:   29 -  60 bytes
//	...
//	Class 7:  221 - 252 bytes
//	Heap:     253+      bytes
//
// A request of size s maps to class (s+3)>>5.
//
// # Blocks
//
// Blocks are byte slices inside the pool region. A block is identified by the
// address of its first byte, so callers may reslice it but must pass a slice
// that starts where the block starts when freeing.
//
// # Failure Modes
//
// Setup failures, double setup, broken stride arithmetic and (by default)
// exhausted size-class pools are returned as *core.FatalError. A full
// FixedBlockPool is not an error: Alloc returns ok == false. Double frees,
// foreign pointers and mismatched sizes are detected and returned as errors
// without touching the free list.
//
// # Thread Safety
//
// FixedBlockPool and SizeClassAllocator are safe for concurrent Alloc and
// Free. Setup and Close must not race with other calls.
package memory

package memory

import "errors"

var (
	// ErrAlreadySetup indicates Setup was called twice on the same pool or allocator.
	ErrAlreadySetup = errors.New("memory: already set up")

	// ErrNotSetup indicates use of a pool or allocator before Setup.
	ErrNotSetup = errors.New("memory: not set up")

	// ErrClosed indicates use of a pool or allocator after Close.
	ErrClosed = errors.New("memory: closed")

	// ErrInvalidSize indicates a negative request size or non-positive block size.
	ErrInvalidSize = errors.New("memory: invalid size")

	// ErrInvalidBlockCount indicates a pool sized for fewer than one block.
	ErrInvalidBlockCount = errors.New("memory: block count must be positive")

	// ErrInvalidAlignment indicates an alignment that is not a power of two.
	ErrInvalidAlignment = errors.New("memory: alignment must be a power of two")

	// ErrHeapExhausted indicates the backing heap could not satisfy a request.
	ErrHeapExhausted = errors.New("memory: backing heap exhausted")

	// ErrUnknownRegion indicates a block the heap never handed out or already released.
	ErrUnknownRegion = errors.New("memory: block not owned by heap")

	// ErrPoolExhausted indicates a size-class pool with no free blocks.
	ErrPoolExhausted = errors.New("memory: pool exhausted")

	// ErrNotPoolBlock indicates a block outside the pool's region.
	ErrNotPoolBlock = errors.New("memory: block not owned by pool")

	// ErrMisalignedBlock indicates a pointer inside the region but not at a block start.
	ErrMisalignedBlock = errors.New("memory: pointer is not a block start")

	// ErrDoubleFree indicates a block freed while already free.
	ErrDoubleFree = errors.New("memory: block already free")

	// ErrSizeMismatch indicates a sized free whose size differs from the allocation.
	ErrSizeMismatch = errors.New("memory: size does not match allocation")

	// ErrLeakedBlocks indicates blocks still allocated when a pool was closed.
	ErrLeakedBlocks = errors.New("memory: blocks leaked")

	// ErrAlignmentMismatch indicates the size-class stride arithmetic is inconsistent.
	ErrAlignmentMismatch = errors.New("memory: size class alignment mismatch")

	// ErrBudgetTooSmall indicates a size-class budget that fits no block.
	ErrBudgetTooSmall = errors.New("memory: size class budget below one block")
)

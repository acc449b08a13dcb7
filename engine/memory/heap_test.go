package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoHeap_AlignedAllocations(t *testing.T) {
	h := NewGoHeap("go")
	for _, align := range []int{1, 8, 16, 64, 4096} {
		b, err := h.Allocate(100, align)
		require.NoError(t, err)
		assert.Len(t, b, 100)
		assert.Zero(t, blockAddr(b)%uintptr(align), "align %d", align)
		require.NoError(t, h.Free(b))
	}
	blocks, bytes := h.Outstanding()
	assert.Zero(t, blocks)
	assert.Zero(t, bytes)
}

func TestGoHeap_ZeroSizeKeepsIdentity(t *testing.T) {
	h := NewGoHeap("go")
	b, err := h.Allocate(0, 16)
	require.NoError(t, err)
	assert.Empty(t, b)
	assert.NotZero(t, blockAddr(b))
	require.NoError(t, h.Free(b))
}

func TestGoHeap_RejectsBadRequests(t *testing.T) {
	h := NewGoHeap("go")
	_, err := h.Allocate(-1, 16)
	require.ErrorIs(t, err, ErrInvalidSize)
	_, err = h.Allocate(8, 12)
	require.ErrorIs(t, err, ErrInvalidAlignment)
}

func TestGoHeap_FreeUnknownAndTwice(t *testing.T) {
	h := NewGoHeap("go")
	require.ErrorIs(t, h.Free(make([]byte, 8)), ErrUnknownRegion)

	b, err := h.Allocate(32, 16)
	require.NoError(t, err)
	require.NoError(t, h.Free(b))
	require.ErrorIs(t, h.Free(b), ErrUnknownRegion)
}

func TestGoHeap_Reallocate(t *testing.T) {
	h := NewGoHeap("go")
	b, err := h.Allocate(4, 16)
	require.NoError(t, err)
	copy(b, "anim")

	nb, err := h.Reallocate(b, 8, 16)
	require.NoError(t, err)
	assert.Equal(t, "anim", string(nb[:4]))
	assert.Len(t, nb, 8)

	blocks, bytes := h.Outstanding()
	assert.Equal(t, int64(1), blocks)
	assert.Equal(t, int64(8), bytes)
	require.NoError(t, h.Free(nb))
}

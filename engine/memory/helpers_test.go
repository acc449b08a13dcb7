package memory

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/spaghettifunk/anima-memory/engine/core"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

var errNoMemory = errors.New("out of memory")

// failingHeap refuses every allocation.
type failingHeap struct{}

func (failingHeap) Allocate(int, int) ([]byte, error) { return nil, errNoMemory }
func (failingHeap) Free([]byte) error                 { return ErrUnknownRegion }
func (failingHeap) Reallocate([]byte, int, int) ([]byte, error) {
	return nil, errNoMemory
}
func (failingHeap) Name() string { return "failing" }

func newTestPool(t *testing.T, blockSize, numBlocks int, opts ...Option) (*FixedBlockPool, *core.AllocationMetrics) {
	t.Helper()
	metrics := core.NewAllocationMetrics(16)
	opts = append([]Option{WithSink(metrics)}, opts...)
	p, err := NewFixedBlockPool(NewGoHeap("test"), blockSize, numBlocks, opts...)
	if err != nil {
		t.Fatalf("NewFixedBlockPool: %v", err)
	}
	return p, metrics
}

func smallBudgets(blocksPerClass int) [NumSizeClasses]int {
	var b [NumSizeClasses]int
	for i := range b {
		b[i] = blocksPerClass * SizeClassStride * (i + 1)
	}
	return b
}

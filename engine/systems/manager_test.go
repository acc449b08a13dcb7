package systems

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemManager_Lifecycle(t *testing.T) {
	sm, err := NewSystemManager(smallConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, sm.JobSystem.NumWorkers())

	alloc := sm.MemorySystem.Allocator()
	for i := 0; i < 8; i++ {
		require.NoError(t, sm.JobSystem.Submit(context.Background(), Job{
			Name: "churn",
			Run: func(context.Context) error {
				b, err := alloc.Alloc(24)
				if err != nil {
					return err
				}
				return alloc.FreeSized(b, 24)
			},
		}))
	}
	require.NoError(t, sm.Shutdown())
}

package testbed

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/anima-memory/engine"
	"github.com/spaghettifunk/anima-memory/engine/config"
	"github.com/spaghettifunk/anima-memory/engine/core"
	"github.com/spaghettifunk/anima-memory/engine/memory"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func runTestbed(t *testing.T, cfg *config.Config, d time.Duration) (*TestGame, error) {
	t.Helper()
	tg, err := NewTestGame(&engine.ApplicationConfig{
		Name:     "testbed",
		LogLevel: core.ErrorLevel,
		Config:   cfg,
	})
	require.NoError(t, err)
	tg.SetSeed(42)

	e, err := engine.New(tg.Game)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, e.Run(ctx))
	return tg, e.Shutdown()
}

func TestTestGame_ChurnsWithoutLeaks(t *testing.T) {
	cfg := config.Default()
	cfg.Testbed.Workers = 3
	cfg.Testbed.MaxLive = 32
	cfg.Testbed.ReportInterval = config.Duration{Duration: 10 * time.Millisecond}

	tg, err := runTestbed(t, cfg, 100*time.Millisecond)
	require.NoError(t, err)

	s := tg.Stats()
	assert.Positive(t, s.Allocs)
	assert.Equal(t, s.Allocs, s.Frees)
	assert.Zero(t, s.Failures)
}

func TestTestGame_FallbackKeepsRunning(t *testing.T) {
	cfg := config.Default()
	for i := range cfg.Allocator.Budgets {
		cfg.Allocator.Budgets[i] = 32 * (i + 1)
	}
	cfg.Allocator.Exhaustion = memory.ExhaustionFallback.String()
	cfg.Testbed.Workers = 2
	cfg.Testbed.MaxLive = 16

	tg, err := runTestbed(t, cfg, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, tg.Stats().Failures)
}

func TestRandomSize_Range(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	var pooled, large int
	for i := 0; i < 10000; i++ {
		s := randomSize(r)
		require.GreaterOrEqual(t, s, 0)
		require.Less(t, s, largeSizeMax)
		if s <= memory.MaxPooledSize {
			pooled++
		} else {
			large++
		}
	}
	assert.Greater(t, pooled, large)
	assert.Positive(t, large)
}

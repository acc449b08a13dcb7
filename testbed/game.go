package testbed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/anima-memory/engine"
	"github.com/spaghettifunk/anima-memory/engine/config"
	"github.com/spaghettifunk/anima-memory/engine/core"
	"github.com/spaghettifunk/anima-memory/engine/ids"
	"github.com/spaghettifunk/anima-memory/engine/memory"
	"github.com/spaghettifunk/anima-memory/engine/systems"
)

// largeSizeMax bounds the requests that go past the size classes.
const largeSizeMax = 4096

var ErrCorruptBlock = errors.New("testbed: block contents changed while held")

type TestGame struct {
	*engine.Game
}

type blockTag struct{}

type liveBlock struct {
	data []byte
	size int
}

type gameState struct {
	workers int
	maxLive int
	seed    uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup

	allocs   atomic.Int64
	frees    atomic.Int64
	failures atomic.Int64
	lastOps  int64
}

// Stats is a snapshot of the workload counters.
type Stats struct {
	Allocs   int64
	Frees    int64
	Failures int64
}

func NewTestGame(appConfig *engine.ApplicationConfig) (*TestGame, error) {
	if appConfig.Config == nil {
		appConfig.Config = config.Default()
	}
	tb := appConfig.Config.Testbed
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: appConfig,
			State: &gameState{
				workers: tb.Workers,
				maxLive: tb.MaxLive,
				seed:    uint64(time.Now().UnixNano()),
				cancel:  func() {},
			},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// SetSeed fixes the random sequence of every worker.
func (g *TestGame) SetSeed(seed uint64) {
	g.state().seed = seed
}

func (g *TestGame) Stats() Stats {
	st := g.state()
	return Stats{
		Allocs:   st.allocs.Load(),
		Frees:    st.frees.Load(),
		Failures: st.failures.Load(),
	}
}

func (g *TestGame) Boot() error {
	st := g.state()
	core.LogInfo("booting testbed: %d workers, up to %d live blocks each", st.workers, st.maxLive)
	return nil
}

// Initialize starts one churn job per worker. The jobs run until ctx is done
// or Shutdown is called.
func (g *TestGame) Initialize(ctx context.Context) error {
	st := g.state()
	ctx, st.cancel = context.WithCancel(ctx)

	for i := 0; i < st.workers; i++ {
		worker := i
		st.wg.Add(1)
		err := g.SystemManager.JobSystem.Submit(ctx, systems.Job{
			Name: fmt.Sprintf("churn-%d", worker),
			Run: func(ctx context.Context) error {
				return g.churn(ctx, worker)
			},
			OnComplete: st.wg.Done,
			OnFailure:  func(error) { st.wg.Done() },
		})
		if err != nil {
			st.wg.Done()
			return err
		}
	}
	return nil
}

func (g *TestGame) Update(_ context.Context, deltaTime time.Duration) error {
	st := g.state()
	ops := st.allocs.Load() + st.frees.Load()
	core.LogInfo("testbed: %d ops (+%d in %s), %d failures", ops, ops-st.lastOps, deltaTime.Round(time.Millisecond), st.failures.Load())
	st.lastOps = ops
	return nil
}

func (g *TestGame) Shutdown() error {
	st := g.state()
	st.cancel()
	st.wg.Wait()

	s := g.Stats()
	core.LogInfo("testbed finished: %d allocs, %d frees, %d failures", s.Allocs, s.Frees, s.Failures)
	if s.Failures > 0 {
		return fmt.Errorf("testbed: %d failed operations", s.Failures)
	}
	return nil
}

// churn allocates and frees random sizes, tagging every live block with a
// generational handle. Each block is filled with a worker pattern and
// checked before it is released.
func (g *TestGame) churn(ctx context.Context, worker int) error {
	st := g.state()
	alloc := g.SystemManager.MemorySystem.Allocator()
	r := rand.New(rand.NewSource(st.seed + uint64(worker)))
	pattern := byte(worker + 1)

	handles := ids.NewHandlePool[blockTag](uint32(st.maxLive), uint32(st.maxLive))
	live := make(map[ids.ID24x8[blockTag]]liveBlock, st.maxLive)
	order := make([]ids.ID24x8[blockTag], 0, st.maxLive)

	release := func(i int) error {
		h := order[i]
		order[i] = order[len(order)-1]
		order = order[:len(order)-1]
		lb := live[h]
		delete(live, h)
		if err := handles.Release(h); err != nil {
			return err
		}

		for _, b := range lb.data {
			if b != pattern {
				st.failures.Add(1)
				core.LogError("worker %d: %v %s", worker, h, ErrCorruptBlock)
				break
			}
		}
		var err error
		if r.Intn(2) == 0 {
			err = alloc.FreeSized(lb.data, lb.size)
		} else {
			err = alloc.Free(lb.data)
		}
		if err != nil {
			return err
		}
		st.frees.Add(1)
		return nil
	}
	defer func() {
		for len(order) > 0 {
			if err := release(len(order) - 1); err != nil {
				st.failures.Add(1)
				core.LogError("worker %d: %s", worker, err)
			}
		}
	}()

	for ctx.Err() == nil {
		if len(order) == st.maxLive || (len(order) > 0 && r.Intn(2) == 0) {
			if err := release(r.Intn(len(order))); err != nil {
				st.failures.Add(1)
				return err
			}
			continue
		}

		size := randomSize(r)
		data, err := alloc.Alloc(size)
		if err != nil {
			st.failures.Add(1)
			if errors.Is(err, memory.ErrPoolExhausted) {
				core.LogError("worker %d: raise the allocator budgets or use the fallback policy", worker)
			}
			return err
		}
		for i := range data {
			data[i] = pattern
		}
		h, err := handles.Acquire()
		if err != nil {
			st.failures.Add(1)
			return errors.Join(err, alloc.FreeSized(data, size))
		}
		live[h] = liveBlock{data: data, size: size}
		order = append(order, h)
		st.allocs.Add(1)
	}
	return ctx.Err()
}

// randomSize favours the size classes, with one request in five going to
// the backing heap.
func randomSize(r *rand.Rand) int {
	if r.Intn(5) == 0 {
		return memory.MaxPooledSize + 1 + r.Intn(largeSizeMax-memory.MaxPooledSize)
	}
	return r.Intn(memory.MaxPooledSize + 1)
}

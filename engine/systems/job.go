package systems

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-memory/engine/core"
)

// Job is a unit of work run by the JobSystem.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
	// OnComplete runs after Run returned nil.
	OnComplete func()
	// OnFailure runs after Run returned an error.
	OnFailure func(err error)
}

type queuedJob struct {
	ctx context.Context
	job Job
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan queuedJob
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan queuedJob, channelSize),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for qj := range js.jobQueue {
				js.run(qj)
			}
		}()
	}
}

func (js *JobSystem) run(qj queuedJob) {
	err := qj.ctx.Err()
	if err == nil {
		err = qj.job.Run(qj.ctx)
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			core.LogError("job %s failed: %s", qj.job.Name, err)
		}
		if qj.job.OnFailure != nil {
			qj.job.OnFailure(err)
		}
		return
	}
	if qj.job.OnComplete != nil {
		qj.job.OnComplete()
	}
}

// Submit queues job for execution, blocking while the queue is full. The job
// runs with ctx; a job whose ctx is already done when a worker picks it up
// fails without running.
func (js *JobSystem) Submit(ctx context.Context, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no Run function", job.Name)
	}
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	select {
	case js.jobQueue <- queuedJob{ctx: ctx, job: job}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (js *JobSystem) NumWorkers() int {
	return js.numWorkers
}

// Shutdown stops accepting jobs and waits for the queued ones to finish.
func (js *JobSystem) Shutdown() error {
	js.mu.Lock()
	if js.closed {
		js.mu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mu.Unlock()

	js.wg.Wait()
	return nil
}

// Package pool provides the bounded worker pool that executes task work
// items. Pool size is fixed at construction; queued jobs can be cancelled
// best-effort until a worker picks them up.
package pool

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 256

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrQueueFull  = errors.New("worker pool queue is full")
)

const (
	jobQueued int32 = iota
	jobRunning
	jobCancelled
	jobDone
)

// Job is the handle returned by Submit. Cancel succeeds only while the job
// is still queued.
type Job struct {
	fn    func()
	state atomic.Int32
}

// Cancel marks a queued job so no worker will run it. Returns false if a
// worker already picked it up.
func (j *Job) Cancel() bool {
	return j.state.CompareAndSwap(jobQueued, jobCancelled)
}

// Done reports whether the job finished executing.
func (j *Job) Done() bool {
	return j.state.Load() == jobDone
}

type Pool struct {
	size   int
	jobs   chan *Job
	quit   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size: size,
		jobs: make(chan *Job, defaultQueueSize),
		quit: make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *Pool) Workers() int {
	return p.size
}

// Submit enqueues fn for execution and returns its cancellation handle.
func (p *Pool) Submit(fn func()) (*Job, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	j := &Job{fn: fn}
	select {
	case p.jobs <- j:
		return j, nil
	default:
		return nil, ErrQueueFull
	}
}

// Stop shuts the pool down and waits for in-flight jobs up to the context
// deadline. Queued jobs that no worker picked up are dropped.
func (p *Pool) Stop(ctx context.Context) error {
	if p.closed.CompareAndSwap(false, true) {
		close(p.quit)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case j := <-p.jobs:
			if !j.state.CompareAndSwap(jobQueued, jobRunning) {
				continue
			}
			p.runJob(id, j)
			j.state.Store(jobDone)
		}
	}
}

func (p *Pool) runJob(id int, j *Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker %d recovered from job panic: %v", id, r)
		}
	}()
	j.fn()
}

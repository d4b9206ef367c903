// Package workerpool runs independent evaluation jobs on a fixed set
// of goroutines. The walk-forward engine uses it to evaluate windows
// in parallel; each job owns its state, so jobs never synchronize with
// each other.
package workerpool

import (
	"context"
	"fmt"
	"sync"
)

// Job is one unit of work. Execute receives the pool context so a
// cancelled run stops promptly.
type Job struct {
	ID      int
	Execute func(ctx context.Context) error
}

// Pool is a bounded worker pool.
type Pool struct {
	workers int
	jobs    chan Job
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.RWMutex
	running bool

	errMu  sync.Mutex
	errors map[int]error
}

// New creates a pool with the given parallelism. Workers below 1 are
// raised to 1.
func New(ctx context.Context, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		workers: workers,
		jobs:    make(chan Job),
		ctx:     ctx,
		cancel:  cancel,
		errors:  make(map[int]error),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("pool already running")
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.running = true
	return nil
}

// Submit queues a job, blocking until a worker is free or the pool
// shuts down.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	running := p.running
	p.mu.RUnlock()
	if !running {
		return fmt.Errorf("pool not running")
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("pool shutting down: %w", p.ctx.Err())
	}
}

// Wait closes the queue and blocks until every submitted job finished.
// It returns the errors keyed by job id.
func (p *Pool) Wait() map[int]error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return p.errorsCopy()
	}
	p.running = false
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
	p.cancel()
	return p.errorsCopy()
}

// Cancel aborts the pool without waiting for queued jobs.
func (p *Pool) Cancel() {
	p.cancel()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := job.Execute(p.ctx); err != nil {
				p.errMu.Lock()
				p.errors[job.ID] = err
				p.errMu.Unlock()
			}
		}
	}
}

func (p *Pool) errorsCopy() map[int]error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	out := make(map[int]error, len(p.errors))
	for id, err := range p.errors {
		out[id] = err
	}
	return out
}

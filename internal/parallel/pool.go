// Package parallel runs dispatch producers on a fixed set of goroutines.
//
// The compute runtime is safe for concurrent submission; this package drives
// it from many goroutines at once, for load generation in cmd/computedemo
// and in tests.
package parallel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("parallel: pool closed")

// Task is one unit of work. The context is the one passed to Run.
type Task func(ctx context.Context) error

// WorkerPool is a pool of goroutines with per-worker queues.
//
// Tasks are distributed round-robin. A worker whose own queue is empty
// steals from the others, so slow tasks do not hold up the rest.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers    int
	workQueues []chan func()

	// mu is held for reading while work is queued and for writing by
	// Close, so nothing is queued after the workers drain and exit.
	mu      sync.RWMutex
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// completed counts tasks that ran to completion, successful or not.
	completed atomic.Uint64
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.workQueues[id]

	for {
		select {
		case <-p.done:
			p.drainQueue(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drainQueue(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes one queued item from another worker, or returns nil.
func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// Run executes tasks across the workers and waits for all of them. It
// returns the errors of failed tasks joined together.
//
// Tasks not yet started when ctx is canceled are skipped and report
// ctx.Err(). Run returns ErrClosed if the pool is closed.
func (p *WorkerPool) Run(ctx context.Context, tasks []Task) error {
	p.mu.RLock()
	if !p.running.Load() {
		p.mu.RUnlock()
		return ErrClosed
	}
	if len(tasks) == 0 {
		p.mu.RUnlock()
		return nil
	}

	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))

	for i, task := range tasks {
		work := func() {
			defer wg.Done()
			defer p.completed.Add(1)
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			errs[i] = task(ctx)
		}

		p.workQueues[i%p.workers] <- work
	}
	p.mu.RUnlock()

	wg.Wait()
	return errors.Join(errs...)
}

// Go queues a single task without waiting. Its error is passed to onErr if
// onErr is non-nil. The task goes to the worker with the shortest queue.
// Go is a no-op on a closed pool.
func (p *WorkerPool) Go(ctx context.Context, task Task, onErr func(error)) {
	if task == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running.Load() {
		return
	}

	minIdx := 0
	for i := 1; i < p.workers; i++ {
		if len(p.workQueues[i]) < len(p.workQueues[minIdx]) {
			minIdx = i
		}
	}

	work := func() {
		defer p.completed.Add(1)
		if err := task(ctx); err != nil && onErr != nil {
			onErr(err)
		}
	}
	p.workQueues[minIdx] <- work
}

// Close stops accepting work, runs what is still queued and stops the
// workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if !p.running.CompareAndSwap(true, false) {
		p.mu.Unlock()
		return
	}
	close(p.done)
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// Completed returns the number of tasks that have finished.
func (p *WorkerPool) Completed() uint64 {
	return p.completed.Load()
}

// QueuedWork returns the total number of work items currently queued.
// This is an approximation as queues can change while iterating.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.workQueues {
		total += len(q)
	}
	return total
}

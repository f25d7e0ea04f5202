package worker

import (
	"context"
	"sync"
)

// Task represents a unit of work to be executed
type Task interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a task execution
type Result interface {
	GetError() error
}

// Pool manages a pool of workers that execute tasks concurrently.
// Citation verification is embarrassingly parallel, so the pool
// imposes no ordering; the cap exists to bound pressure on the
// verification backend, not the CPU.
type Pool struct {
	workers    int
	taskQueue  chan Task
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	queueOnce  sync.Once
	closeOnce  sync.Once
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		taskQueue:  make(chan Task, workers*2), // Buffered to prevent blocking
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// worker is the worker goroutine that processes tasks
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			result := task.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit submits a task to the pool for execution
func (p *Pool) Submit(task Task) {
	select {
	case <-p.ctx.Done():
		return
	case p.taskQueue <- task:
	}
}

// Finish marks the task stream complete. No Submit may follow.
func (p *Pool) Finish() {
	p.queueOnce.Do(func() {
		close(p.taskQueue)
	})
}

// Drain collects results until every submitted task has completed.
// Both channels are bounded, so a large batch must drain while it
// submits: call Drain concurrently with the submit loop and Finish
// the pool from the submitting goroutine.
func (p *Pool) Drain() []Result {
	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	var results []Result
	for result := range p.results {
		results = append(results, result)
	}

	return results
}

// Wait finishes the task stream and drains the results. Only safe
// when every task already fits in the queue and result buffers;
// batches larger than that go through Finish/Drain.
func (p *Pool) Wait() []Result {
	p.Finish()
	return p.Drain()
}

// Shutdown shuts down the worker pool immediately
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// Job represents a task to be executed by a worker.
type Job struct {
	Ctx      context.Context
	Run      func(ctx context.Context) error
	ResultCh chan error
}

// WorkerPool bounds how many ingest messages touch the engine at once. A
// session submits one job at a time and waits for it, so per-session order
// is preserved.
type WorkerPool struct {
	numWorkers int
	jobQueue   chan Job
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool creates a new worker pool.
// numWorkers: the number of worker goroutines to spawn.
// queueSize: the size of the job queue.
func NewWorkerPool(numWorkers, queueSize int, logger *slog.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		jobQueue:   make(chan Job, queueSize),
		logger:     logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
	wp.logger.Info("Worker pool started", "num_workers", wp.numWorkers)
}

// Stop closes the job queue and waits for all workers to finish their
// current jobs. It is safe to call more than once.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()
	wp.wg.Wait()
	wp.logger.Info("Worker pool stopped")
}

// Submit queues run and blocks until a worker has executed it.
func (wp *WorkerPool) Submit(ctx context.Context, run func(ctx context.Context) error) error {
	job := Job{Ctx: ctx, Run: run, ResultCh: make(chan error, 1)}

	wp.mu.RLock()
	if wp.stopped {
		wp.mu.RUnlock()
		return ErrPoolStopped
	}
	select {
	case wp.jobQueue <- job:
	case <-ctx.Done():
		wp.mu.RUnlock()
		return ctx.Err()
	}
	wp.mu.RUnlock()

	return <-job.ResultCh
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for job := range wp.jobQueue {
		if err := job.Ctx.Err(); err != nil {
			job.ResultCh <- err
			continue
		}
		job.ResultCh <- job.Run(job.Ctx)
	}
}

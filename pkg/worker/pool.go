// Package worker provides an asynchronous worker pool for loom's background
// tasks: memory extraction, foreshadow auto-resolution, summary generation,
// and project statistics refresh.
//
// The pool decouples these from the generation streaming path so that a slow
// extraction never delays chapter delivery.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Task is a unit of work for the worker pool to execute.
type Task struct {
	// Name identifies the task in logs.
	Name string

	// Run does the work. Errors are logged, never propagated; background
	// work must not fail foreground operations.
	Run func(ctx context.Context) error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered task channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes tasks asynchronously via a worker pool.
type Pool struct {
	queue  chan Task
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		queue:  make(chan Task, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a task for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the task being dropped
func (p *Pool) Enqueue(task Task) bool {
	select {
	case p.queue <- task:
		p.logger.Debug("task queued",
			zap.String("task", task.Name),
		)
		return true
	default:
		p.logger.Error("task not queued, queue full, task dropped",
			zap.String("task", task.Name),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight tasks to drain.
// Call this during graceful shutdown.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls tasks off the queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for task := range p.queue {
		p.processTask(task)
	}

	p.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

// processTask runs one task. Errors are logged but never propagated.
func (p *Pool) processTask(task Task) {
	if task.Run == nil {
		return
	}

	if err := task.Run(context.Background()); err != nil {
		p.logger.Error("background task failed",
			zap.String("task", task.Name),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("background task completed",
		zap.String("task", task.Name),
	)
}

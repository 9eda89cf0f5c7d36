// Package workerpool provides a bounded worker pool used to fan out refill
// scans across patients with controlled concurrency.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work
type Task struct {
	ID      string
	Payload interface{}
}

// Result is the outcome of a processed task
type Result struct {
	TaskID string
	Err    error
	Data   interface{}
}

// WorkerFunc processes a single task
type WorkerFunc func(ctx context.Context, task *Task) (interface{}, error)

// Config holds pool configuration
type Config struct {
	Workers   int
	QueueSize int
	// MaxRetries is how many times a failed task is retried
	MaxRetries int
	// RetryDelay is the base delay between retries, scaled per attempt
	RetryDelay time.Duration
	// ShutdownTimeout bounds how long Stop waits for in-flight tasks
	ShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for per-patient scan jobs
func DefaultConfig() Config {
	return Config{
		Workers:         8,
		QueueSize:       256,
		MaxRetries:      2,
		RetryDelay:      200 * time.Millisecond,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Pool runs tasks on a fixed set of workers
type Pool struct {
	config Config
	fn     WorkerFunc
	logger *zap.Logger

	tasks   chan *Task
	results chan *Result
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	submitted int64
	completed int64
	failed    int64
	retried   int64
}

// New creates a pool; Start must be called before submitting tasks
func New(cfg Config, fn WorkerFunc, logger *zap.Logger) (*Pool, error) {
	if fn == nil {
		return nil, fmt.Errorf("worker function is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		config:  cfg,
		fn:      fn,
		logger:  logger,
		tasks:   make(chan *Task, cfg.QueueSize),
		results: make(chan *Result, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Submit enqueues a task, failing fast when the queue is full
func (p *Pool) Submit(task *Task) error {
	select {
	case <-p.ctx.Done():
		return fmt.Errorf("pool is shutting down")
	default:
	}

	select {
	case p.tasks <- task:
		atomic.AddInt64(&p.submitted, 1)
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// Results exposes completed task outcomes
func (p *Pool) Results() <-chan *Result {
	return p.results
}

// Stop drains in-flight tasks and shuts the pool down
func (p *Pool) Stop() {
	p.cancel()
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}

	close(p.results)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(workerID int, task *Task) {
	var data interface{}
	var err error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			atomic.AddInt64(&p.retried, 1)
			select {
			case <-p.ctx.Done():
				err = p.ctx.Err()
				goto done
			case <-time.After(p.config.RetryDelay * time.Duration(attempt)):
			}
		}

		data, err = p.fn(p.ctx, task)
		if err == nil {
			goto done
		}

		p.logger.Debug("task attempt failed",
			zap.String("task_id", task.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

done:
	if err == nil {
		atomic.AddInt64(&p.completed, 1)
	} else {
		atomic.AddInt64(&p.failed, 1)
		p.logger.Error("task failed",
			zap.String("task_id", task.ID),
			zap.Int("worker_id", workerID),
			zap.Error(err))
	}

	select {
	case p.results <- &Result{TaskID: task.ID, Err: err, Data: data}:
	default:
		p.logger.Warn("result channel full, dropping result",
			zap.String("task_id", task.ID))
	}
}

// Stats reports lifetime pool counters
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Retried   int64
}

// Stats returns current counters
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: atomic.LoadInt64(&p.submitted),
		Completed: atomic.LoadInt64(&p.completed),
		Failed:    atomic.LoadInt64(&p.failed),
		Retried:   atomic.LoadInt64(&p.retried),
	}
}

// Package dispatch runs fire-and-forget side effects on a bounded worker pool.
//
// Submit never blocks: when the queue is full the task is dropped and
// counted. Each task gets its own deadline, and a panicking task is recovered
// and logged without taking down the worker.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/agni/internal/log"
)

var (
	// ErrQueueFull is returned when a task is dropped because the queue is full.
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrClosed is returned when submitting to a closed queue.
	ErrClosed = errors.New("dispatch queue closed")
)

// Task is a unit of background work.
type Task struct {
	// Name labels the task in logs and stats.
	Name string
	Run  func(ctx context.Context) error
}

// Config sizes the pool.
type Config struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the appliance pool settings.
func DefaultConfig() Config {
	return Config{
		Workers:   2,
		QueueSize: 32,
		Timeout:   30 * time.Second,
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Succeeded uint64
	Failed    uint64
	Panicked  uint64
	Pending   int
}

// Observer is told the outcome of each task. err is nil on success.
type Observer func(name string, err error)

// Queue is a bounded task queue drained by a fixed set of workers.
type Queue struct {
	cfg      Config
	tasks    chan Task
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Uint64
	dropped   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
}

// New starts the workers. Zero fields in cfg take their defaults.
func New(cfg Config, observer Observer) *Queue {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:      cfg,
		tasks:    make(chan Task, cfg.QueueSize),
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Submit enqueues a task without blocking.
func (q *Queue) Submit(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("dispatch: task %q has no Run func", task.Name)
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.tasks <- task:
		q.submitted.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		log.Warn(log.Fields{"task": task.Name}, "dispatch queue full, task dropped")
		return ErrQueueFull
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(task)
	}
}

func (q *Queue) run(task Task) {
	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.Timeout)
	defer cancel()

	err := q.safeRun(ctx, task)
	if err != nil {
		q.failed.Add(1)
		log.Warn(log.Fields{"task": task.Name, "error": err}, "background task failed")
	} else {
		q.succeeded.Add(1)
	}
	if q.observer != nil {
		q.observer(task.Name, err)
	}
}

func (q *Queue) safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.panicked.Add(1)
			log.Error(log.Fields{"task": task.Name, "panic": r, "stack": string(debug.Stack())}, "background task panicked")
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}

// Close stops accepting tasks and waits for queued ones to finish. If ctx
// expires first, running tasks are cancelled and ctx's error is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Dropped:   q.dropped.Load(),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Panicked:  q.panicked.Load(),
		Pending:   len(q.tasks),
	}
}

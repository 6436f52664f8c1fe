// Package background runs detached, best-effort side-effect tasks
// (history persistence, summary generation, visit counting).
//
// Tasks never block the request that scheduled them: the caller's context is
// detached with context.WithoutCancel so values such as trace ids survive
// while request cancellation does not abort the task. Failures and panics are
// logged and counted, never returned to the scheduler.
package background

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrExecutorClosed = errors.New("background executor is closed")
	ErrQueueFull      = errors.New("background queue is full")
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Observer receives per-task outcomes ("ok", "error", "panic", "rejected").
type Observer interface {
	ObserveBackgroundTask(name, outcome string, d time.Duration)
}

// Config configures the executor.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Workers: 8, QueueSize: 1024, TaskTimeout: time.Minute}
}

type job struct {
	name string
	ctx  context.Context
	fn   Task
}

// Executor is a fixed pool of workers draining a bounded queue.
type Executor struct {
	cfg      Config
	logger   *zap.Logger
	observer Observer

	queue  chan job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
	active    atomic.Int32
}

// Option customizes an Executor.
type Option func(*Executor)

// WithObserver attaches a task outcome observer (metrics).
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observer = o }
}

// New starts an executor with cfg.Workers workers.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Executor{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "background")),
		queue:  make(chan job, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go e.worker()
	}
	return e
}

// Submit enqueues fn without blocking. The task runs with a context detached
// from ctx's cancellation.
func (e *Executor) Submit(ctx context.Context, name string, fn Task) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.reject(name)
		return ErrExecutorClosed
	}

	select {
	case e.queue <- job{name: name, ctx: context.WithoutCancel(ctx), fn: fn}:
		e.submitted.Add(1)
		return nil
	default:
		e.reject(name)
		return ErrQueueFull
	}
}

// Go is Submit for callers that cannot act on a rejection; it is logged.
func (e *Executor) Go(ctx context.Context, name string, fn Task) {
	if err := e.Submit(ctx, name, fn); err != nil {
		e.logger.Warn("background task rejected",
			zap.String("task", name),
			zap.Error(err),
		)
	}
}

func (e *Executor) reject(name string) {
	e.rejected.Add(1)
	if e.observer != nil {
		e.observer.ObserveBackgroundTask(name, "rejected", 0)
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for j := range e.queue {
		e.run(j)
	}
}

func (e *Executor) run(j job) {
	e.active.Add(1)
	defer e.active.Add(-1)

	ctx := j.ctx
	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
	}

	start := time.Now()
	outcome := "ok"
	err := e.execute(ctx, j)
	switch {
	case err == nil:
		e.completed.Add(1)
	case errors.Is(err, errPanicked):
		outcome = "panic"
		e.panicked.Add(1)
		e.failed.Add(1)
	default:
		outcome = "error"
		e.failed.Add(1)
		e.logger.Warn("background task failed",
			zap.String("task", j.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	}
	if e.observer != nil {
		e.observer.ObserveBackgroundTask(j.name, outcome, time.Since(start))
	}
}

var errPanicked = errors.New("task panicked")

func (e *Executor) execute(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("background task panicked",
				zap.String("task", j.name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("%w: %v", errPanicked, r)
		}
	}()
	return j.fn(ctx)
}

// Close stops accepting tasks and waits for queued tasks to finish or ctx to
// expire.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.logger.Warn("background executor close timed out",
			zap.Int("queued", len(e.queue)),
			zap.Int32("active", e.active.Load()),
		)
		return ctx.Err()
	}
}

// Stats contains executor statistics.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
	Rejected  int64 `json:"rejected"`
}

// Stats returns executor statistics.
func (e *Executor) Stats() Stats {
	return Stats{
		Workers:   e.cfg.Workers,
		Active:    int(e.active.Load()),
		Queued:    len(e.queue),
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Panicked:  e.panicked.Load(),
		Rejected:  e.rejected.Load(),
	}
}

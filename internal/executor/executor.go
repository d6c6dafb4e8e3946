// Package executor runs annotation work on a fixed pool of worker
// goroutines and bounds how long a caller waits for each task.
//
// A caller that stops waiting (deadline or cancellation) is told so at
// once. The task's context is cancelled, but a task that ignores its
// context keeps its worker until it returns; size the pool with that in
// mind.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/dongwandou/CoreNLP/pkg/errors"
	"github.com/dongwandou/CoreNLP/pkg/logger"
	"github.com/dongwandou/CoreNLP/pkg/metrics"
)

var (
	ErrNotStarted = errors.New("executor not started")
	ErrStopped    = errors.New("executor stopped")
	ErrQueueFull  = errors.New("executor queue full")
)

// Config sizes the pool.
type Config struct {
	Workers   int
	QueueSize int
	Deadline  time.Duration
}

// Executor is a process-wide worker pool. Create one with New, Start it
// once, and Stop it at exit.
type Executor struct {
	cfg     Config
	queue   chan *task
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// poolDone closes when the workers' context ends, whether through
	// Stop or the context passed to Start.
	poolDone <-chan struct{}

	busy atomic.Int64
}

type task struct {
	ctx    context.Context
	run    func(context.Context) string
	queued time.Time
}

// New creates an executor. Zero values in cfg get defaults: one worker,
// a queue of 64, a five second deadline. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 5 * time.Second
	}
	return &Executor{
		cfg:     cfg,
		queue:   make(chan *task, cfg.QueueSize),
		metrics: m,
		logger:  logger.WithComponent("executor"),
	}
}

// Deadline is the longest a caller of Run waits.
func (e *Executor) Deadline() time.Duration {
	return e.cfg.Deadline
}

// Busy returns the number of workers currently running a task.
func (e *Executor) Busy() int {
	return int(e.busy.Load())
}

// Start launches the workers. They exit when ctx is cancelled or Stop is
// called.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return errors.New("executor already started")
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.poolDone = ctx.Done()
	for i := range e.cfg.Workers {
		e.wg.Add(1)
		go e.worker(ctx, i)
	}
	e.started = true
	e.logger.Info("executor started", "workers", e.cfg.Workers, "queue_size", e.cfg.QueueSize, "deadline", e.cfg.Deadline)
	return nil
}

// Stop cancels running tasks and waits up to timeout for workers to exit.
func (e *Executor) Stop(timeout time.Duration) error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info("executor stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("executor stop: workers still busy after %v", timeout)
	}
}

// Run submits fn and waits for its result, the deadline, or ctx, whichever
// comes first. Time spent queued counts toward the deadline. Errors and
// panics in fn are returned to the caller; a missed deadline returns
// ErrTimeout.
func Run[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	taskCtx, cancel := context.WithTimeout(ctx, e.cfg.Deadline)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	t := &task{
		ctx:    taskCtx,
		queued: time.Now(),
		run: func(ctx context.Context) (status string) {
			defer func() {
				if r := recover(); r != nil {
					status = "panic"
					e.logger.Error("task panicked", "panic", r, "stack", string(debug.Stack()), "request_id", logger.RequestID(ctx))
					done <- result{err: apperrors.Failf(apperrors.ErrExecution, "task panicked: %v", r)}
				}
			}()
			v, err := fn(ctx)
			done <- result{value: v, err: err}
			if err != nil {
				return "error"
			}
			return "ok"
		},
	}
	poolDone, err := e.submit(t)
	if err != nil {
		return zero, err
	}

	select {
	case r := <-done:
		// A result that lands after the deadline is not reported as success.
		if taskCtx.Err() == nil {
			return r.value, r.err
		}
	case <-taskCtx.Done():
	case <-poolDone:
		return zero, ErrStopped
	}
	if ctx.Err() != nil {
		return zero, fmt.Errorf("waiting for task: %w", ctx.Err())
	}
	e.record("timeout", 0)
	return zero, apperrors.Failf(apperrors.ErrTimeout, "task did not finish within %v", e.cfg.Deadline)
}

// submit queues t and returns the channel that closes when the workers
// go away, so the caller can stop waiting for a task nobody will run.
func (e *Executor) submit(t *task) (<-chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil, ErrNotStarted
	}
	if e.stopped {
		return nil, ErrStopped
	}
	select {
	case <-e.poolDone:
		return nil, ErrStopped
	default:
	}
	select {
	case e.queue <- t:
		e.setQueueDepth()
		return e.poolDone, nil
	default:
		e.record("rejected", 0)
		return nil, apperrors.New(apperrors.ErrUnavailable, http.StatusServiceUnavailable, ErrQueueFull.Error())
	}
}

func (e *Executor) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-e.queue:
			e.setQueueDepth()
			if t.ctx.Err() != nil {
				// The caller gave up while the task was queued.
				e.record("skipped", 0)
				continue
			}
			e.execute(ctx, id, t)
		}
	}
}

func (e *Executor) execute(poolCtx context.Context, id int, t *task) {
	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()

	e.busy.Add(1)
	if e.metrics != nil {
		e.metrics.WorkersBusy.Inc()
	}
	start := time.Now()
	status := t.run(ctx)
	e.busy.Add(-1)
	if e.metrics != nil {
		e.metrics.WorkersBusy.Dec()
	}
	if t.ctx.Err() != nil && status != "panic" {
		status = "abandoned"
		e.logger.Warn("task finished after its caller stopped waiting",
			"worker", id, "elapsed", time.Since(t.queued), "request_id", logger.RequestID(t.ctx))
	}
	e.record(status, time.Since(start))
}

func (e *Executor) record(status string, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.TasksTotal.WithLabelValues(status).Inc()
	if d > 0 {
		e.metrics.TaskDuration.WithLabelValues(status).Observe(d.Seconds())
	}
}

func (e *Executor) setQueueDepth() {
	if e.metrics != nil {
		e.metrics.QueueDepth.Set(float64(len(e.queue)))
	}
}

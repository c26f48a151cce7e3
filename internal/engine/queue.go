package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrQueueFull is returned by Submit when no slot is free.
	ErrQueueFull = errors.New("scan queue is full")

	// ErrQueueClosed is returned by Submit after Shutdown.
	ErrQueueClosed = errors.New("scan queue is shut down")
)

// RunFunc executes one job. Its error is logged; the job is not retried.
type RunFunc func(ctx context.Context, job Job) error

// Queue is a bounded job queue drained by a fixed set of workers.
//
// Channel semantics:
//   - Submit never blocks; a full buffer yields ErrQueueFull.
//   - Shutdown stops intake, lets workers drain queued jobs and waits for them.
//     If its context expires first, the worker context is canceled so running
//     jobs fail fast and record their terminal status.
//   - Shutdown of a queue that was never started runs each queued job with a
//     canceled context, so those jobs fail instead of being dropped.
type Queue struct {
	jobs    chan Job
	workers int
	run     RunFunc
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

func NewQueue(size, workers int, run RunFunc, logger *slog.Logger) (*Queue, error) {
	if run == nil {
		return nil, errors.New("queue run func is nil")
	}
	if size <= 0 {
		return nil, fmt.Errorf("queue size must be >= 1, got %d", size)
	}
	if workers <= 0 {
		return nil, fmt.Errorf("queue workers must be >= 1, got %d", workers)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		jobs:    make(chan Job, size),
		workers: workers,
		run:     run,
		logger:  logger,
	}, nil
}

// Start launches the workers. Jobs run under a context derived from ctx.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.group = &errgroup.Group{}
	for i := 0; i < q.workers; i++ {
		worker := i
		q.group.Go(func() error {
			q.work(runCtx, worker)
			return nil
		})
	}
}

func (q *Queue) work(ctx context.Context, worker int) {
	for job := range q.jobs {
		log := q.logger.With(append(job.logAttrs(), slog.Int("worker", worker))...)
		log.Debug("job started")
		if err := q.runSafely(ctx, job); err != nil {
			log.Warn("job failed", slog.Any("error", err))
			continue
		}
		log.Debug("job finished")
	}
}

func (q *Queue) runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return q.run(ctx, job)
}

func (q *Queue) Submit(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of queued, not yet started jobs.
func (q *Queue) Len() int {
	return len(q.jobs)
}

func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.jobs)
	group, cancel := q.group, q.cancel
	q.mu.Unlock()

	if group == nil {
		q.failQueued(ctx)
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

// failQueued hands every queued job to run with a canceled context.
func (q *Queue) failQueued(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cancel()
	for job := range q.jobs {
		log := q.logger.With(job.logAttrs()...)
		log.Warn("queue shut down before job started")
		if err := q.runSafely(ctx, job); err != nil {
			log.Debug("job failed", slog.Any("error", err))
		}
	}
}

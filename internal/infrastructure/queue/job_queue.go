package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/infrastructure/metrics"
	"archie-core-shopify-app/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultWorkers    = 4
	DefaultBufferSize = 256
	DefaultJobTimeout = 2 * time.Minute
)

// Runner executes a job with its registered handler
type Runner interface {
	Run(ctx context.Context, job domain.Job) error
}

// Options tunes the queue
type Options struct {
	Workers    int
	BufferSize int
	JobTimeout time.Duration
}

// JobQueue is an in-process buffered job queue drained by a fixed worker pool
type JobQueue struct {
	mu      sync.RWMutex
	jobs    chan domain.Job
	closed  bool
	runner  Runner
	options Options
	wg      sync.WaitGroup
	logger  zerolog.Logger

	processed int64
	failed    int64
	statsMu   sync.Mutex
}

var _ ports.JobDispatcher = (*JobQueue)(nil)

// NewJobQueue creates a new job queue. Call Start to launch the workers.
func NewJobQueue(runner Runner, options Options, logger zerolog.Logger) *JobQueue {
	if options.Workers <= 0 {
		options.Workers = DefaultWorkers
	}
	if options.BufferSize <= 0 {
		options.BufferSize = DefaultBufferSize
	}
	if options.JobTimeout <= 0 {
		options.JobTimeout = DefaultJobTimeout
	}
	return &JobQueue{
		jobs:    make(chan domain.Job, options.BufferSize),
		runner:  runner,
		options: options,
		logger:  logger,
	}
}

// Start launches the workers. Jobs run under ctx.
func (q *JobQueue) Start(ctx context.Context) {
	for i := 0; i < q.options.Workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, i)
	}
	q.logger.Info().Int("workers", q.options.Workers).Msg("Job queue started")
}

// Dispatch enqueues a job without blocking. Returns ErrQueueFull when the buffer is full.
func (q *JobQueue) Dispatch(ctx context.Context, job domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return domain.ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.logger.Debug().
			Str("job", job.ID).
			Str("kind", string(job.Kind)).
			Str("shop", job.Shop.String()).
			Msg("Job enqueued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		q.logger.Warn().Str("kind", string(job.Kind)).Msg("Job queue full, dropping job")
		return domain.ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or ctx to end
func (q *JobQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info().Msg("Job queue drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job queue shutdown: %w", ctx.Err())
	}
}

// GetStats returns queue statistics
func (q *JobQueue) GetStats() map[string]interface{} {
	q.statsMu.Lock()
	defer q.statsMu.Unlock()
	return map[string]interface{}{
		"queued":    len(q.jobs),
		"processed": q.processed,
		"failed":    q.failed,
		"workers":   q.options.Workers,
	}
}

func (q *JobQueue) work(ctx context.Context, worker int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.run(ctx, worker, job)
	}
}

func (q *JobQueue) run(ctx context.Context, worker int, job domain.Job) {
	ctx, cancel := context.WithTimeout(ctx, q.options.JobTimeout)
	defer cancel()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		err = q.runner.Run(ctx, job)
	}()

	metrics.RecordJobRun(string(job.Kind), err)

	q.statsMu.Lock()
	q.processed++
	if err != nil {
		q.failed++
	}
	q.statsMu.Unlock()

	if err != nil {
		q.logger.Error().
			Err(err).
			Int("worker", worker).
			Str("job", job.ID).
			Str("kind", string(job.Kind)).
			Str("shop", job.Shop.String()).
			Msg("Job failed")
		return
	}
	q.logger.Debug().Str("job", job.ID).Str("kind", string(job.Kind)).Msg("Job completed")
}

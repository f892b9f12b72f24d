package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HandlerFunc executes one job.
type HandlerFunc func(ctx context.Context, job *Job) error

// Runner consumes the queue with a fixed number of concurrent workers.
type Runner struct {
	queue        Queue
	handlers     map[string]HandlerFunc
	logger       zerolog.Logger
	pollInterval time.Duration
	concurrency  int
}

// NewRunner builds a Runner. pollInterval is how long an idle worker waits
// before checking the queue again.
func NewRunner(queue Queue, logger zerolog.Logger, pollInterval time.Duration, concurrency int) *Runner {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{
		queue:        queue,
		handlers:     make(map[string]HandlerFunc),
		logger:       logger,
		pollInterval: pollInterval,
		concurrency:  concurrency,
	}
}

// Register binds a handler to a job type.
func (r *Runner) Register(jobType string, fn HandlerFunc) {
	r.handlers[jobType] = fn
}

// Run blocks consuming jobs until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.concurrency; i++ {
		worker := i
		g.Go(func() error {
			return r.consume(ctx, worker)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) consume(ctx context.Context, worker int) error {
	// Transient queue errors (connection drops, failovers) back off
	// exponentially instead of hot-looping.
	connBackoff := backoff.NewExponentialBackOff()
	connBackoff.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		job, err := r.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrNoJobs) {
				connBackoff.Reset()
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(r.pollInterval):
				}
				continue
			}
			wait := connBackoff.NextBackOff()
			r.logger.Error().Err(err).Int("worker", worker).Dur("backoff", wait).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		connBackoff.Reset()

		r.execute(ctx, worker, job)
	}
}

func (r *Runner) execute(ctx context.Context, worker int, job *Job) {
	log := r.logger.With().
		Int("worker", worker).
		Str("job_id", job.ID.String()).
		Str("job_type", job.Type).
		Int("attempt", job.Attempts).
		Logger()

	handler, ok := r.handlers[job.Type]
	if !ok {
		log.Error().Msg("no handler registered for job type")
		_ = r.queue.Fail(ctx, job.ID, fmt.Sprintf("no handler for type %q", job.Type), nil)
		return
	}

	start := time.Now()
	if err := handler(ctx, job); err != nil {
		if job.Attempts < job.MaxAttempts {
			retryAt := time.Now().Add(RetryDelay(job.Attempts))
			log.Warn().Err(err).Time("retry_at", retryAt).Msg("job failed, retrying")
			_ = r.queue.Fail(ctx, job.ID, err.Error(), &retryAt)
			return
		}
		log.Error().Err(err).Msg("job failed permanently")
		_ = r.queue.Fail(ctx, job.ID, err.Error(), nil)
		return
	}

	log.Info().Dur("duration", time.Since(start)).Msg("job completed")
	_ = r.queue.Complete(ctx, job.ID)
}

// RetryDelay returns the wait before re-running a job that has already made
// the given number of attempts.
func RetryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0
	b.MaxInterval = time.Minute

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

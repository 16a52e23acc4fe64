package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
)

// HandlerFunc executes one job. A returned error wrapped with apperr.Fatal
// is terminal; any other error triggers re-delivery per the retry policy.
type HandlerFunc func(ctx context.Context, args []byte) error

// Handler pairs a job's execution function with an optional terminal-failure
// hook, invoked once when the job will never run again so the owning entity
// can be marked FAILED.
type Handler struct {
	Run               HandlerFunc
	OnTerminalFailure func(ctx context.Context, args []byte, cause error)
}

// Runner polls the queue and dispatches claimed jobs to registered handlers.
type Runner struct {
	queue        *Queue
	handlers     map[string]Handler
	policy       RetryPolicy
	workers      int
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewRunner creates a Runner with the given concurrency and retry policy.
func NewRunner(q *Queue, policy RetryPolicy, workers int, pollInterval time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		queue:        q,
		handlers:     make(map[string]Handler),
		policy:       policy,
		workers:      workers,
		pollInterval: pollInterval,
		logger:       logger.With("component", "queue_runner"),
	}
}

// Register binds a handler to a job name. Must be called before Run.
func (r *Runner) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Run starts the worker goroutines and blocks until ctx is canceled. Jobs
// already claimed when cancellation arrives finish their current attempt.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Queue runner starting", "workers", r.workers, "poll_interval", r.pollInterval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			return r.workerLoop(ctx)
		})
	}
	err := g.Wait()
	r.logger.Info("Queue runner stopped")
	return err
}

func (r *Runner) workerLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		job, err := r.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.logger.ErrorContext(ctx, "Failed to claim job", "error", err)
		}
		if job != nil {
			r.dispatch(ctx, job)
			// Drain the backlog before going back to sleep.
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, job *Job) {
	logger := r.logger.With("job_id", job.ID, "name", job.Name, "attempt", job.Attempts)

	handler, ok := r.handlers[job.Name]
	if !ok {
		logger.Error("No handler registered for job, marking failed")
		if err := r.queue.MarkFailed(ctx, job.ID, fmt.Sprintf("no handler registered for %q", job.Name)); err != nil {
			logger.Error("Failed to mark unhandled job failed", "error", err)
		}
		return
	}

	runErr := r.runHandler(ctx, handler, job)
	if runErr == nil {
		if err := r.queue.MarkDone(ctx, job.ID); err != nil {
			logger.ErrorContext(ctx, "Failed to mark job done", "error", err)
		}
		logger.InfoContext(ctx, "Job completed")
		return
	}

	terminal := apperr.IsFatal(runErr) || job.Attempts >= r.policy.MaxAttempts
	if !terminal {
		runAt := time.Now().UTC().Add(r.policy.NextDelay(job.Attempts))
		logger.WarnContext(ctx, "Job failed, rescheduling", "error", runErr, "next_run_at", runAt)
		if err := r.queue.Reschedule(ctx, job.ID, runAt, runErr.Error()); err != nil {
			logger.ErrorContext(ctx, "Failed to reschedule job", "error", err)
		}
		return
	}

	logger.ErrorContext(ctx, "Job failed terminally", "error", runErr, "fatal", apperr.IsFatal(runErr))
	if err := r.queue.MarkFailed(ctx, job.ID, runErr.Error()); err != nil {
		logger.ErrorContext(ctx, "Failed to mark job failed", "error", err)
	}
	if handler.OnTerminalFailure != nil {
		handler.OnTerminalFailure(ctx, []byte(job.Args), runErr)
	}
}

func (r *Runner) runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job handler panicked: %v", rec)
		}
	}()
	return handler.Run(ctx, []byte(job.Args))
}

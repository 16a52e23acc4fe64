// Package scheduler runs periodic maintenance tasks on gocron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/fsyrachel/FurtureSelf-V1/internal/logging"
)

// TaskFunc is one periodic maintenance task.
type TaskFunc func(ctx context.Context) error

// Scheduler wraps gocron with logging around each task run.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// New creates a stopped scheduler; register tasks, then call Start.
func New(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logging.NewGocronLogger(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler: s,
		logger:    logger.With("component", "scheduler"),
	}, nil
}

// AddDurationTask schedules a task at a fixed interval.
func (s *Scheduler) AddDurationTask(name string, every time.Duration, task TaskFunc) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(s.wrap(name, task)),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule task %q: %w", name, err)
	}
	s.logger.Info("Scheduled task", "task_name", name, "every", every)
	return nil
}

// AddCronTask schedules a task with a cron expression.
func (s *Scheduler) AddCronTask(name, cronExpr string, task TaskFunc) error {
	_, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(s.wrap(name, task)),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule task %q: %w", name, err)
	}
	s.logger.Info("Scheduled task", "task_name", name, "cron", cronExpr)
	return nil
}

func (s *Scheduler) wrap(name string, task TaskFunc) func() {
	return func() {
		ctx := context.Background()
		s.logger.Debug("Running scheduled task", "task_name", name)
		start := time.Now()
		if err := task(ctx); err != nil {
			s.logger.Error("Scheduled task failed", "task_name", name, "error", err)
			return
		}
		s.logger.Debug("Finished scheduled task", "task_name", name, "duration", time.Since(start))
	}
}

// Start begins executing scheduled tasks.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.logger.Info("Scheduler started")
}

// Stop shuts the scheduler down, waiting for running tasks to finish.
func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	s.logger.Info("Scheduler stopped")
	return nil
}

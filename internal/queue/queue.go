// Package queue implements a durable SQLite-backed job queue with
// at-least-once delivery, lease-based claims, and exponential backoff.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Job statuses.
const (
	StatusPending = "PENDING"
	StatusRunning = "RUNNING"
	StatusDone    = "DONE"
	StatusFailed  = "FAILED"
)

// Job is one row of the jobs table. Args holds the JSON-encoded payload.
type Job struct {
	ID        uuid.UUID    `db:"id"`
	Name      string       `db:"name"`
	Args      string       `db:"args"`
	Status    string       `db:"status"`
	Attempts  int          `db:"attempts"`
	RunAt     time.Time    `db:"run_at"`
	LeasedAt  sql.NullTime `db:"leased_at"`
	LastError string       `db:"last_error"`
	CreatedAt time.Time    `db:"created_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

// RetryPolicy controls re-delivery of failed jobs. A job is attempted at
// most MaxAttempts times; attempt n (1-based) that fails retryably is
// rescheduled after BaseDelay * 2^(n-1).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// NextDelay returns the backoff delay after the given 1-based attempt.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// Queue provides durable job persistence. Enqueue participates in the
// caller's transaction so job and entity state commit atomically; claim and
// completion operations run on the pool.
type Queue struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a Queue on the given database.
func New(db *sqlx.DB, logger *slog.Logger) *Queue {
	return &Queue{
		db:     db,
		logger: logger.With("component", "queue"),
	}
}

// Enqueue inserts a PENDING job, due immediately. It writes through the
// provided ExtContext, which may be an open transaction.
func (q *Queue) Enqueue(ctx context.Context, ext sqlx.ExtContext, name string, args any) (uuid.UUID, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal args for job %q: %w", name, err)
	}

	job := &Job{
		ID:        uuid.New(),
		Name:      name,
		Args:      string(payload),
		Status:    StatusPending,
		RunAt:     time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	query := `INSERT INTO jobs (id, name, args, status, attempts, run_at, last_error, created_at, updated_at)
	          VALUES (:id, :name, :args, :status, :attempts, :run_at, :last_error, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue job %q: %w", name, err)
	}

	q.logger.DebugContext(ctx, "Job enqueued", "job_id", job.ID, "name", name)
	return job.ID, nil
}

// Claim atomically leases the oldest due PENDING job, marking it RUNNING
// and incrementing its attempt counter. Returns nil, nil when no job is due.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := time.Now().UTC()
	var job Job
	err := q.db.GetContext(ctx, &job, `
		UPDATE jobs
		SET status = ?, leased_at = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = ? AND run_at <= ?
			ORDER BY run_at ASC, created_at ASC
			LIMIT 1
		)
		RETURNING *`,
		StatusRunning, now, now, StatusPending, now)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return &job, nil
}

// MarkDone records successful completion.
func (q *Queue) MarkDone(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE jobs SET status = ?, leased_at = NULL, updated_at = ? WHERE id = ?`
	if _, err := q.db.ExecContext(ctx, query, StatusDone, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to mark job %s done: %w", id, err)
	}
	return nil
}

// Reschedule returns a job to PENDING for a later attempt.
func (q *Queue) Reschedule(ctx context.Context, id uuid.UUID, runAt time.Time, cause string) error {
	query := `UPDATE jobs SET status = ?, leased_at = NULL, run_at = ?, last_error = ?, updated_at = ? WHERE id = ?`
	if _, err := q.db.ExecContext(ctx, query, StatusPending, runAt, cause, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", id, err)
	}
	return nil
}

// MarkFailed records terminal failure.
func (q *Queue) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	query := `UPDATE jobs SET status = ?, leased_at = NULL, last_error = ?, updated_at = ? WHERE id = ?`
	if _, err := q.db.ExecContext(ctx, query, StatusFailed, cause, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", id, err)
	}
	return nil
}

// ReapStale returns RUNNING jobs whose lease expired back to PENDING so
// another worker can pick them up. A crashed worker's jobs re-deliver this
// way (at-least-once).
func (q *Queue) ReapStale(ctx context.Context, leaseTimeout time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-leaseTimeout)
	res, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, leased_at = NULL, updated_at = ? WHERE status = ? AND leased_at < ?`,
		StatusPending, time.Now().UTC(), StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale jobs: %w", err)
	}
	reaped, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reaped row count: %w", err)
	}
	if reaped > 0 {
		q.logger.WarnContext(ctx, "Requeued stale jobs", "count", reaped, "lease_timeout", leaseTimeout)
	}
	return reaped, nil
}

// GetJob retrieves one job by ID. Returns nil, nil if not found.
func (q *Queue) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	err := q.db.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

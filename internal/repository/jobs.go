package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// EnqueueJobParams holds the fields for enqueuing a background job.
type EnqueueJobParams struct {
	JobType     string
	Payload     []byte
	Priority    int32
	MaxAttempts int32
	ScheduledAt time.Time
}

const enqueueJob = `
INSERT INTO jobs (job_type, payload, priority, max_attempts, scheduled_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, job_type, payload, status, priority, attempts, max_attempts,
          error_message, scheduled_at, started_at, completed_at, created_at, updated_at
`

// EnqueueJob inserts a pending job and returns the stored row.
func (q *Queries) EnqueueJob(ctx context.Context, params EnqueueJobParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, enqueueJob,
		params.JobType, params.Payload, params.Priority, params.MaxAttempts, params.ScheduledAt,
	)
	return scanJob(row)
}

// DequeueJob claims the next due pending job. FOR UPDATE SKIP LOCKED lets
// concurrent workers dequeue without blocking each other. Returns
// sql.ErrNoRows when the queue is empty. Must run inside a transaction.
const dequeueJob = `
SELECT id, job_type, payload, status, priority, attempts, max_attempts,
       error_message, scheduled_at, started_at, completed_at, created_at, updated_at
FROM jobs
WHERE status = 'pending' AND scheduled_at <= now()
ORDER BY priority DESC, scheduled_at ASC
LIMIT 1
FOR UPDATE SKIP LOCKED
`

func (q *Queries) DequeueJob(ctx context.Context) (Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, dequeueJob))
}

const updateJobStarted = `
UPDATE jobs
SET status = 'running', started_at = now(), attempts = attempts + 1, updated_at = now()
WHERE id = $1
`

// UpdateJobStarted marks a dequeued job as running and counts the attempt.
func (q *Queries) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobStarted, id)
	return err
}

const updateJobCompleted = `
UPDATE jobs
SET status = 'completed', completed_at = now(), updated_at = now()
WHERE id = $1
`

// UpdateJobCompleted marks a job as successfully completed.
func (q *Queries) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobCompleted, id)
	return err
}

// UpdateJobFailedParams carries the failure details for a job.
type UpdateJobFailedParams struct {
	ID           uuid.UUID
	ErrorMessage sql.NullString
}

// updateJobFailed reschedules the job with exponential backoff while
// attempts remain, otherwise marks it failed for good.
const updateJobFailed = `
UPDATE jobs
SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
    scheduled_at = CASE WHEN attempts >= max_attempts THEN scheduled_at
                        ELSE now() + (interval '30 seconds' * power(2, attempts - 1)) END,
    error_message = $2,
    updated_at = now()
WHERE id = $1
`

// UpdateJobFailed records a job failure, rescheduling it when retry budget
// remains.
func (q *Queries) UpdateJobFailed(ctx context.Context, params UpdateJobFailedParams) error {
	_, err := q.db.ExecContext(ctx, updateJobFailed, params.ID, params.ErrorMessage)
	return err
}

// recoverStaleJobs resets running jobs older than the threshold back to
// pending. Handles workers that crashed mid-job.
const recoverStaleJobs = `
UPDATE jobs
SET status = 'pending', started_at = NULL, updated_at = now()
WHERE status = 'running' AND started_at < now() - ($1 * interval '1 second')
`

// RecoverStaleJobs returns the number of jobs recovered.
func (q *Queries) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	result, err := q.db.ExecContext(ctx, recoverStaleJobs, thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanJob(row scanner) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.JobType, &j.Payload, &j.Status, &j.Priority, &j.Attempts, &j.MaxAttempts,
		&j.ErrorMessage, &j.ScheduledAt, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}

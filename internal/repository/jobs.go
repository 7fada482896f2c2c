package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Job statuses as stored in the jobs table.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is one background job row.
type Job struct {
	ID          uuid.UUID
	JobType     string
	Payload     []byte
	Status      string
	Priority    int32
	Attempts    int32
	MaxAttempts int32
	LastError   sql.NullString
	ScheduledAt time.Time
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const jobColumns = `id, job_type, payload, status, priority, attempts, max_attempts,
	last_error, scheduled_at, started_at, completed_at, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.JobType, &j.Payload, &j.Status, &j.Priority,
		&j.Attempts, &j.MaxAttempts, &j.LastError, &j.ScheduledAt,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	return j, err
}

// EnqueueJobParams holds the fields for a new job.
type EnqueueJobParams struct {
	JobType     string
	Payload     []byte
	Priority    int32
	MaxAttempts int32
	ScheduledAt time.Time
}

// EnqueueJob inserts a pending job.
func (q *Queries) EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO jobs (id, job_type, payload, status, priority, max_attempts, scheduled_at)
		VALUES (gen_random_uuid(), $1, $2, 'pending', $3, $4, $5)
		RETURNING `+jobColumns,
		arg.JobType, arg.Payload, arg.Priority, arg.MaxAttempts, arg.ScheduledAt)
	return scanJob(row)
}

// ClaimNextJob atomically claims the highest-priority due job. SKIP LOCKED
// lets concurrent workers claim different rows without blocking each other.
// Returns sql.ErrNoRows when no job is due.
func (q *Queries) ClaimNextJob(ctx context.Context) (Job, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET status = 'running',
			attempts = attempts + 1,
			started_at = now(),
			updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND scheduled_at <= now()
			ORDER BY priority DESC, scheduled_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns)
	return scanJob(row)
}

// CompleteJob marks a job as successfully finished.
func (q *Queries) CompleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed', completed_at = now(), updated_at = now()
		WHERE id = $1`, id)
	return err
}

// RetryJob reschedules a failed attempt for a later run.
func (q *Queries) RetryJob(ctx context.Context, id uuid.UUID, lastError string, runAt time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', last_error = $2, scheduled_at = $3, updated_at = now()
		WHERE id = $1`, id, lastError, runAt)
	return err
}

// FailJob marks a job as permanently failed.
func (q *Queries) FailJob(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'failed', last_error = $2, completed_at = now(), updated_at = now()
		WHERE id = $1`, id, lastError)
	return err
}

// RecoverStaleJobs returns running jobs older than the threshold to the
// pending state. Stale running jobs are the residue of crashed workers.
func (q *Queries) RecoverStaleJobs(ctx context.Context, threshold time.Duration) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', updated_at = now()
		WHERE status = 'running' AND started_at < now() - $1::interval`,
		threshold.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

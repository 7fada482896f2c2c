package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vozfeed/vozfeed/internal/repository"
	"github.com/google/uuid"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeProcessFeedback = "process_feedback"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// ProcessFeedbackPayload is the payload for feedback processing jobs.
type ProcessFeedbackPayload struct {
	FeedbackID uuid.UUID `json:"feedback_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// Enqueuer is the subset of the repository needed to enqueue jobs.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error)
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(
	ctx context.Context,
	queries Enqueuer,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	// Default parameters
	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&params)
	}

	job, err := queries.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueProcessFeedback enqueues the transcription and analysis pipeline for
// a newly received feedback. This is called right after the audio is stored.
func EnqueueProcessFeedback(
	ctx context.Context,
	queries Enqueuer,
	feedbackID uuid.UUID,
	tenantID uuid.UUID,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := ProcessFeedbackPayload{
		FeedbackID: feedbackID,
		TenantID:   tenantID,
	}

	return EnqueueJob(ctx, queries, JobTypeProcessFeedback, payload, opts...)
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anmolmahajan9/photo20-app/internal/repository"
)

// Job type constants. These must match JobHandler.Type() values.
const (
	JobTypeGenerateThumbnails = "generate_thumbnails"
)

// Priority constants for job scheduling.
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// GenerateThumbnailsPayload is the payload for thumbnail generation jobs.
type GenerateThumbnailsPayload struct {
	GenerationID uuid.UUID `json:"generation_id"`
	UserID       string    `json:"user_id"`
}

// EnqueueOption customizes job enqueue parameters.
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

// EnqueueJob marshals the payload and inserts a pending job.
func EnqueueJob(
	ctx context.Context,
	queries *repository.Queries,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

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

// EnqueueGenerateThumbnails enqueues a thumbnail job for a generation's
// output images. Called after a generation is persisted.
func EnqueueGenerateThumbnails(
	ctx context.Context,
	queries *repository.Queries,
	generationID uuid.UUID,
	userID string,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := GenerateThumbnailsPayload{
		GenerationID: generationID,
		UserID:       userID,
	}
	return EnqueueJob(ctx, queries, JobTypeGenerateThumbnails, payload, opts...)
}

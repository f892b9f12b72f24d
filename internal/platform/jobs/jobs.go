// Package jobs provides the background task queue shared by the API server
// (producer) and the worker process (consumer). Jobs are persisted in
// Postgres so dispatches survive restarts; an in-memory queue backs tests.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Job types dispatched by the API server.
const (
	TypeClaimProcess    = "claim.process"
	TypeClaimSimulate   = "claim.simulate_outcome"
	TypeDocumentProcess = "orthopilot.process"
	TypeBenefitsExtract = "patient.extract_benefits"
)

// Job statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	ErrNoJobs       = errors.New("no jobs available")
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateKey = errors.New("a job with this key is already in flight")
)

// Job is one unit of background work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Key         string          `json:"key"` // dedup key, e.g. "claim.simulate_outcome:<claim_id>"
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   *string         `json:"last_error,omitempty"`
	RunAt       time.Time       `json:"run_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Queue is the contract between producers and the worker runner.
type Queue interface {
	// Enqueue persists a job. When the job carries a Key and a queued or
	// running job with the same key exists, Enqueue returns ErrDuplicateKey.
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue claims the oldest runnable job, marking it running. Returns
	// ErrNoJobs when nothing is runnable.
	Dequeue(ctx context.Context) (*Job, error)
	// Complete marks a running job completed.
	Complete(ctx context.Context, id uuid.UUID) error
	// Fail records a failure. When retryAt is non-nil the job is requeued to
	// run at that time; otherwise it is marked failed permanently.
	Fail(ctx context.Context, id uuid.UUID, msg string, retryAt *time.Time) error
	// ActiveForKey reports whether a queued or running job carries the key.
	ActiveForKey(ctx context.Context, key string) (bool, error)
}

// Key builds the dedup key for a job type and subject id.
func Key(jobType string, id uuid.UUID) string {
	return jobType + ":" + id.String()
}

// NewJob returns a queued job with defaults applied.
func NewJob(jobType, key string, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Key:         key,
		Payload:     raw,
		Status:      StatusQueued,
		MaxAttempts: 3,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

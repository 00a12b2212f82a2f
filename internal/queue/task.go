// Package queue implements the job queue adapter: single-flight enqueue of pipeline runs,
// delivery to exactly one worker, and retry with exponential backoff.
package queue

import (
	"errors"
	"fmt"
	"time"

	"screening-pipeline/pkg/models"
)

// TaskStatus is the lifecycle status of a pipeline task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Active reports whether a task in this status blocks a new enqueue for the same job
func (s TaskStatus) Active() bool {
	return s == TaskStatusQueued || s == TaskStatusProcessing
}

// PipelineTask is the durable record of one "run the pipeline for job X" request. The
// latest task of a job is the source of truth for whether a run is in flight.
type PipelineTask struct {
	ID             string              `json:"id"`
	JobID          string              `json:"job_id"`
	Status         TaskStatus          `json:"status"`
	Attempts       int                 `json:"attempts"`
	MaxAttempts    int                 `json:"max_attempts"`
	LastError      string              `json:"last_error,omitempty"`
	Report         *models.BatchReport `json:"report,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	NextAttemptAt  time.Time           `json:"next_attempt_at"`
	LeaseExpiresAt time.Time           `json:"lease_expires_at,omitempty"`
}

// Clone returns a copy that shares nothing mutable with t
func (t *PipelineTask) Clone() *PipelineTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.Report != nil {
		r := *t.Report
		c.Report = &r
	}
	return &c
}

// Handle returns the acknowledgement for the task
func (t *PipelineTask) Handle(existing bool) TaskHandle {
	return TaskHandle{TaskID: t.ID, JobID: t.JobID, Status: t.Status, Existing: existing}
}

// StatusResponse converts the task into its API representation
func (t *PipelineTask) StatusResponse() models.AsyncTaskStatusResponse {
	resp := models.AsyncTaskStatusResponse{
		TaskID:      t.ID,
		JobID:       t.JobID,
		Status:      string(t.Status),
		Attempts:    t.Attempts,
		MaxAttempts: t.MaxAttempts,
		LastError:   t.LastError,
		Report:      t.Report,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.Status == TaskStatusQueued && !t.NextAttemptAt.IsZero() && t.Attempts > 0 {
		next := t.NextAttemptAt
		resp.NextAttemptAt = &next
	}
	return resp
}

// TaskHandle is what a caller gets back from Enqueue
type TaskHandle struct {
	TaskID   string     `json:"task_id"`
	JobID    string     `json:"job_id"`
	Status   TaskStatus `json:"status"`
	Existing bool       `json:"existing"`
}

var (
	// ErrTaskNotFound is returned when no task exists for a job
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskNotFailed is returned when requeueing a task that has not failed
	ErrTaskNotFailed = errors.New("task is not in failed state")
	// ErrLeaseLost is returned when an attempt records an outcome or renews its lease after
	// the task was recovered or claimed again
	ErrLeaseLost = errors.New("task lease lost")
)

// PermanentError marks a handler failure that must not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that the adapter fails the task without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Backoff returns the delay before retry number attempt (1-based): base * 2^(attempt-1)
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	return base * time.Duration(1<<uint(attempt-1))
}

func taskKeyError(op, id string, err error) error {
	return fmt.Errorf("%s task %s: %w", op, id, err)
}

package queue

import (
	"context"
	"time"
)

// TaskStore persists pipeline tasks and performs the state transitions that must be atomic
// across worker processes.
type TaskStore interface {
	// Enqueue stores task unless the job already has a queued or processing task, in which
	// case that task is returned with existing set.
	Enqueue(ctx context.Context, task *PipelineTask) (stored *PipelineTask, existing bool, err error)

	// Claim moves the earliest due queued task to processing and hands it to exactly one
	// caller. It returns nil when nothing is due.
	Claim(ctx context.Context, now time.Time, lease time.Duration) (*PipelineTask, error)

	// Save writes the task record and updates the scheduling indexes for its status. Any
	// status other than processing moves the task out of a claim, so the write only happens
	// while the stored record is still processing under task.Attempts; otherwise ErrLeaseLost.
	Save(ctx context.Context, task *PipelineTask) error

	// Extend renews the lease of a processing task to now+lease, provided attempt still holds
	// it and it has not already expired. An expired lease belongs to the recovery sweep.
	Extend(ctx context.Context, taskID string, attempt int, now time.Time, lease time.Duration) error

	// Latest returns the most recent task of a job or ErrTaskNotFound
	Latest(ctx context.Context, jobID string) (*PipelineTask, error)

	// Failed returns the retained permanently failed tasks, most recent first
	Failed(ctx context.Context) ([]*PipelineTask, error)

	// Expired returns processing tasks whose lease ended before now
	Expired(ctx context.Context, now time.Time) ([]*PipelineTask, error)

	Ping(ctx context.Context) error
	Close() error
}

// holdsLease reports whether current is still being processed by the given attempt
func holdsLease(current *PipelineTask, attempt int) bool {
	return current != nil && current.Status == TaskStatusProcessing && current.Attempts == attempt
}

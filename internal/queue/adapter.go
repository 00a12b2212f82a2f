package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"screening-pipeline/internal/config"
	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
	"screening-pipeline/pkg/utils"
)

// Options tune retry and delivery behaviour
type Options struct {
	MaxAttempts  int
	BackoffBase  time.Duration
	PollTimeout  time.Duration
	LeaseTimeout time.Duration
}

// OptionsFromConfig reads the queue section of the configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxAttempts:  cfg.Queue.MaxAttempts,
		BackoffBase:  cfg.Queue.BackoffBase,
		PollTimeout:  cfg.Queue.PollTimeout,
		LeaseTimeout: cfg.Queue.LeaseTimeout,
	}
}

func (o *Options) applyDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 5 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 2 * time.Second
	}
	if o.LeaseTimeout <= 0 {
		o.LeaseTimeout = 30 * time.Minute
	}
}

// Adapter is the job queue: it enqueues pipeline runs with single-flight per job,
// delivers each run to exactly one consumer and applies the retry policy on failure.
type Adapter struct {
	store  TaskStore
	opts   Options
	events *TaskEventLogger
	logger logging.Logger
	now    func() time.Time
}

// NewAdapter creates a queue adapter over store
func NewAdapter(store TaskStore, opts Options, events *TaskEventLogger, logger logging.Logger) *Adapter {
	opts.applyDefaults()
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if events == nil {
		events = NewTaskEventLogger(logger)
	}
	return &Adapter{
		store:  store,
		opts:   opts,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source
func (a *Adapter) SetClock(now func() time.Time) {
	a.now = now
}

// Options returns the effective options
func (a *Adapter) Options() Options {
	return a.opts
}

// Enqueue requests a pipeline run for jobID. If a run for the job is already queued or
// processing, its handle is returned with Existing set and nothing new is stored.
func (a *Adapter) Enqueue(ctx context.Context, jobID string) (TaskHandle, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return TaskHandle{}, errors.New("job id is required")
	}

	now := a.now()
	task := &PipelineTask{
		ID:            utils.GenerateID(),
		JobID:         jobID,
		Status:        TaskStatusQueued,
		MaxAttempts:   a.opts.MaxAttempts,
		CreatedAt:     now,
		UpdatedAt:     now,
		NextAttemptAt: now,
	}

	stored, existing, err := a.store.Enqueue(ctx, task)
	if err != nil {
		return TaskHandle{}, err
	}

	a.events.LogTaskAccepted(stored, existing)
	return stored.Handle(existing), nil
}

// TryConsume claims the next due task without waiting. It returns nil when none is due.
func (a *Adapter) TryConsume(ctx context.Context) (*PipelineTask, error) {
	return a.store.Claim(ctx, a.now(), a.opts.LeaseTimeout)
}

// Consume blocks until a task is claimed or ctx is done
func (a *Adapter) Consume(ctx context.Context) (*PipelineTask, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task, err := a.TryConsume(ctx)
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		timer := time.NewTimer(a.opts.PollTimeout)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Extend renews the lease of a task the caller is still running. It returns ErrLeaseLost
// once the lease has expired or the task was recovered or claimed by another attempt.
func (a *Adapter) Extend(ctx context.Context, task *PipelineTask) error {
	return a.store.Extend(ctx, task.ID, task.Attempts, a.now(), a.opts.LeaseTimeout)
}

// Complete marks task completed with its batch report. It returns ErrLeaseLost when the
// attempt no longer owns the task, leaving the newer record untouched.
func (a *Adapter) Complete(ctx context.Context, task *PipelineTask, report *models.BatchReport, processingTime time.Duration) error {
	task.Status = TaskStatusCompleted
	task.Report = report
	task.LastError = ""
	task.UpdatedAt = a.now()
	task.LeaseExpiresAt = time.Time{}

	if err := a.store.Save(ctx, task); err != nil {
		return err
	}

	a.events.LogTaskSuccess(task, processingTime)
	a.logCompletion(task, processingTime)
	return nil
}

// Fail records a failed attempt. The task is rescheduled with exponential backoff unless
// the error is permanent or the attempts are exhausted, in which case it is retained as
// failed. The returned bool reports whether a retry was scheduled.
func (a *Adapter) Fail(ctx context.Context, task *PipelineTask, cause error, processingTime time.Duration) (bool, error) {
	now := a.now()
	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = a.opts.MaxAttempts
	}

	task.LastError = cause.Error()
	task.UpdatedAt = now
	task.LeaseExpiresAt = time.Time{}

	if IsPermanent(cause) || task.Attempts >= maxAttempts {
		task.Status = TaskStatusFailed
		if err := a.store.Save(ctx, task); err != nil {
			return false, err
		}
		a.events.LogTaskError(task, cause)
		a.logCompletion(task, processingTime)
		return false, nil
	}

	delay := Backoff(a.opts.BackoffBase, task.Attempts)
	task.Status = TaskStatusQueued
	task.NextAttemptAt = now.Add(delay)
	if err := a.store.Save(ctx, task); err != nil {
		return false, err
	}
	a.events.LogTaskRetry(task, cause, delay)
	return true, nil
}

// Requeue puts the failed latest task of jobID back in the queue with a fresh attempt budget
func (a *Adapter) Requeue(ctx context.Context, jobID string) (TaskHandle, error) {
	current, err := a.store.Latest(ctx, jobID)
	if err != nil {
		return TaskHandle{}, err
	}
	if current.Status != TaskStatusFailed {
		return current.Handle(current.Status.Active()), ErrTaskNotFailed
	}

	now := a.now()
	reset := current.Clone()
	reset.Status = TaskStatusQueued
	reset.Attempts = 0
	reset.MaxAttempts = a.opts.MaxAttempts
	reset.LastError = ""
	reset.Report = nil
	reset.UpdatedAt = now
	reset.NextAttemptAt = now
	reset.LeaseExpiresAt = time.Time{}

	stored, existing, err := a.store.Enqueue(ctx, reset)
	if err != nil {
		return TaskHandle{}, err
	}

	a.logger.Info("Pipeline task requeued", map[string]interface{}{
		"task_id":  stored.ID,
		"job_id":   jobID,
		"existing": existing,
	})
	return stored.Handle(existing), nil
}

// Status returns the latest task of jobID
func (a *Adapter) Status(ctx context.Context, jobID string) (*PipelineTask, error) {
	return a.store.Latest(ctx, jobID)
}

// Failed returns the retained permanently failed tasks
func (a *Adapter) Failed(ctx context.Context) ([]*PipelineTask, error) {
	return a.store.Failed(ctx)
}

// RecoverStale reschedules tasks whose worker let the lease expire, counting the lost
// delivery as a failed attempt. It returns the number of tasks recovered.
func (a *Adapter) RecoverStale(ctx context.Context) (int, error) {
	expired, err := a.store.Expired(ctx, a.now())
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, task := range expired {
		_, err := a.Fail(ctx, task, errors.New("lease expired before the task finished"), 0)
		if errors.Is(err, ErrLeaseLost) {
			// finished since the listing
			continue
		}
		if err != nil {
			a.logger.Error("Failed to recover stale task", map[string]interface{}{
				"task_id": task.ID,
				"job_id":  task.JobID,
				"error":   err,
			})
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Ping checks the backing store
func (a *Adapter) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// Close releases the backing store
func (a *Adapter) Close() error {
	return a.store.Close()
}

func (a *Adapter) logCompletion(task *PipelineTask, processingTime time.Duration) {
	if err := a.events.LogTaskCompletion(task, processingTime); err != nil {
		a.logger.Error("Failed to log task completion", map[string]interface{}{
			"task_id": task.ID,
			"error":   err,
		})
	}
}

// Open builds the task store selected by queue.backend
func Open(ctx context.Context, cfg *config.Config) (TaskStore, error) {
	switch cfg.Queue.Backend {
	case "memory":
		return NewInMemoryTaskStore(), nil
	default:
		return NewRedisTaskStore(ctx, cfg)
	}
}

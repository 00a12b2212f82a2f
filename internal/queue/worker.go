package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"screening-pipeline/internal/config"
	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
)

// Handler runs one pipeline task and returns its batch report
type Handler func(ctx context.Context, task *PipelineTask) (*models.BatchReport, error)

// WorkerOptions configure a Worker
type WorkerOptions struct {
	// Concurrency is the number of tasks processed at once by this process
	Concurrency int
	// TaskTimeout bounds a single attempt, 0 disables the bound. The lease is renewed
	// while the handler runs either way.
	TaskTimeout time.Duration
	// RecoverInterval is how often expired leases are swept, 0 uses half the lease timeout
	RecoverInterval time.Duration
}

// Worker consumes tasks from an Adapter and runs them through a Handler
type Worker struct {
	adapter *Adapter
	handler Handler
	opts    WorkerOptions
	logger  logging.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewWorker creates a worker; call Start to begin consuming
func NewWorker(adapter *Adapter, handler Handler, opts WorkerOptions, logger logging.Logger) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RecoverInterval <= 0 {
		opts.RecoverInterval = adapter.opts.LeaseTimeout / 2
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Worker{adapter: adapter, handler: handler, opts: opts, logger: logger}
}

// Start launches the consumer goroutines and the lease recovery loop
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	if n, err := w.adapter.RecoverStale(w.ctx); err != nil {
		w.logger.Warn("Initial stale task recovery failed", map[string]interface{}{"error": err})
	} else if n > 0 {
		w.logger.Info("Recovered stale tasks", map[string]interface{}{"count": n})
	}

	for i := 0; i < w.opts.Concurrency; i++ {
		w.wg.Add(1)
		go w.consume(i)
	}

	w.wg.Add(1)
	go w.recoverRoutine()

	w.logger.Info("Queue worker started", map[string]interface{}{
		"concurrency":  w.opts.Concurrency,
		"task_timeout": w.opts.TaskTimeout.String(),
	})
	return nil
}

// Stop cancels in-flight tasks and waits for the goroutines until ctx expires. Cancelled
// tasks are recorded as failed, never left processing.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Queue worker stopped gracefully", map[string]interface{}{})
		return nil
	case <-ctx.Done():
		w.logger.Warn("Queue worker shutdown timed out", map[string]interface{}{})
		return ctx.Err()
	}
}

// IsHealthy reports whether the worker is consuming
func (w *Worker) IsHealthy() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running && w.ctx.Err() == nil
}

func (w *Worker) consume(workerID int) {
	defer w.wg.Done()

	for {
		task, err := w.adapter.Consume(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			w.logger.Error("Failed to consume task", map[string]interface{}{
				"worker_id": workerID,
				"error":     err,
			})
			// back off so an unreachable store does not spin
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(w.adapter.opts.PollTimeout):
			}
			continue
		}

		w.process(workerID, task)
	}
}

// process runs a single claimed task and records its outcome
func (w *Worker) process(workerID int, task *PipelineTask) {
	start := time.Now()
	w.adapter.events.LogTaskStart(workerID, task)

	taskCtx, cancel := w.taskContext(task)
	stopRenewal := w.renewLease(taskCtx, cancel, task)
	report, err := w.runHandler(taskCtx, task)
	stopRenewal()
	cancel()
	elapsed := time.Since(start)

	// the outcome must be recorded even when the worker itself is shutting down
	recordCtx, recordCancel := context.WithTimeout(context.WithoutCancel(w.ctx), config.OutcomeRecordTimeout)
	defer recordCancel()

	if err == nil {
		cerr := w.adapter.Complete(recordCtx, task, report, elapsed)
		if errors.Is(cerr, ErrLeaseLost) {
			w.logLeaseLost(task, "completed")
		} else if cerr != nil {
			w.logger.Error("Failed to record task completion", map[string]interface{}{
				"task_id": task.ID,
				"error":   cerr,
			})
		}
		return
	}

	if errors.Is(err, context.Canceled) && w.ctx.Err() != nil {
		err = Permanent(fmt.Errorf("cancelled: %w", err))
	}

	_, ferr := w.adapter.Fail(recordCtx, task, err, elapsed)
	if errors.Is(ferr, ErrLeaseLost) {
		w.logLeaseLost(task, "failed")
	} else if ferr != nil {
		w.logger.Error("Failed to record task failure", map[string]interface{}{
			"task_id": task.ID,
			"cause":   err,
			"error":   ferr,
		})
	}
}

// renewLease extends the task's lease every third of the lease timeout until the returned
// stop func is called. Losing the lease cancels the handler: the task may already be
// running elsewhere.
func (w *Worker) renewLease(ctx context.Context, cancel context.CancelFunc, task *PipelineTask) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)

		interval := w.adapter.opts.LeaseTimeout / 3
		if interval <= 0 {
			interval = time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := w.adapter.Extend(ctx, task)
				if errors.Is(err, ErrLeaseLost) || errors.Is(err, ErrTaskNotFound) {
					w.logger.WithContext(ctx).Warn("Task lease lost, abandoning attempt", map[string]interface{}{
						"attempt": task.Attempts,
					})
					cancel()
					return
				}
				if err != nil && ctx.Err() == nil {
					w.logger.WithContext(ctx).Error("Failed to renew task lease", map[string]interface{}{"error": err})
				}
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func (w *Worker) logLeaseLost(task *PipelineTask, outcome string) {
	w.logger.Warn("Task lease lost before the outcome was recorded, discarding it", map[string]interface{}{
		"task_id": task.ID,
		"job_id":  task.JobID,
		"attempt": task.Attempts,
		"outcome": outcome,
	})
}

func (w *Worker) taskContext(task *PipelineTask) (context.Context, context.CancelFunc) {
	ctx := logging.WithTaskID(logging.WithJobID(w.ctx, task.JobID), task.ID)
	if w.opts.TaskTimeout > 0 {
		return context.WithTimeout(ctx, w.opts.TaskTimeout)
	}
	return context.WithCancel(ctx)
}

func (w *Worker) runHandler(ctx context.Context, task *PipelineTask) (report *models.BatchReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return w.handler(ctx, task)
}

func (w *Worker) recoverRoutine() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.RecoverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if n, err := w.adapter.RecoverStale(w.ctx); err != nil {
				w.logger.Error("Failed to recover stale tasks", map[string]interface{}{"error": err})
			} else if n > 0 {
				w.logger.Info("Recovered stale tasks", map[string]interface{}{"count": n})
			}
		}
	}
}

package queue

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
)

// TaskEventLogger handles structured logging of the task lifecycle
type TaskEventLogger struct {
	logger logging.Logger

	mu  sync.Mutex
	out io.Writer
}

// NewTaskEventLogger creates an event logger that writes completion records to stdout
func NewTaskEventLogger(logger logging.Logger) *TaskEventLogger {
	return NewTaskEventLoggerWithWriter(logger, os.Stdout)
}

// NewTaskEventLoggerWithWriter creates an event logger with a custom completion sink
func NewTaskEventLoggerWithWriter(logger logging.Logger, out io.Writer) *TaskEventLogger {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TaskEventLogger{logger: logger, out: out}
}

// TaskCompletionLog is the record emitted once per terminal task. Downstream
// notification sinks consume these from the log stream.
type TaskCompletionLog struct {
	TaskID         string              `json:"task_id"`
	JobID          string              `json:"job_id"`
	Status         string              `json:"status"`
	Attempts       int                 `json:"attempts"`
	Error          string              `json:"error,omitempty"`
	Report         *models.BatchReport `json:"report,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
	Operation      string              `json:"operation"`
	ProcessingTime string              `json:"processing_time"`
}

// LogTaskAccepted logs an enqueue, noting whether it coalesced into an existing task
func (l *TaskEventLogger) LogTaskAccepted(task *PipelineTask, existing bool) {
	l.logger.Info("Pipeline task accepted", map[string]interface{}{
		"task_id":  task.ID,
		"job_id":   task.JobID,
		"status":   task.Status,
		"existing": existing,
	})
}

// LogTaskStart logs when a worker begins processing a task
func (l *TaskEventLogger) LogTaskStart(workerID int, task *PipelineTask) {
	l.logger.Info("Pipeline task started", map[string]interface{}{
		"worker_id": workerID,
		"task_id":   task.ID,
		"job_id":    task.JobID,
		"attempt":   task.Attempts,
	})
}

// LogTaskRetry logs a failed attempt that will be retried after delay
func (l *TaskEventLogger) LogTaskRetry(task *PipelineTask, err error, delay time.Duration) {
	l.logger.Warn("Pipeline task attempt failed, retrying", map[string]interface{}{
		"task_id":      task.ID,
		"job_id":       task.JobID,
		"attempt":      task.Attempts,
		"max_attempts": task.MaxAttempts,
		"retry_in":     delay.String(),
		"error":        err.Error(),
	})
}

// LogTaskSuccess logs successful task completion
func (l *TaskEventLogger) LogTaskSuccess(task *PipelineTask, processingTime time.Duration) {
	fields := map[string]interface{}{
		"task_id":         task.ID,
		"job_id":          task.JobID,
		"attempt":         task.Attempts,
		"processing_time": processingTime.String(),
	}
	if task.Report != nil {
		fields["attempted"] = task.Report.Attempted
		fields["shortlisted"] = task.Report.Shortlisted
	}
	l.logger.Info("Pipeline task completed", fields)
}

// LogTaskError logs a task that failed permanently
func (l *TaskEventLogger) LogTaskError(task *PipelineTask, err error) {
	l.logger.Error("Pipeline task failed permanently", map[string]interface{}{
		"task_id":  task.ID,
		"job_id":   task.JobID,
		"attempts": task.Attempts,
		"error":    err.Error(),
	})
}

// LogTaskCompletion writes the terminal record for task as one JSON line
func (l *TaskEventLogger) LogTaskCompletion(task *PipelineTask, processingTime time.Duration) error {
	entry := TaskCompletionLog{
		TaskID:         task.ID,
		JobID:          task.JobID,
		Status:         string(task.Status),
		Attempts:       task.Attempts,
		Error:          task.LastError,
		Report:         task.Report,
		Timestamp:      time.Now().UTC(),
		Operation:      "shortlist",
		ProcessingTime: processingTime.String(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal task completion log: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write task completion log: %w", err)
	}
	return nil
}

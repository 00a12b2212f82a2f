package models

import (
	"time"
)

// BatchState is the lifecycle state of one pipeline run
type BatchState string

const (
	BatchStateLoading    BatchState = "loading"
	BatchStateExtracting BatchState = "extracting"
	BatchStateEvaluating BatchState = "evaluating"
	BatchStatePersisting BatchState = "persisting"
	BatchStateDone       BatchState = "done"
	BatchStateFailed     BatchState = "failed"
)

// BatchReport summarises one pipeline run over the applicants of a job
type BatchReport struct {
	JobID              string        `json:"job_id"`
	State              BatchState    `json:"state"`
	Attempted          int           `json:"attempted"`
	Extracted          int           `json:"extracted"`
	Evaluated          int           `json:"evaluated"`
	Shortlisted        int           `json:"shortlisted"`
	Rejected           int           `json:"rejected"`
	UnderReview        int           `json:"under_review"`
	ExtractionFailures int           `json:"extraction_failures"`
	EvaluationFailures int           `json:"evaluation_failures"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
	Duration           time.Duration `json:"duration"`
}

// AsyncTaskResponse is the immediate acknowledgement of a trigger
type AsyncTaskResponse struct {
	TaskID    string    `json:"task_id"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Existing  bool      `json:"existing"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AsyncTaskStatusResponse represents the response for task status queries
type AsyncTaskStatusResponse struct {
	TaskID        string       `json:"task_id"`
	JobID         string       `json:"job_id"`
	Status        string       `json:"status"`
	Attempts      int          `json:"attempts"`
	MaxAttempts   int          `json:"max_attempts"`
	LastError     string       `json:"last_error,omitempty"`
	Report        *BatchReport `json:"report,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	NextAttemptAt *time.Time   `json:"next_attempt_at,omitempty"`
}

// AsyncTaskListResponse represents the response for listing tasks
type AsyncTaskListResponse struct {
	Success bool                      `json:"success"`
	Tasks   []AsyncTaskStatusResponse `json:"tasks"`
	Count   int                       `json:"count"`
}

// CreateAsyncTaskResponse builds the acknowledgement returned by the trigger endpoint
func CreateAsyncTaskResponse(taskID, jobID, status string, existing bool) *AsyncTaskResponse {
	message := "Shortlisting request accepted for background processing"
	if existing {
		message = "A shortlisting run for this job is already in flight"
	}
	return &AsyncTaskResponse{
		TaskID:    taskID,
		JobID:     jobID,
		Status:    status,
		Existing:  existing,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// IsTerminal checks if the task has reached completed or failed
func (r *AsyncTaskStatusResponse) IsTerminal() bool {
	return r.Status == "completed" || r.Status == "failed"
}

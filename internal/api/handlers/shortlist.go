package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"screening-pipeline/internal/logging"
	"screening-pipeline/internal/queue"
	"screening-pipeline/pkg/models"
	"screening-pipeline/pkg/utils"
)

// TaskQueue is the part of the queue adapter the API needs
type TaskQueue interface {
	Enqueue(ctx context.Context, jobID string) (queue.TaskHandle, error)
	Status(ctx context.Context, jobID string) (*queue.PipelineTask, error)
	Failed(ctx context.Context) ([]*queue.PipelineTask, error)
	Requeue(ctx context.Context, jobID string) (queue.TaskHandle, error)
}

// ShortlistReader loads the persisted entries of a job
type ShortlistReader interface {
	ListShortlist(ctx context.Context, jobID string) ([]models.ShortlistEntry, error)
}

// ShortlistHandlers serves the trigger, status and read endpoints of the pipeline
type ShortlistHandlers struct {
	queue     TaskQueue
	store     ShortlistReader
	validator *validator.Validate
	logger    logging.Logger
}

// NewShortlistHandlers creates the handlers
func NewShortlistHandlers(q TaskQueue, store ShortlistReader, v *validator.Validate, logger logging.Logger) *ShortlistHandlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &ShortlistHandlers{queue: q, store: store, validator: v, logger: logger}
}

// Trigger handles POST /api/v1/shortlist. It acknowledges immediately with 202; a run
// already in flight for the job is returned instead of starting another.
func (h *ShortlistHandlers) Trigger(c echo.Context) error {
	requestID := requestIDFrom(c)

	var req models.ShortlistRequest
	if err := c.Bind(&req); err != nil {
		h.logger.Warn("Failed to parse shortlist request", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return writeError(c, requestID, utils.NewBadRequestError("Invalid request body"))
	}
	if err := h.validator.Struct(&req); err != nil {
		return writeError(c, requestID, utils.NewValidationError(err.Error()))
	}

	handle, err := h.queue.Enqueue(c.Request().Context(), req.JobID)
	if err != nil {
		h.logger.Error("Failed to enqueue shortlist task", map[string]interface{}{
			"request_id": requestID,
			"job_id":     req.JobID,
			"error":      err,
		})
		return writeError(c, requestID, utils.NewQueueUnavailableError(err.Error()))
	}

	h.logger.Info("Shortlist task accepted", map[string]interface{}{
		"request_id": requestID,
		"job_id":     req.JobID,
		"task_id":    handle.TaskID,
		"existing":   handle.Existing,
	})

	return c.JSON(http.StatusAccepted, models.CreateAsyncTaskResponse(handle.TaskID, handle.JobID, string(handle.Status), handle.Existing))
}

// Status handles GET /api/v1/shortlist/:jobId
func (h *ShortlistHandlers) Status(c echo.Context) error {
	requestID := requestIDFrom(c)
	jobID := c.Param("jobId")

	if err := h.validator.Var(jobID, "required,job_id"); err != nil {
		return writeError(c, requestID, utils.NewValidationError("invalid job id"))
	}

	task, err := h.queue.Status(c.Request().Context(), jobID)
	if errors.Is(err, queue.ErrTaskNotFound) {
		return writeError(c, requestID, utils.NewNotFoundError("No shortlist task for job", jobID))
	}
	if err != nil {
		return writeError(c, requestID, utils.NewQueueUnavailableError(err.Error()))
	}

	return c.JSON(http.StatusOK, task.StatusResponse())
}

// Entries handles GET /api/v1/shortlist/:jobId/entries. Entries are ranked by score at
// read time; one-time passwords are never returned.
func (h *ShortlistHandlers) Entries(c echo.Context) error {
	requestID := requestIDFrom(c)
	jobID := c.Param("jobId")

	if err := h.validator.Var(jobID, "required,job_id"); err != nil {
		return writeError(c, requestID, utils.NewValidationError("invalid job id"))
	}

	entries, err := h.store.ListShortlist(c.Request().Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to list shortlist", map[string]interface{}{
			"request_id": requestID,
			"job_id":     jobID,
			"error":      err,
		})
		return writeError(c, requestID, utils.NewInternalServerError("Failed to load shortlist"))
	}

	if entries == nil {
		entries = []models.ShortlistEntry{}
	}
	models.SortByScore(entries)

	shortlisted := 0
	for i := range entries {
		entries[i].Password = ""
		if entries[i].Status == models.ShortlistStatusShortlisted {
			shortlisted++
		}
	}

	return c.JSON(http.StatusOK, models.ShortlistEntriesResponse{
		JobID:       jobID,
		Entries:     entries,
		Count:       len(entries),
		Shortlisted: shortlisted,
		RequestID:   requestID,
	})
}

// Failed handles GET /api/v1/tasks/failed
func (h *ShortlistHandlers) Failed(c echo.Context) error {
	requestID := requestIDFrom(c)

	tasks, err := h.queue.Failed(c.Request().Context())
	if err != nil {
		return writeError(c, requestID, utils.NewQueueUnavailableError(err.Error()))
	}

	resp := models.AsyncTaskListResponse{Success: true, Tasks: make([]models.AsyncTaskStatusResponse, 0, len(tasks))}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, t.StatusResponse())
	}
	resp.Count = len(resp.Tasks)

	return c.JSON(http.StatusOK, resp)
}

// Requeue handles POST /api/v1/shortlist/:jobId/requeue
func (h *ShortlistHandlers) Requeue(c echo.Context) error {
	requestID := requestIDFrom(c)
	jobID := c.Param("jobId")

	if err := h.validator.Var(jobID, "required,job_id"); err != nil {
		return writeError(c, requestID, utils.NewValidationError("invalid job id"))
	}

	var req models.RequeueRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return writeError(c, requestID, utils.NewBadRequestError("Invalid request body"))
		}
		if err := h.validator.Struct(&req); err != nil {
			return writeError(c, requestID, utils.NewValidationError(err.Error()))
		}
	}

	handle, err := h.queue.Requeue(c.Request().Context(), jobID)
	switch {
	case errors.Is(err, queue.ErrTaskNotFound):
		return writeError(c, requestID, utils.NewNotFoundError("No shortlist task for job", jobID))
	case errors.Is(err, queue.ErrTaskNotFailed):
		return writeError(c, requestID, utils.NewConflictError("task is "+string(handle.Status)+", only failed tasks can be requeued"))
	case err != nil:
		return writeError(c, requestID, utils.NewQueueUnavailableError(err.Error()))
	}

	h.logger.Info("Shortlist task requeued by operator", map[string]interface{}{
		"request_id": requestID,
		"job_id":     jobID,
		"task_id":    handle.TaskID,
		"reason":     req.Reason,
	})

	return c.JSON(http.StatusAccepted, models.CreateAsyncTaskResponse(handle.TaskID, handle.JobID, string(handle.Status), handle.Existing))
}

package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"screening-pipeline/pkg/models"
	"screening-pipeline/pkg/utils"
)

// requestIDFrom returns the id assigned by the request middleware
func requestIDFrom(c echo.Context) string {
	if id, ok := c.Get("request_id").(string); ok && id != "" {
		return id
	}
	id := utils.GenerateRequestID()
	c.Set("request_id", id)
	return id
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_failed"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

// writeError renders a CustomError in the common error envelope
func writeError(c echo.Context, requestID string, err *utils.CustomError) error {
	return c.JSON(err.Code, models.ErrorResponse{
		Error:     errorCode(err.Code),
		Message:   err.Error(),
		RequestID: requestID,
		Timestamp: time.Now(),
	})
}

package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
	"screening-pipeline/pkg/utils"
)

const maxBodyBytes = 1024 * 1024

// RequestValidation assigns a request id and rejects oversized POST bodies
func RequestValidation() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = utils.GenerateRequestID()
			}
			c.Set("request_id", requestID)
			c.SetRequest(c.Request().WithContext(logging.WithRequestID(c.Request().Context(), requestID)))
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			if c.Request().Method == http.MethodPost && c.Request().ContentLength > maxBodyBytes {
				return c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
					Error:     "request_too_large",
					Message:   "Request body too large",
					RequestID: requestID,
					Timestamp: time.Now(),
				})
			}

			return next(c)
		}
	}
}

package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"screening-pipeline/internal/logging"
)

// TimeoutConfig bounds API handlers. Triggers only enqueue, so a handler hitting the
// limit means the queue or database is stalled. Health probes carry their own deadlines.
func TimeoutConfig(timeout time.Duration, logger logging.Logger) echo.MiddlewareFunc {
	return middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Path(), "/health")
		},
		Timeout:      timeout,
		ErrorMessage: `{"error":"timeout","message":"Request timed out"}`,
		OnTimeoutRouteErrorHandler: func(err error, c echo.Context) {
			logger.WithContext(c.Request().Context()).Warn("HTTP handler timed out", map[string]interface{}{
				"path":  c.Path(),
				"error": err.Error(),
			})
		},
	})
}

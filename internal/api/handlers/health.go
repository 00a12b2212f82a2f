package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
)

// Version is reported by the health endpoints
var Version = "1.0.0"

var startTime = time.Now()

// Checker probes one dependency
type Checker func(ctx context.Context) error

// HealthHandlers serves liveness and readiness probes
type HealthHandlers struct {
	checks  map[string]Checker
	timeout time.Duration
	logger  logging.Logger
}

// NewHealthHandlers creates the probes; checks are run by the readiness endpoint
func NewHealthHandlers(checks map[string]Checker, logger logging.Logger) *HealthHandlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &HealthHandlers{checks: checks, timeout: 3 * time.Second, logger: logger}
}

// Health handles GET /health
func (h *HealthHandlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(startTime),
		Checks:    map[string]string{"api": "ok"},
	})
}

// Ready handles GET /health/ready; any failing dependency turns it into a 503
func (h *HealthHandlers) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := map[string]string{"api": "ok"}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = "error: " + err.Error()
			status = http.StatusServiceUnavailable
			h.logger.Warn("Readiness check failed", map[string]interface{}{
				"request_id": requestIDFrom(c),
				"check":      name,
				"error":      err,
			})
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}

	return c.JSON(status, models.HealthResponse{
		Status:    state,
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(startTime),
		Checks:    results,
	})
}

// Live handles GET /health/live
func (h *HealthHandlers) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   Version,
		Uptime:    time.Since(startTime),
	})
}

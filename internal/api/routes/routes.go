package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"screening-pipeline/internal/api/handlers"
	"screening-pipeline/internal/api/middleware"
	"screening-pipeline/internal/api/validation"
	"screening-pipeline/internal/config"
	"screening-pipeline/internal/logging"
)

// Dependencies are the components the API serves
type Dependencies struct {
	Queue  handlers.TaskQueue
	Store  handlers.ShortlistReader
	Checks map[string]handlers.Checker
	Logger logging.Logger
}

// SetupRoutes configures all API routes
func SetupRoutes(e *echo.Echo, cfg *config.Config, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	// Global middleware
	e.Use(middleware.RequestValidation())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomiddleware.Recover())
	e.Use(middleware.CORSConfig(cfg.Server.AllowedOrigins))
	e.Use(middleware.TimeoutConfig(cfg.Server.WriteTimeout, logger))

	health := handlers.NewHealthHandlers(deps.Checks, logger)
	shortlist := handlers.NewShortlistHandlers(deps.Queue, deps.Store, validation.New(), logger)

	// Health check routes
	hg := e.Group("/health")
	{
		hg.GET("", health.Health)
		hg.GET("/ready", health.Ready)
		hg.GET("/live", health.Live)
	}

	// API v1 routes
	v1 := e.Group("/api/v1")
	{
		sl := v1.Group("/shortlist")
		{
			sl.POST("", shortlist.Trigger)
			sl.GET("/:jobId", shortlist.Status)
			sl.GET("/:jobId/entries", shortlist.Entries)
			sl.POST("/:jobId/requeue", shortlist.Requeue)
		}

		tasks := v1.Group("/tasks")
		{
			tasks.GET("/failed", shortlist.Failed)
		}
	}

	// Root route
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "screening-pipeline",
			"version": handlers.Version,
			"status":  "running",
		})
	})
}

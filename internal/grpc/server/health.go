package server

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name of the pipeline as a whole
const ServiceName = "screening.Pipeline"

// Checker probes one dependency
type Checker func(ctx context.Context) error

// SetServing sets the status reported for the overall server and ServiceName
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// CheckDependencies runs every check once and publishes the result
func (s *Server) CheckDependencies(ctx context.Context, checks map[string]Checker) bool {
	serving := true
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := check(checkCtx)
		cancel()
		if err != nil {
			serving = false
			s.logger.Warn("Dependency check failed", map[string]interface{}{
				"check": name,
				"error": err,
			})
		}
	}
	s.SetServing(serving)
	return serving
}

// WatchDependencies re-runs the checks every interval until ctx is done
func (s *Server) WatchDependencies(ctx context.Context, checks map[string]Checker, interval time.Duration) {
	s.CheckDependencies(ctx, checks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckDependencies(ctx, checks)
		}
	}
}

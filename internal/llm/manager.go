package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"screening-pipeline/internal/config"
	"screening-pipeline/internal/logging"
)

// ErrProviderUnavailable is returned when completions are requested before Start
// succeeded or after the provider failed its health check
var ErrProviderUnavailable = errors.New("LLM provider not available")

// Manager manages LLM providers and their lifecycle
type Manager struct {
	config   *config.Config
	factory  *LLMFactory
	provider LLMProvider
	logger   logging.Logger
	mu       sync.RWMutex
	healthy  bool
}

// NewManager creates a new LLM manager instance
func NewManager(cfg *config.Config, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Manager{
		config:  cfg,
		factory: NewLLMFactory(cfg),
		logger:  logger,
	}
}

// NewManagerWithProvider wraps an already constructed provider, marking it healthy
func NewManagerWithProvider(cfg *config.Config, provider LLMProvider, logger logging.Logger) *Manager {
	m := NewManager(cfg, logger)
	m.provider = provider
	m.healthy = true
	return m
}

// Start creates the configured provider and probes it. A failed probe does not
// abort startup; completions report ErrProviderUnavailable until CheckHealth passes,
// which MonitorHealth retries in the background.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Starting LLM manager", map[string]interface{}{
		"provider": m.config.LLM.Provider,
		"model":    m.config.LLM.Model,
	})

	provider, err := m.factory.CreateProvider(ctx)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	m.provider = provider

	probeCtx, cancel := context.WithTimeout(ctx, m.config.LLM.Timeout)
	defer cancel()

	if err := m.provider.IsHealthy(probeCtx); err != nil {
		m.logger.Warn("LLM provider health check failed, evaluations will fail until it recovers", map[string]interface{}{
			"provider": m.provider.GetProviderName(),
			"error":    err.Error(),
		})
		m.healthy = false
		return nil
	}

	m.healthy = true
	m.logger.Info("LLM manager started successfully", map[string]interface{}{
		"provider": m.provider.GetProviderName(),
	})
	return nil
}

// Stop shuts down the LLM manager
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Stopping LLM manager")
	m.provider = nil
	m.healthy = false
	return nil
}

// Complete forwards the request to the active provider, filling in configured
// defaults for token budget and temperature
func (m *Manager) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.mu.RLock()
	provider := m.provider
	healthy := m.healthy
	m.mu.RUnlock()

	if provider == nil {
		return "", fmt.Errorf("%w: manager not started", ErrProviderUnavailable)
	}
	if !healthy {
		return "", fmt.Errorf("%w: check API key configuration (LLM_API_KEY)", ErrProviderUnavailable)
	}

	if req.MaxTokens <= 0 {
		req.MaxTokens = m.config.LLM.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = m.config.LLM.Temperature
	}

	return provider.Complete(ctx, req)
}

// IsHealthy checks if the LLM manager and provider are healthy
func (m *Manager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy && m.provider != nil
}

// GetProviderName returns the name of the current LLM provider
func (m *Manager) GetProviderName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.provider != nil {
		return m.provider.GetProviderName()
	}
	return "none"
}

// CheckHealth performs a health check on the LLM provider. A check cut short by the
// caller's own deadline or cancellation leaves the recorded state unchanged.
func (m *Manager) CheckHealth(ctx context.Context) error {
	m.mu.RLock()
	provider := m.provider
	m.mu.RUnlock()

	if provider == nil {
		return ErrProviderUnavailable
	}

	err := provider.IsHealthy(ctx)
	if err != nil && ctx.Err() != nil {
		return err
	}

	m.mu.Lock()
	m.healthy = err == nil
	m.mu.Unlock()

	return err
}

// Ready reports the recorded provider state for readiness endpoints. It never calls the
// provider.
func (m *Manager) Ready(ctx context.Context) error {
	if !m.IsHealthy() {
		return ErrProviderUnavailable
	}
	return nil
}

// MonitorHealth rechecks an unhealthy provider every interval until ctx is done. Healthy
// providers are left alone.
func (m *Manager) MonitorHealth(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.IsHealthy() {
				continue
			}
			probeCtx, cancel := context.WithTimeout(ctx, m.config.LLM.Timeout)
			err := m.CheckHealth(probeCtx)
			cancel()
			if err == nil {
				m.logger.Info("LLM provider recovered", map[string]interface{}{
					"provider": m.GetProviderName(),
				})
			}
		}
	}
}

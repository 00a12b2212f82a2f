package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"screening-pipeline/internal/config"
	"screening-pipeline/internal/logging"
)

type fakeProvider struct {
	lastReq   CompletionRequest
	reply     string
	healthErr error
}

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	f.lastReq = req
	return f.reply, nil
}

func (f *fakeProvider) IsHealthy(ctx context.Context) error { return f.healthErr }

func (f *fakeProvider) GetProviderName() string { return "fake" }

func TestManagerCompleteAppliesDefaults(t *testing.T) {
	cfg := config.Default()
	provider := &fakeProvider{reply: `{"ok": true}`}
	m := NewManagerWithProvider(cfg, provider, logging.NewNop())

	got, err := m.Complete(context.Background(), CompletionRequest{System: "sys", User: "hello"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"ok": true}` {
		t.Fatalf("unexpected reply %q", got)
	}
	if provider.lastReq.MaxTokens != cfg.LLM.MaxTokens {
		t.Fatalf("expected default max tokens %d, got %d", cfg.LLM.MaxTokens, provider.lastReq.MaxTokens)
	}
	if provider.lastReq.Temperature != cfg.LLM.Temperature {
		t.Fatalf("expected default temperature, got %v", provider.lastReq.Temperature)
	}
}

func TestManagerUnavailableBeforeStart(t *testing.T) {
	m := NewManager(config.Default(), logging.NewNop())
	if _, err := m.Complete(context.Background(), CompletionRequest{User: "x"}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if m.IsHealthy() {
		t.Fatal("manager without provider must not be healthy")
	}
	if m.GetProviderName() != "none" {
		t.Fatalf("unexpected provider name %q", m.GetProviderName())
	}
}

func TestManagerCheckHealthTogglesAvailability(t *testing.T) {
	provider := &fakeProvider{healthErr: errors.New("401 unauthorized")}
	m := NewManagerWithProvider(config.Default(), provider, logging.NewNop())

	if err := m.CheckHealth(context.Background()); err == nil {
		t.Fatal("expected health error")
	}
	if _, err := m.Complete(context.Background(), CompletionRequest{User: "x"}); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("unhealthy provider should be unavailable, got %v", err)
	}

	provider.healthErr = nil
	if err := m.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !m.IsHealthy() {
		t.Fatal("manager should recover after a passing health check")
	}
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.Provider = "eliza"
	if _, err := NewLLMFactory(cfg).CreateProvider(context.Background()); err == nil {
		t.Fatal("expected unsupported provider error")
	}
}

// slowProvider answers health checks after a delay, honouring the caller's deadline
type slowProvider struct {
	delay time.Duration

	mu        sync.Mutex
	healthErr error
}

func (p *slowProvider) setHealthErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthErr = err
}

func (p *slowProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return "ok", nil
}

func (p *slowProvider) IsHealthy(ctx context.Context) error {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthErr
}

func (p *slowProvider) GetProviderName() string { return "slow" }

func TestSlowHealthCheckKeepsCompletionsAvailable(t *testing.T) {
	m := NewManagerWithProvider(config.Default(), &slowProvider{delay: 50 * time.Millisecond}, logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.CheckHealth(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if err := m.Ready(context.Background()); err != nil {
		t.Fatalf("Ready after a timed out check: %v", err)
	}
	if _, err := m.Complete(context.Background(), CompletionRequest{User: "x"}); err != nil {
		t.Fatalf("Complete after a timed out check: %v", err)
	}
}

func TestReadyReflectsRecordedState(t *testing.T) {
	provider := &slowProvider{healthErr: errors.New("401 unauthorized")}
	m := NewManagerWithProvider(config.Default(), provider, logging.NewNop())

	m.CheckHealth(context.Background())
	if err := m.Ready(context.Background()); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestMonitorHealthRecoversProvider(t *testing.T) {
	provider := &slowProvider{healthErr: errors.New("503 overloaded")}
	m := NewManagerWithProvider(config.Default(), provider, logging.NewNop())
	m.CheckHealth(context.Background())
	if m.IsHealthy() {
		t.Fatal("expected unhealthy provider")
	}

	provider.setHealthErr(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.MonitorHealth(ctx, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for !m.IsHealthy() {
		if time.Now().After(deadline) {
			t.Fatal("provider never marked healthy again")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := m.Complete(context.Background(), CompletionRequest{User: "x"}); err != nil {
		t.Fatalf("Complete after recovery: %v", err)
	}
}

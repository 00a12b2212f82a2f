package llm

import (
	"context"

	"screening-pipeline/internal/llm/providers"
)

// CompletionRequest is one system instruction plus one user message
type CompletionRequest = providers.Request

// LLMProvider defines the interface for LLM providers
type LLMProvider interface {
	// Complete sends the request and returns the raw text of the reply
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// IsHealthy checks if the LLM provider is healthy and available
	IsHealthy(ctx context.Context) error

	// GetProviderName returns the name of the LLM provider
	GetProviderName() string
}

// Completer is the narrow dependency of the extraction and evaluation clients
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"screening-pipeline/internal/config"
)

// ClaudeProvider implements the LLM provider interface using Anthropic's Claude
type ClaudeProvider struct {
	client anthropic.Client
	config *config.Config
	model  anthropic.Model
}

// NewClaudeProvider creates a new Claude provider instance
func NewClaudeProvider(cfg *config.Config, opts ...option.RequestOption) *ClaudeProvider {
	opts = append([]option.RequestOption{
		option.WithAPIKey(cfg.LLM.APIKey),
		option.WithRequestTimeout(cfg.LLM.Timeout),
	}, opts...)

	model := anthropic.Model(cfg.LLM.Model)
	if cfg.LLM.Model == "" {
		model = anthropic.ModelClaude3_7SonnetLatest
	}

	return &ClaudeProvider{
		client: anthropic.NewClient(opts...),
		config: cfg,
		model:  model,
	}
}

// Complete sends a single-turn message and concatenates the text blocks of the reply
func (cp *ClaudeProvider) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       cp.model,
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(float64(req.Temperature)),
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: req.User},
			}},
			Role: anthropic.MessageParamRoleUser,
		}},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	response, err := cp.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}

	var builder strings.Builder
	for _, block := range response.Content {
		if block.Type != "text" {
			continue
		}
		builder.WriteString(block.AsText().Text)
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// IsHealthy checks if the Claude provider is healthy and available
func (cp *ClaudeProvider) IsHealthy(ctx context.Context) error {
	if cp.config.LLM.APIKey == "" {
		return fmt.Errorf("Claude API key not configured - set LLM_API_KEY environment variable")
	}

	_, err := cp.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     cp.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: "ping"},
			}},
			Role: anthropic.MessageParamRoleUser,
		}},
	})
	if err != nil {
		return fmt.Errorf("Claude API health check failed: %w", err)
	}

	return nil
}

// GetProviderName returns the name of the LLM provider
func (cp *ClaudeProvider) GetProviderName() string {
	return "claude"
}

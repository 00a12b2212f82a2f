package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"screening-pipeline/internal/config"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements the LLM provider interface on the Gemini API
type GeminiProvider struct {
	client    *genai.Client
	config    *config.Config
	modelName string
}

// NewGeminiProvider creates a Gemini client for the configured API key
func NewGeminiProvider(ctx context.Context, cfg *config.Config) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return nil, errors.New("gemini api key is required - set LLM_API_KEY environment variable")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.LLM.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := cfg.LLM.Model
	if model == "" || strings.HasPrefix(model, "claude") {
		model = defaultGeminiModel
	}

	return &GeminiProvider{client: client, config: cfg, modelName: model}, nil
}

// Complete generates content for the user message under the system instruction
func (g *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	prompt := strings.TrimSpace(req.User)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	temperature := req.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", ErrEmptyCompletion
	}
	return output, nil
}

// IsHealthy checks that the configured model is reachable
func (g *GeminiProvider) IsHealthy(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.modelName, nil); err != nil {
		return fmt.Errorf("gemini health check failed: %w", err)
	}
	return nil
}

func (g *GeminiProvider) GetProviderName() string {
	return "gemini"
}

// Package extraction turns résumé documents into structured candidate profiles.
package extraction

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"screening-pipeline/internal/config"
	"screening-pipeline/internal/llm"
	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
	"screening-pipeline/pkg/utils"
)

// Extractor produces a candidate profile from an application
type Extractor interface {
	Extract(ctx context.Context, ref models.AppliedReference) (*models.CandidateProfile, error)
}

// Client downloads, converts and extracts one résumé. It does not persist anything.
type Client struct {
	fetcher        Fetcher
	converter      TextConverter
	completer      llm.Completer
	logger         logging.Logger
	minTextLength  int
	maxPromptChars int
	maxTokens      int
}

// NewClient creates an extraction client
func NewClient(cfg *config.Config, fetcher Fetcher, converter TextConverter, completer llm.Completer, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	minText := cfg.Pipeline.MinTextLength
	if minText <= 0 {
		minText = 10
	}
	return &Client{
		fetcher:        fetcher,
		converter:      converter,
		completer:      completer,
		logger:         logger,
		minTextLength:  minText,
		maxPromptChars: cfg.LLM.MaxTokens * 3, // rough chars per token
		maxTokens:      cfg.LLM.MaxTokens,
	}
}

type extractedProfile struct {
	Name                 string                   `json:"name"`
	Email                string                   `json:"email"`
	Phone                string                   `json:"phone"`
	Skills               []string                 `json:"skills"`
	Summary              string                   `json:"summary"`
	TotalExperienceYears float64                  `json:"total_experience_years"`
	Experience           []models.ExperienceEntry `json:"experience"`
	Education            []models.EducationEntry  `json:"education"`
	Projects             []models.ProjectEntry    `json:"projects"`
	Interests            []string                 `json:"interests"`
}

// Extract fetches the résumé behind ref and asks the reasoning service to structure it.
// Errors are *FetchError, *EmptyDocumentError, *llm.MalformedResponseError or a
// conversion/transport error.
func (c *Client) Extract(ctx context.Context, ref models.AppliedReference) (*models.CandidateProfile, error) {
	start := time.Now()
	logger := c.logger.WithFields(map[string]interface{}{
		"application_id": ref.ID,
		"job_id":         ref.JobID,
	})

	doc, err := c.fetcher.Fetch(ctx, ref.DocumentURL)
	if err != nil {
		return nil, err
	}

	text, err := c.converter.Convert(doc)
	if err != nil {
		return nil, fmt.Errorf("convert document %s: %w", ref.DocumentURL, err)
	}

	length := utf8.RuneCountInString(strings.TrimSpace(text))
	if length < c.minTextLength {
		return nil, &EmptyDocumentError{Locator: ref.DocumentURL, Length: length, Minimum: c.minTextLength}
	}

	if c.maxPromptChars > 0 && len(text) > c.maxPromptChars {
		text = utils.Truncate(text, c.maxPromptChars)
		logger.Debug("Résumé text truncated to fit token limits", map[string]interface{}{
			"limit": c.maxPromptChars,
		})
	}

	raw, err := c.completer.Complete(ctx, llm.CompletionRequest{
		System:    extractionSystemPrompt,
		User:      extractionUserPrompt(text),
		MaxTokens: c.maxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}

	var out extractedProfile
	if err := llm.DecodeJSON(raw, &out); err != nil {
		return nil, err
	}

	profile := normaliseProfile(out, ref)

	logger.Debug("Candidate profile extracted", map[string]interface{}{
		"skills":          len(profile.Skills),
		"projects":        len(profile.Projects),
		"text_length":     length,
		"processing_time": time.Since(start).String(),
	})

	return profile, nil
}

func normaliseProfile(out extractedProfile, ref models.AppliedReference) *models.CandidateProfile {
	now := time.Now().UTC()

	email := strings.ToLower(strings.TrimSpace(out.Email))
	if email != "" {
		if addr, err := mail.ParseAddress(email); err == nil {
			email = addr.Address
		} else {
			email = ""
		}
	}

	years := out.TotalExperienceYears
	if math.IsNaN(years) || math.IsInf(years, 0) || years < 0 {
		years = 0
	}

	return &models.CandidateProfile{
		ApplicationID:        ref.ID,
		JobID:                ref.JobID,
		Name:                 strings.TrimSpace(out.Name),
		Email:                email,
		Phone:                strings.TrimSpace(out.Phone),
		ResumeURL:            ref.DocumentURL,
		Skills:               utils.NormalizeList(out.Skills),
		Summary:              strings.TrimSpace(out.Summary),
		TotalExperienceYears: years,
		Experience:           nonNil(out.Experience),
		Education:            nonNil(out.Education),
		Projects:             nonNil(out.Projects),
		Interests:            utils.NormalizeList(out.Interests),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var _ Extractor = (*Client)(nil)

package evaluation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"screening-pipeline/internal/llm"
	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
)

// Client evaluates candidates through the reasoning service
type Client struct {
	completer  llm.Completer
	thresholds Thresholds
	logger     logging.Logger
}

// NewClient creates an LLM-backed evaluator
func NewClient(completer llm.Completer, thresholds Thresholds, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Client{completer: completer, thresholds: thresholds, logger: logger}
}

type evaluationReply struct {
	Score          float64 `json:"score"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
	Status         string  `json:"status"`
	Rationale      string  `json:"rationale"`
}

// Evaluate scores profile against req. Unparseable replies yield *llm.MalformedResponseError.
func (c *Client) Evaluate(ctx context.Context, profile *models.CandidateProfile, req *models.JobRequirement) (*models.EvaluationResult, error) {
	prompt, err := evaluationUserPrompt(profile, req)
	if err != nil {
		return nil, fmt.Errorf("build evaluation prompt: %w", err)
	}

	raw, err := c.completer.Complete(ctx, llm.CompletionRequest{
		System: evaluationSystemPrompt,
		User:   prompt,
		JSON:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation request: %w", err)
	}

	var reply evaluationReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		return nil, err
	}

	result := c.normalise(reply, profile, req)

	c.logger.Debug("Candidate evaluated", map[string]interface{}{
		"application_id": profile.ApplicationID,
		"job_id":         req.ID,
		"score":          result.Score,
		"status":         string(result.Status),
	})

	return result, nil
}

func (c *Client) normalise(reply evaluationReply, profile *models.CandidateProfile, req *models.JobRequirement) *models.EvaluationResult {
	score := ClampScore(reply.Score)

	recommendation := models.Recommendation(strings.ToLower(strings.TrimSpace(reply.Recommendation)))
	if !recommendation.Valid() {
		recommendation = RecommendationFor(score)
	}

	status := models.ShortlistStatus(strings.ToLower(strings.TrimSpace(reply.Status)))
	if !status.Valid() {
		status = c.thresholds.StatusFor(score)
	}
	if recommendation == models.RecommendationNotSuitable && status == models.ShortlistStatusShortlisted {
		status = models.ShortlistStatusUnderReview
	}

	return &models.EvaluationResult{
		CandidateID:    profile.ApplicationID,
		JobID:          req.ID,
		Score:          score,
		Confidence:     ClampConfidence(reply.Confidence),
		Recommendation: recommendation,
		Status:         status,
		Rationale:      strings.TrimSpace(reply.Rationale),
		EvaluatedAt:    time.Now().UTC(),
	}
}

var _ Evaluator = (*Client)(nil)

// Package evaluation scores candidate profiles against job requirements.
package evaluation

import (
	"context"
	"fmt"
	"math"
	"time"

	"screening-pipeline/internal/config"
	"screening-pipeline/internal/llm"
	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
)

// Evaluator scores one candidate against one job
type Evaluator interface {
	Evaluate(ctx context.Context, profile *models.CandidateProfile, req *models.JobRequirement) (*models.EvaluationResult, error)
}

// Thresholds maps a score onto a shortlist status
type Thresholds struct {
	Shortlist float64
	Review    float64
}

// ThresholdsFromConfig reads the evaluation thresholds
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	return Thresholds{
		Shortlist: cfg.Evaluation.ShortlistThreshold,
		Review:    cfg.Evaluation.ReviewThreshold,
	}
}

// StatusFor returns the status a score earns under t
func (t Thresholds) StatusFor(score float64) models.ShortlistStatus {
	switch {
	case score >= t.Shortlist:
		return models.ShortlistStatusShortlisted
	case score >= t.Review:
		return models.ShortlistStatusUnderReview
	default:
		return models.ShortlistStatusRejected
	}
}

// RecommendationFor buckets a 0-100 score
func RecommendationFor(score float64) models.Recommendation {
	switch {
	case score >= 85:
		return models.RecommendationStrongFit
	case score >= 70:
		return models.RecommendationFit
	case score >= 50:
		return models.RecommendationWeakFit
	default:
		return models.RecommendationNotSuitable
	}
}

// Default is the conservative result recorded when a candidate could not be evaluated
func Default(candidateID, jobID, rationale string) *models.EvaluationResult {
	return &models.EvaluationResult{
		CandidateID:    candidateID,
		JobID:          jobID,
		Score:          0,
		Confidence:     0,
		Recommendation: models.RecommendationNotSuitable,
		Status:         models.ShortlistStatusRejected,
		Rationale:      rationale,
		EvaluatedAt:    time.Now().UTC(),
	}
}

// ClampScore bounds a score to [0, 100]; NaN becomes 0
func ClampScore(v float64) float64 {
	return clamp(v, 0, 100)
}

// ClampConfidence bounds a confidence to [0, 1]; NaN becomes 0
func ClampConfidence(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// New returns the evaluator selected by evaluation.mode
func New(cfg *config.Config, completer llm.Completer, logger logging.Logger) (Evaluator, error) {
	thresholds := ThresholdsFromConfig(cfg)
	switch cfg.Evaluation.Mode {
	case "", "llm":
		if completer == nil {
			return nil, fmt.Errorf("llm evaluation mode requires a reasoning client")
		}
		return NewClient(completer, thresholds, logger), nil
	case "heuristic":
		return NewHeuristicScorer(thresholds), nil
	default:
		return nil, fmt.Errorf("unsupported evaluation mode: %s", cfg.Evaluation.Mode)
	}
}

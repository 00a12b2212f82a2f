package evaluation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"screening-pipeline/pkg/models"
)

const (
	pointsPerSkill      = 10
	experienceBonus     = 5
	projectBonus        = 5
	heuristicConfidence = 0.5
)

// HeuristicScorer is the rule-based evaluator: 10 points per matched required skill,
// 5 when experience meets the minimum and 5 when projects meet the minimum,
// normalised to 0-100 against the best achievable total.
type HeuristicScorer struct {
	thresholds Thresholds
}

// NewHeuristicScorer creates a rule-based evaluator
func NewHeuristicScorer(thresholds Thresholds) *HeuristicScorer {
	return &HeuristicScorer{thresholds: thresholds}
}

// Evaluate never fails except on a cancelled context
func (h *HeuristicScorer) Evaluate(ctx context.Context, profile *models.CandidateProfile, req *models.JobRequirement) (*models.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	have := make(map[string]struct{}, len(profile.Skills))
	for _, s := range profile.Skills {
		have[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}

	var matched, missing []string
	for _, s := range req.RequiredSkills {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			continue
		}
		if _, ok := have[key]; ok {
			matched = append(matched, key)
		} else {
			missing = append(missing, key)
		}
	}

	raw := pointsPerSkill * len(matched)
	if profile.TotalExperienceYears >= req.MinExperienceYears {
		raw += experienceBonus
	}
	if len(profile.Projects) >= req.MinProjects {
		raw += projectBonus
	}

	best := pointsPerSkill*(len(matched)+len(missing)) + experienceBonus + projectBonus
	score := ClampScore(float64(raw) * 100 / float64(best))

	return &models.EvaluationResult{
		CandidateID:    profile.ApplicationID,
		JobID:          req.ID,
		Score:          score,
		Confidence:     heuristicConfidence,
		Recommendation: RecommendationFor(score),
		Status:         h.thresholds.StatusFor(score),
		Rationale:      heuristicRationale(matched, missing, profile, req),
		EvaluatedAt:    time.Now().UTC(),
	}, nil
}

func heuristicRationale(matched, missing []string, profile *models.CandidateProfile, req *models.JobRequirement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Matched %d of %d required skills", len(matched), len(matched)+len(missing))
	if len(matched) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(matched, ", "))
	}
	b.WriteString(".")
	if len(missing) > 0 {
		fmt.Fprintf(&b, " Missing: %s.", strings.Join(missing, ", "))
	}
	fmt.Fprintf(&b, " Experience %.1f/%.1f years, projects %d/%d.",
		profile.TotalExperienceYears, req.MinExperienceYears, len(profile.Projects), req.MinProjects)
	return b.String()
}

var _ Evaluator = (*HeuristicScorer)(nil)

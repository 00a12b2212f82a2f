package evaluation

import (
	"encoding/json"
	"fmt"

	"screening-pipeline/pkg/models"
)

const evaluationSystemPrompt = `You are a recruiter screening candidates for a job opening. Compare the candidate profile with the job requirements and reply with a single JSON object and nothing else:

{
  "score": number between 0 and 100,
  "confidence": number between 0 and 1,
  "recommendation": "strong_fit" | "fit" | "weak_fit" | "not_suitable",
  "status": "shortlisted" | "rejected" | "under_review",
  "rationale": "string, at most three sentences, citing concrete skills or experience"
}

Weigh required skills most heavily, then relevant experience against the minimum years, then projects. Lower the confidence when the profile is sparse.`

type promptRequirement struct {
	Title              string   `json:"title"`
	RequiredSkills     []string `json:"required_skills"`
	MinExperienceYears float64  `json:"min_experience_years"`
	MinProjects        int      `json:"min_projects"`
}

type promptCandidate struct {
	Name                 string                   `json:"name"`
	Skills               []string                 `json:"skills"`
	Summary              string                   `json:"summary"`
	TotalExperienceYears float64                  `json:"total_experience_years"`
	Experience           []models.ExperienceEntry `json:"experience"`
	Education            []models.EducationEntry  `json:"education"`
	Projects             []models.ProjectEntry    `json:"projects"`
}

// evaluationUserPrompt serialises the job and candidate. Contact details are left
// out, they play no part in the score.
func evaluationUserPrompt(profile *models.CandidateProfile, req *models.JobRequirement) (string, error) {
	job, err := json.MarshalIndent(promptRequirement{
		Title:              req.Title,
		RequiredSkills:     req.RequiredSkills,
		MinExperienceYears: req.MinExperienceYears,
		MinProjects:        req.MinProjects,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	candidate, err := json.MarshalIndent(promptCandidate{
		Name:                 profile.Name,
		Skills:               profile.Skills,
		Summary:              profile.Summary,
		TotalExperienceYears: profile.TotalExperienceYears,
		Experience:           profile.Experience,
		Education:            profile.Education,
		Projects:             profile.Projects,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("JOB REQUIREMENTS:\n%s\n\nCANDIDATE PROFILE:\n%s", job, candidate), nil
}

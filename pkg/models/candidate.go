package models

import (
	"strings"
	"time"
)

// CandidateProfile is the structured data extracted from one applicant's résumé
type CandidateProfile struct {
	ID                   string            `json:"id"`
	ApplicationID        string            `json:"application_id"`
	JobID                string            `json:"job_id"`
	Name                 string            `json:"name"`
	Email                string            `json:"email"`
	Phone                string            `json:"phone"`
	ResumeURL            string            `json:"resume_url"`
	Skills               []string          `json:"skills"`
	Summary              string            `json:"summary"`
	TotalExperienceYears float64           `json:"total_experience_years"`
	Experience           []ExperienceEntry `json:"experience"`
	Education            []EducationEntry  `json:"education"`
	Projects             []ProjectEntry    `json:"projects"`
	Interests            []string          `json:"interests"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// ExperienceEntry is one position held by a candidate
type ExperienceEntry struct {
	Company     string `json:"company"`
	Role        string `json:"role"`
	Duration    string `json:"duration"`
	Description string `json:"description"`
}

// EducationEntry is one degree or course of study
type EducationEntry struct {
	Institution  string `json:"institution"`
	Degree       string `json:"degree"`
	FieldOfStudy string `json:"field_of_study"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
}

// ProjectEntry is a project listed on a résumé
type ProjectEntry struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	Link         string   `json:"link"`
}

// IdentityKey returns the natural key used to upsert the profile within its job.
// Profiles without an email fall back to the application they came from so that
// unknown emails never collapse into a single row.
func (p *CandidateProfile) IdentityKey() string {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email != "" {
		return email
	}
	return "application:" + p.ApplicationID
}

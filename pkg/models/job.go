package models

import "time"

// JobRequirement is the requirement profile of a job opening. It is owned by the
// job-posting side of the product and treated as read-only by the pipeline.
type JobRequirement struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	RequiredSkills     []string  `json:"required_skills"`
	MinExperienceYears float64   `json:"min_experience_years"`
	MinProjects        int       `json:"min_projects"`
	CreatedAt          time.Time `json:"created_at"`
}

// AppliedReference is a single application to a job: the job it targets and where the
// applicant's résumé can be fetched from.
type AppliedReference struct {
	ID          string    `json:"id"`
	JobID       string    `json:"job_id"`
	DocumentURL string    `json:"document_url"`
	CreatedAt   time.Time `json:"created_at"`
}

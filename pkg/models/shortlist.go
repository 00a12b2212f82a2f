package models

import (
	"sort"
	"time"
)

// Recommendation is the fit label produced by an evaluation
type Recommendation string

const (
	RecommendationStrongFit   Recommendation = "strong_fit"
	RecommendationFit         Recommendation = "fit"
	RecommendationWeakFit     Recommendation = "weak_fit"
	RecommendationNotSuitable Recommendation = "not_suitable"
)

// Valid reports whether r is one of the known labels
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendationStrongFit, RecommendationFit, RecommendationWeakFit, RecommendationNotSuitable:
		return true
	}
	return false
}

// ShortlistStatus is the outcome recorded for a candidate
type ShortlistStatus string

const (
	ShortlistStatusShortlisted ShortlistStatus = "shortlisted"
	ShortlistStatusRejected    ShortlistStatus = "rejected"
	ShortlistStatusUnderReview ShortlistStatus = "under_review"
)

// Valid reports whether s is one of the known statuses
func (s ShortlistStatus) Valid() bool {
	switch s {
	case ShortlistStatusShortlisted, ShortlistStatusRejected, ShortlistStatusUnderReview:
		return true
	}
	return false
}

// EvaluationResult is the scored fit of one candidate against one job
type EvaluationResult struct {
	CandidateID    string          `json:"candidate_id"`
	JobID          string          `json:"job_id"`
	Score          float64         `json:"score"`
	Confidence     float64         `json:"confidence"`
	Recommendation Recommendation  `json:"recommendation"`
	Status         ShortlistStatus `json:"status"`
	Rationale      string          `json:"rationale"`
	EvaluatedAt    time.Time       `json:"evaluated_at"`
}

// ShortlistEntry is the persisted outcome for a candidate. CandidateID is the id of the
// application the entry was produced from, so every application maps to exactly one entry.
type ShortlistEntry struct {
	CandidateID string           `json:"candidate_id"`
	JobID       string           `json:"job_id"`
	ProfileID   string           `json:"profile_id,omitempty"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	ResumeURL   string           `json:"resume_url"`
	Status      ShortlistStatus  `json:"status"`
	Evaluation  EvaluationResult `json:"evaluation"`
	LoginID     string           `json:"login_id,omitempty"`
	Password    string           `json:"password,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// SortByScore orders entries by score descending, breaking ties by candidate id
func SortByScore(entries []ShortlistEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Evaluation.Score != entries[j].Evaluation.Score {
			return entries[i].Evaluation.Score > entries[j].Evaluation.Score
		}
		return entries[i].CandidateID < entries[j].CandidateID
	})
}

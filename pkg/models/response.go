package models

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    time.Duration     `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ShortlistEntriesResponse lists the entries recorded for a job, best score first
type ShortlistEntriesResponse struct {
	JobID       string           `json:"job_id"`
	Entries     []ShortlistEntry `json:"entries"`
	Count       int              `json:"count"`
	Shortlisted int              `json:"shortlisted"`
	RequestID   string           `json:"request_id"`
}

package models

// ShortlistRequest is the payload of the pipeline trigger endpoint
type ShortlistRequest struct {
	JobID string `json:"job_id" validate:"required,job_id"`
}

// RequeueRequest optionally carries the reason a failed task is requeued by an operator
type RequeueRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

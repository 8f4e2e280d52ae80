package model

import (
	"encoding/json"
	"time"
)

// EnqueueRequest is the body of POST /api/jobs. The backend is not part of
// the request: it is bound from the caller's authentication mode.
type EnqueueRequest struct {
	Kind         JobKind         `json:"kind" validate:"required,oneof=submit-work submit-approval"`
	ClientWorkID string          `json:"clientWorkId" validate:"required,min=8,max=128"`
	Payload      json.RawMessage `json:"payload" validate:"required"`
}

// EnqueueResponse acknowledges an accepted (or deduplicated) enqueue.
type EnqueueResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	Duplicate bool      `json:"duplicate"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobListResponse wraps GET /api/jobs.
type JobListResponse struct {
	Jobs []*Job `json:"jobs"`
}

// CancelResponse wraps POST /api/jobs/:jobId/cancel.
type CancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

// AgentSubmitRequest is the parsed body of POST /agent/submit, produced by
// the conversational bridge on behalf of a remote, non-interactive caller.
type AgentSubmitRequest struct {
	Address      string   `json:"address" validate:"required"`
	ClientWorkID string   `json:"clientWorkId" validate:"required,min=8,max=128"`
	GardenID     string   `json:"gardenId" validate:"required"`
	ActionID     string   `json:"actionId,omitempty"`
	Title        string   `json:"title,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	MediaURLs    []string `json:"mediaUrls,omitempty"`
}

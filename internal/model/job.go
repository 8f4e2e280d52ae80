package model

import (
	"encoding/json"
	"time"
)

// Job is one durable unit of queued submission work. The record is the
// single source of truth for a submission; once enqueued it is mutated
// only by the queue manager.
type Job struct {
	ID            string           `json:"id"`
	ClientWorkID  string           `json:"clientWorkId"`
	Kind          JobKind          `json:"kind"`
	Payload       json.RawMessage  `json:"payload"`
	Backend       BackendKind      `json:"backend"`
	Status        JobStatus        `json:"status"`
	RetryCount    int              `json:"retryCount"`
	MaxRetries    int              `json:"maxRetries"`
	NextAttemptAt *time.Time       `json:"nextAttemptAt,omitempty"`
	LastError     *SubmissionError `json:"lastError,omitempty"`
	TxRef         string           `json:"txRef,omitempty"`
	UserAddress   string           `json:"userAddress"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Job kinds
type JobKind string

const (
	JobKindSubmitWork     JobKind = "submit-work"
	JobKindSubmitApproval JobKind = "submit-approval"
)

var ValidJobKinds = []JobKind{JobKindSubmitWork, JobKindSubmitApproval}

// Submission backends
type BackendKind string

const (
	BackendWallet       BackendKind = "wallet"
	BackendSmartAccount BackendKind = "smart-account"
	BackendAgent        BackendKind = "agent"
)

// Job status
type JobStatus string

const (
	JobStatusQueued               JobStatus = "queued"
	JobStatusSimulating           JobStatus = "simulating"
	JobStatusDispatching          JobStatus = "dispatching"
	JobStatusAwaitingConfirmation JobStatus = "awaiting_confirmation"
	JobStatusConfirmed            JobStatus = "confirmed"
	JobStatusFailed               JobStatus = "failed"
	JobStatusConflicted           JobStatus = "conflicted"
	JobStatusCancelled            JobStatus = "cancelled"
)

// IsTerminal reports whether the status can never transition again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusConfirmed, JobStatusFailed, JobStatusConflicted, JobStatusCancelled:
		return true
	}
	return false
}

// Landed reports whether the logical submission reached the chain, either
// through this job (confirmed) or through another path (conflicted).
// Landed jobs keep their idempotency reservation so a re-enqueue of the
// same clientWorkId never dispatches twice.
func (s JobStatus) Landed() bool {
	return s == JobStatusConfirmed || s == JobStatusConflicted
}

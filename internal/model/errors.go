package model

import (
	"errors"
	"fmt"
)

// Error codes for classified submission failures
type ErrorCode string

const (
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeAuthorization     ErrorCode = "AUTHORIZATION_ERROR"
	CodeAccountNotReady   ErrorCode = "ACCOUNT_NOT_READY"
	CodeSimulationFailure ErrorCode = "SIMULATION_FAILURE"
	CodeNetwork           ErrorCode = "NETWORK_ERROR"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeConflict          ErrorCode = "CONFLICT"
)

// SubmissionError is a classified failure attached to a job. Retryable
// errors reschedule the job with backoff; non-retryable errors move it to
// a terminal state.
type SubmissionError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewValidationError(msg string) *SubmissionError {
	return &SubmissionError{Code: CodeValidation, Message: msg}
}

func NewAuthorizationError(msg string) *SubmissionError {
	return &SubmissionError{Code: CodeAuthorization, Message: msg}
}

func NewAccountNotReadyError(msg string) *SubmissionError {
	return &SubmissionError{Code: CodeAccountNotReady, Message: msg}
}

func NewSimulationFailure(msg string) *SubmissionError {
	return &SubmissionError{Code: CodeSimulationFailure, Message: msg}
}

func NewNetworkError(err error) *SubmissionError {
	return &SubmissionError{Code: CodeNetwork, Message: err.Error(), Retryable: true}
}

func NewTimeoutError(msg string) *SubmissionError {
	return &SubmissionError{Code: CodeTimeout, Message: msg}
}

func NewConflictError(canonicalRef string) *SubmissionError {
	return &SubmissionError{
		Code:    CodeConflict,
		Message: fmt.Sprintf("submission already landed as %s", canonicalRef),
	}
}

// Classify wraps an arbitrary error into a SubmissionError. Errors that
// already carry a classification pass through, however deeply wrapped;
// everything else is treated as a transient transport failure.
func Classify(err error) *SubmissionError {
	if err == nil {
		return nil
	}
	var serr *SubmissionError
	if errors.As(err, &serr) {
		return serr
	}
	return NewNetworkError(err)
}

// agentMessages maps error codes to sentences suitable for a remote
// conversational channel, where there is no UI to render structured errors.
var agentMessages = map[ErrorCode]string{
	CodeValidation:        "Your submission is missing required details. Please include a description or at least one photo.",
	CodeAuthorization:     "You are not authorized to submit work to this garden.",
	CodeAccountNotReady:   "Your account is still being set up. Please try again in a few minutes.",
	CodeSimulationFailure: "The submission was rejected by the garden registry and cannot be completed.",
	CodeNetwork:           "The network is unreachable right now. Your submission is saved and will be retried automatically.",
	CodeTimeout:           "Confirmation is taking longer than expected. We will keep checking and let you know.",
	CodeConflict:          "This work was already submitted successfully from another device.",
}

// AgentText renders the error as a plain-text message for agent replies.
func (e *SubmissionError) AgentText() string {
	if msg, ok := agentMessages[e.Code]; ok {
		return msg
	}
	return "Something went wrong with your submission. Please try again later."
}

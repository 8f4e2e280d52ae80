package model

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestWorkPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload WorkPayload
		wantErr bool
	}{
		{
			name:    "title only",
			payload: WorkPayload{GardenID: "g-1", Title: "planted seedlings"},
		},
		{
			name:    "media only",
			payload: WorkPayload{GardenID: "g-1", Media: []MediaRef{{Name: "a.jpg", URL: "https://cdn/a.jpg"}}},
		},
		{
			name:    "missing garden",
			payload: WorkPayload{Title: "planted seedlings"},
			wantErr: true,
		},
		{
			name:    "empty submission",
			payload: WorkPayload{GardenID: "g-1"},
			wantErr: true,
		},
		{
			name:    "media with neither data nor url",
			payload: WorkPayload{GardenID: "g-1", Media: []MediaRef{{Name: "a.jpg"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApprovalPayloadValidate(t *testing.T) {
	ok := ApprovalPayload{GardenID: "g-1", WorkRef: "0xuid", Approved: true}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	missing := ApprovalPayload{GardenID: "g-1"}
	if err := missing.Validate(); err == nil {
		t.Error("expected error for missing workRef")
	}
}

func TestValidateJobPayload(t *testing.T) {
	work, _ := json.Marshal(WorkPayload{GardenID: "g-1", Title: "weeding"})
	if err := ValidateJobPayload(JobKindSubmitWork, work); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := ValidateJobPayload(JobKindSubmitWork, json.RawMessage(`{not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}

	if err := ValidateJobPayload(JobKind("unknown"), work); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestClassify(t *testing.T) {
	serr := NewAuthorizationError("not a gardener")
	if got := Classify(serr); got != serr {
		t.Error("classified errors must pass through unchanged")
	}

	wrapped := fmt.Errorf("encode failed: %w", serr)
	if got := Classify(wrapped); got != serr {
		t.Errorf("wrapping must not change the classification, got %+v", got)
	}

	got := Classify(json.Unmarshal([]byte("{"), &struct{}{}))
	if got.Code != CodeNetwork || !got.Retryable {
		t.Errorf("unknown errors should classify as retryable network, got %+v", got)
	}

	if Classify(nil) != nil {
		t.Error("nil error should classify to nil")
	}
}

func TestStatusTerminality(t *testing.T) {
	terminal := []JobStatus{JobStatusConfirmed, JobStatusFailed, JobStatusConflicted, JobStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []JobStatus{JobStatusQueued, JobStatusSimulating, JobStatusDispatching, JobStatusAwaitingConfirmation}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}

	if !JobStatusConfirmed.Landed() || !JobStatusConflicted.Landed() {
		t.Error("confirmed and conflicted both count as landed")
	}
	if JobStatusFailed.Landed() || JobStatusCancelled.Landed() {
		t.Error("failed and cancelled must not count as landed")
	}
}

func TestAgentText(t *testing.T) {
	if NewConflictError("0xuid").AgentText() == "" {
		t.Error("expected a message for conflict errors")
	}
	unknown := &SubmissionError{Code: ErrorCode("WEIRD")}
	if unknown.AgentText() == "" {
		t.Error("expected a fallback message for unknown codes")
	}
}

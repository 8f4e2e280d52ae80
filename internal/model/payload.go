package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WorkPayload is the immutable snapshot of a gardener's work draft,
// captured at enqueue time.
type WorkPayload struct {
	GardenID string            `json:"gardenId"`
	ActionID string            `json:"actionId,omitempty"`
	Title    string            `json:"title,omitempty"`
	Notes    string            `json:"notes,omitempty"`
	Media    []MediaRef        `json:"media,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MediaRef is one piece of evidence attached to a work submission. Either
// Data holds the raw bytes still to be uploaded, or URL points at already
// stored content.
type MediaRef struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data,omitempty"`
	URL         string `json:"url,omitempty"`
}

// ApprovalPayload is the snapshot of an operator's approval decision for a
// previously submitted work.
type ApprovalPayload struct {
	GardenID string `json:"gardenId"`
	WorkRef  string `json:"workRef"`
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

// Validate checks the payload before it ever reaches the queue. A work
// submission must name a garden and carry some content: a title, notes,
// or at least one media reference.
func (p *WorkPayload) Validate() error {
	if strings.TrimSpace(p.GardenID) == "" {
		return NewValidationError("gardenId is required")
	}
	if strings.TrimSpace(p.Title) == "" && strings.TrimSpace(p.Notes) == "" && len(p.Media) == 0 {
		return NewValidationError("work submission is empty: provide a title, notes, or media")
	}
	for _, m := range p.Media {
		if len(m.Data) == 0 && m.URL == "" {
			return NewValidationError(fmt.Sprintf("media %q has neither data nor a URL", m.Name))
		}
	}
	return nil
}

func (p *ApprovalPayload) Validate() error {
	if strings.TrimSpace(p.GardenID) == "" {
		return NewValidationError("gardenId is required")
	}
	if strings.TrimSpace(p.WorkRef) == "" {
		return NewValidationError("workRef is required")
	}
	return nil
}

// ParseWorkPayload decodes and validates a raw work payload.
func ParseWorkPayload(raw json.RawMessage) (*WorkPayload, error) {
	var p WorkPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, NewValidationError("malformed work payload")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseApprovalPayload decodes and validates a raw approval payload.
func ParseApprovalPayload(raw json.RawMessage) (*ApprovalPayload, error) {
	var p ApprovalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, NewValidationError("malformed approval payload")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidateJobPayload validates a raw payload against the job kind.
func ValidateJobPayload(kind JobKind, raw json.RawMessage) error {
	switch kind {
	case JobKindSubmitWork:
		_, err := ParseWorkPayload(raw)
		return err
	case JobKindSubmitApproval:
		_, err := ParseApprovalPayload(raw)
		return err
	default:
		return NewValidationError(fmt.Sprintf("unknown job kind %q", kind))
	}
}

package codec

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/greengoods/api/internal/client"
	"github.com/greengoods/api/internal/model"
)

// Attestation schema identifiers understood by the garden registry.
const (
	SchemaWork     = "greengoods.work.v1"
	SchemaApproval = "greengoods.approval.v1"
)

// EncodedRecord is an attestation ready for dispatch: the registry target,
// the calldata, and the URLs of any media uploaded during encoding.
type EncodedRecord struct {
	To        string
	Data      string
	MediaURLs []string
}

// AttestationCodec turns work and approval payloads into registry calldata.
// Inline media is uploaded to object storage first so the record only
// carries references.
type AttestationCodec struct {
	storage         client.StorageClient
	registryAddress string
}

// NewAttestationCodec creates a new codec
func NewAttestationCodec(storage client.StorageClient, registryAddress string) *AttestationCodec {
	return &AttestationCodec{
		storage:         storage,
		registryAddress: registryAddress,
	}
}

// EncodeWork encodes a work submission for the given gardener. Payload
// problems are validation errors; storage problems are retryable network
// errors.
func (c *AttestationCodec) EncodeWork(ctx context.Context, gardener string, p *model.WorkPayload) (*EncodedRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	mediaURLs, err := c.uploadMedia(ctx, p.GardenID, p.Media)
	if err != nil {
		return nil, err
	}

	record := map[string]interface{}{
		"schema":   SchemaWork,
		"gardener": gardener,
		"gardenId": p.GardenID,
		"actionId": p.ActionID,
		"title":    p.Title,
		"notes":    p.Notes,
		"media":    mediaURLs,
		"metadata": p.Metadata,
	}

	data, err := encodeCalldata(record)
	if err != nil {
		return nil, err
	}

	return &EncodedRecord{To: c.registryAddress, Data: data, MediaURLs: mediaURLs}, nil
}

// EncodeApproval encodes an operator's approval decision.
func (c *AttestationCodec) EncodeApproval(ctx context.Context, operator string, p *model.ApprovalPayload) (*EncodedRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	record := map[string]interface{}{
		"schema":   SchemaApproval,
		"operator": operator,
		"gardenId": p.GardenID,
		"workRef":  p.WorkRef,
		"approved": p.Approved,
		"feedback": p.Feedback,
	}

	data, err := encodeCalldata(record)
	if err != nil {
		return nil, err
	}

	return &EncodedRecord{To: c.registryAddress, Data: data}, nil
}

// EncodeJob encodes whichever payload the job carries. When a work payload
// holds inline media the refs are rewritten to their uploaded URLs and the
// job's payload replaced, so simulate, dispatch and every retry encode the
// exact same calldata and each blob is uploaded once.
func (c *AttestationCodec) EncodeJob(ctx context.Context, job *model.Job) (*EncodedRecord, error) {
	switch job.Kind {
	case model.JobKindSubmitWork:
		p, err := model.ParseWorkPayload(job.Payload)
		if err != nil {
			return nil, err
		}
		uploaded := hasInlineMedia(p.Media)
		record, err := c.EncodeWork(ctx, job.UserAddress, p)
		if err != nil {
			return nil, err
		}
		if uploaded {
			raw, err := json.Marshal(p)
			if err != nil {
				return nil, fmt.Errorf("failed to re-encode payload: %w", err)
			}
			job.Payload = raw
		}
		return record, nil
	case model.JobKindSubmitApproval:
		p, err := model.ParseApprovalPayload(job.Payload)
		if err != nil {
			return nil, err
		}
		return c.EncodeApproval(ctx, job.UserAddress, p)
	default:
		return nil, model.NewValidationError(fmt.Sprintf("unknown job kind %q", job.Kind))
	}
}

// uploadMedia pushes inline media to storage and returns one URL per ref,
// preserving order. Refs that already carry a URL pass through unchanged;
// uploaded refs are rewritten in place to URL form so a later encode of the
// same payload does not upload again.
func (c *AttestationCodec) uploadMedia(ctx context.Context, gardenID string, media []model.MediaRef) ([]string, error) {
	urls := make([]string, 0, len(media))

	for i := range media {
		m := &media[i]
		if m.URL != "" {
			urls = append(urls, m.URL)
			continue
		}
		if c.storage == nil {
			return nil, model.NewNetworkError(fmt.Errorf("media storage not configured"))
		}

		contentType := m.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		key := fmt.Sprintf("works/%s/%s", gardenID, uuid.New().String())
		url, err := c.storage.Upload(ctx, key, bytes.NewReader(m.Data), contentType)
		if err != nil {
			return nil, model.NewNetworkError(fmt.Errorf("media upload failed: %w", err))
		}
		m.URL = url
		m.Data = nil
		urls = append(urls, url)
	}

	return urls, nil
}

// hasInlineMedia reports whether any ref still needs an upload.
func hasInlineMedia(media []model.MediaRef) bool {
	for _, m := range media {
		if m.URL == "" {
			return true
		}
	}
	return false
}

// encodeCalldata renders the record as registry calldata. The registry's
// attest entrypoint accepts the canonical JSON encoding of a schema record.
func encodeCalldata(record map[string]interface{}) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	return "0x" + hex.EncodeToString(data), nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/greengoods/api/internal/model"
	"github.com/greengoods/api/internal/queue"
	"github.com/greengoods/api/internal/store"
)

// ErrForbidden is returned when a caller addresses another user's job.
var ErrForbidden = errors.New("job does not belong to caller")

// JobsService handles job submission and lifecycle queries. It owns the
// write path up to the queue: validation, idempotency reservation and the
// initial record. Everything after that belongs to the queue manager.
type JobsService struct {
	store      *store.JobStore
	manager    *queue.Manager
	maxRetries int
}

func NewJobsService(jobStore *store.JobStore, manager *queue.Manager, maxRetries int) *JobsService {
	return &JobsService{
		store:      jobStore,
		manager:    manager,
		maxRetries: maxRetries,
	}
}

// Enqueue accepts a new job for the given user. The clientWorkId makes the
// call idempotent: a repeat submission returns the job that already owns
// the reservation instead of creating a second one.
func (s *JobsService) Enqueue(ctx context.Context, addr string, backend model.BackendKind, req *model.EnqueueRequest) (*model.EnqueueResponse, error) {
	if err := model.ValidateJobPayload(req.Kind, req.Payload); err != nil {
		return nil, err
	}

	jobID := uuid.New().String()

	ownerID, created, err := s.store.Reserve(ctx, addr, req.ClientWorkID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve clientWorkId: %w", err)
	}

	if !created {
		existing, err := s.store.Get(ctx, ownerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Stale reservation from a pruned job; reclaim it.
				if err := s.store.Release(ctx, addr, req.ClientWorkID); err != nil {
					return nil, fmt.Errorf("failed to release stale reservation: %w", err)
				}
				return s.Enqueue(ctx, addr, backend, req)
			}
			return nil, err
		}
		return &model.EnqueueResponse{
			JobID:     existing.ID,
			Status:    existing.Status,
			Duplicate: true,
			CreatedAt: existing.CreatedAt,
		}, nil
	}

	now := time.Now()
	job := &model.Job{
		ID:           jobID,
		ClientWorkID: req.ClientWorkID,
		Kind:         req.Kind,
		Payload:      req.Payload,
		Backend:      backend,
		Status:       model.JobStatusQueued,
		MaxRetries:   s.maxRetries,
		UserAddress:  addr,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.manager.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	return &model.EnqueueResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		Duplicate: false,
		CreatedAt: now,
	}, nil
}

// GetJob returns one job, enforcing ownership.
func (s *JobsService) GetJob(ctx context.Context, addr, jobID string) (*model.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserAddress != addr {
		return nil, ErrForbidden
	}
	return job, nil
}

// ListJobs returns the user's jobs in FIFO order, optionally filtered by
// status.
func (s *JobsService) ListJobs(ctx context.Context, addr string, statuses ...model.JobStatus) ([]*model.Job, error) {
	return s.store.ListByUser(ctx, addr, statuses...)
}

// Cancel cancels a queued job.
func (s *JobsService) Cancel(ctx context.Context, addr, jobID string) (*model.CancelResponse, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserAddress != addr {
		return nil, ErrForbidden
	}

	cancelled, err := s.manager.Cancel(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.CancelResponse{
		Success: true,
		JobID:   cancelled.ID,
		Status:  cancelled.Status,
	}, nil
}

// AgentSubmit builds a work submission from the conversational bridge's
// flat request and enqueues it on the agent backend. The payload gets the
// same validation as the interactive path; a remote caller has no form to
// correct, so errors must be definitive before the job enters the queue.
func (s *JobsService) AgentSubmit(ctx context.Context, req *model.AgentSubmitRequest) (*model.EnqueueResponse, error) {
	media := make([]model.MediaRef, 0, len(req.MediaURLs))
	for _, u := range req.MediaURLs {
		media = append(media, model.MediaRef{URL: u})
	}

	payload := model.WorkPayload{
		GardenID: req.GardenID,
		ActionID: req.ActionID,
		Title:    req.Title,
		Notes:    req.Notes,
		Media:    media,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal work payload: %w", err)
	}

	enqueue := &model.EnqueueRequest{
		Kind:         model.JobKindSubmitWork,
		ClientWorkID: req.ClientWorkID,
		Payload:      raw,
	}

	return s.Enqueue(ctx, strings.ToLower(req.Address), model.BackendAgent, enqueue)
}

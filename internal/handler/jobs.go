package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/greengoods/api/internal/middleware"
	"github.com/greengoods/api/internal/model"
	"github.com/greengoods/api/internal/queue"
	"github.com/greengoods/api/internal/service"
	"github.com/greengoods/api/internal/store"
	"github.com/greengoods/api/pkg/response"
)

type JobsHandler struct {
	service   *service.JobsService
	validator *validator.Validate
}

func NewJobsHandler(svc *service.JobsService, v *validator.Validate) *JobsHandler {
	return &JobsHandler{
		service:   svc,
		validator: v,
	}
}

// Enqueue handles POST /api/jobs
func (h *JobsHandler) Enqueue(c *fiber.Ctx) error {
	var req model.EnqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	addr := middleware.GetUserAddress(c)
	backend := middleware.GetBackend(c)

	result, err := h.service.Enqueue(c.Context(), addr, backend, &req)
	if err != nil {
		var serr *model.SubmissionError
		if errors.As(err, &serr) && serr.Code == model.CodeValidation {
			return response.ValidationError(c, serr.Message, nil)
		}
		return response.ServiceError(c, err.Error())
	}

	if result.Duplicate {
		return response.OK(c, result)
	}
	return response.Accepted(c, result)
}

// List handles GET /api/jobs
func (h *JobsHandler) List(c *fiber.Ctx) error {
	addr := middleware.GetUserAddress(c)

	var statuses []model.JobStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, model.JobStatus(strings.TrimSpace(s)))
		}
	}

	jobs, err := h.service.ListJobs(c.Context(), addr, statuses...)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.JobListResponse{Jobs: jobs})
}

// Get handles GET /api/jobs/:jobId
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), middleware.GetUserAddress(c), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrForbidden) {
			return response.Forbidden(c, "Job belongs to another user")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// Cancel handles POST /api/jobs/:jobId/cancel
func (h *JobsHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.Cancel(c.Context(), middleware.GetUserAddress(c), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrForbidden) {
			return response.Forbidden(c, "Job belongs to another user")
		}
		if errors.Is(err, queue.ErrNotCancellable) {
			return response.Conflict(c, "Job is no longer queued and cannot be cancelled")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

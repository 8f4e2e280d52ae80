package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/greengoods/api/internal/model"
	"github.com/greengoods/api/internal/service"
)

// AgentHandler serves the conversational bridge. Replies are plain
// sentences, not the JSON error envelope: the caller relays them verbatim
// into a chat thread.
type AgentHandler struct {
	service   *service.JobsService
	validator *validator.Validate
}

func NewAgentHandler(svc *service.JobsService, v *validator.Validate) *AgentHandler {
	return &AgentHandler{
		service:   svc,
		validator: v,
	}
}

// Submit handles POST /agent/submit
func (h *AgentHandler) Submit(c *fiber.Ctx) error {
	var req model.AgentSubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return h.reply(c, fiber.StatusBadRequest, "I could not read that submission. Please try again.")
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.reply(c, fiber.StatusBadRequest, "Your submission is missing required details. Please include the garden and a work reference.")
	}

	result, err := h.service.AgentSubmit(c.Context(), &req)
	if err != nil {
		var serr *model.SubmissionError
		if errors.As(err, &serr) {
			return h.reply(c, fiber.StatusBadRequest, serr.AgentText())
		}
		return h.reply(c, fiber.StatusInternalServerError, "Something went wrong while saving your submission. Please try again later.")
	}

	if result.Duplicate {
		return h.reply(c, fiber.StatusOK, "I already have that submission; no need to send it again. I will keep you posted on its progress.")
	}
	return h.reply(c, fiber.StatusAccepted,
		fmt.Sprintf("Got it! Your work has been recorded and will be submitted to the garden registry. Reference: %s.", result.JobID))
}

// Status handles GET /agent/status/:address
func (h *AgentHandler) Status(c *fiber.Ctx) error {
	address := strings.ToLower(c.Params("address"))
	if address == "" {
		return h.reply(c, fiber.StatusBadRequest, "I need a wallet address to look up submissions.")
	}

	jobs, err := h.service.ListJobs(c.Context(), address)
	if err != nil {
		return h.reply(c, fiber.StatusInternalServerError, "I could not look up your submissions right now. Please try again later.")
	}

	if len(jobs) == 0 {
		return h.reply(c, fiber.StatusOK, "You have no submissions on record.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d submission(s):\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(&b, "- %s: %s", job.ID, describeStatus(job))
		b.WriteString("\n")
	}
	return h.reply(c, fiber.StatusOK, strings.TrimRight(b.String(), "\n"))
}

func describeStatus(job *model.Job) string {
	switch job.Status {
	case model.JobStatusQueued:
		if job.NextAttemptAt != nil {
			return "waiting to retry"
		}
		return "waiting to be submitted"
	case model.JobStatusSimulating, model.JobStatusDispatching:
		return "being submitted now"
	case model.JobStatusAwaitingConfirmation:
		return "submitted, waiting for confirmation"
	case model.JobStatusConfirmed:
		return "confirmed on the garden registry"
	case model.JobStatusConflicted:
		return "already submitted from another device"
	case model.JobStatusCancelled:
		return "cancelled"
	case model.JobStatusFailed:
		if job.LastError != nil {
			return "failed: " + job.LastError.AgentText()
		}
		return "failed"
	}
	return string(job.Status)
}

func (h *AgentHandler) reply(c *fiber.Ctx, status int, text string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(status).SendString(text)
}

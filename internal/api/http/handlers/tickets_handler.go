package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/agentic-support/internal/api/dto"
	"github.com/spec-kit/agentic-support/internal/service"
	apperrors "github.com/spec-kit/agentic-support/pkg/util"
)

// TicketsHandler manages ticket and job endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError([]apperrors.FieldError{{
			Field:   "body",
			Message: "request body must be a JSON object with subject and description",
			Type:    "json_invalid",
		}})
	}

	res, err := h.service.CreateTicket(c.UserContext(), service.TicketCreateInput{
		Subject:     req.Subject,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.JSON(queuedResponse(res))
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketResponse(ticket))
}

// ClassifyTicket POST /tickets/:id/classify.
func (h *TicketsHandler) ClassifyTicket(c *fiber.Ctx) error {
	res, err := h.service.Reclassify(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(queuedResponse(res))
}

// GetJob GET /jobs/:job_id.
func (h *TicketsHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.service.GetJobStatus(c.UserContext(), c.Params("job_id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewJobStatusResponse(job))
}

func queuedResponse(res *service.TicketQueued) dto.TicketQueuedResponse {
	return dto.TicketQueuedResponse{
		TicketID: res.TicketID,
		JobID:    res.JobID,
		Status:   res.Status,
	}
}

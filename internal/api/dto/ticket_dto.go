package dto

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/agentic-support/internal/domain"
)

// CreateTicketRequest is the body of POST /tickets.
type CreateTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// TicketQueuedResponse is returned by ticket creation and re-dispatch.
type TicketQueuedResponse struct {
	TicketID string              `json:"ticket_id"`
	JobID    string              `json:"job_id"`
	Status   domain.TicketStatus `json:"status"`
}

// TicketResponse is the full stored ticket with its id.
type TicketResponse struct {
	ID             string              `json:"id"`
	Subject        string              `json:"subject"`
	Description    string              `json:"description"`
	Status         domain.TicketStatus `json:"status"`
	Classification *domain.Label       `json:"classification"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      *time.Time          `json:"updated_at"`
	JobID          *string             `json:"job_id"`
}

// JobStatusResponse is the job snapshot served by GET /jobs/:job_id.
type JobStatusResponse struct {
	JobID      string           `json:"job_id"`
	Status     domain.JobStatus `json:"status"`
	Result     json.RawMessage  `json:"result"`
	ExcInfo    *string          `json:"exc_info"`
	EnqueuedAt *time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time       `json:"started_at"`
	EndedAt    *time.Time       `json:"ended_at"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:             ticket.ID,
		Subject:        ticket.Subject,
		Description:    ticket.Description,
		Status:         ticket.Status,
		Classification: ticket.Classification,
		CreatedAt:      ticket.CreatedAt.UTC(),
		UpdatedAt:      ticket.UpdatedAt,
		JobID:          ticket.JobID,
	}
}

// NewJobStatusResponse maps a job snapshot.
func NewJobStatusResponse(job *domain.Job) JobStatusResponse {
	return JobStatusResponse{
		JobID:      job.ID,
		Status:     job.Status,
		Result:     job.Result,
		ExcInfo:    job.ExcInfo,
		EnqueuedAt: job.EnqueuedAt,
		StartedAt:  job.StartedAt,
		EndedAt:    job.EndedAt,
	}
}

package events

import (
	"time"

	"github.com/spec-kit/agentic-support/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketQueued     EventType = "ticket_queued"
	EventTicketClassified EventType = "ticket_classified"
)

// Event represents a ticket lifecycle change emitted inside one process.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Subject string `json:"subject"`
}

// TicketQueuedPayload payload. PreviousJobID is set on re-dispatch.
type TicketQueuedPayload struct {
	JobID          string              `json:"job_id"`
	PreviousStatus domain.TicketStatus `json:"previous_status"`
	PreviousJobID  *string             `json:"previous_job_id,omitempty"`
}

// TicketClassifiedPayload payload.
type TicketClassifiedPayload struct {
	Classification domain.Label `json:"classification"`
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/agentic-support/internal/classifier"
	"github.com/spec-kit/agentic-support/internal/domain"
	"github.com/spec-kit/agentic-support/internal/events"
	"github.com/spec-kit/agentic-support/internal/repository"
)

// ClassifyResult is stored as the job result. A missing ticket is a normal
// outcome reported with OK false, not a job failure.
type ClassifyResult struct {
	OK             bool          `json:"ok"`
	Reason         string        `json:"reason,omitempty"`
	TicketID       string        `json:"ticket_id"`
	Classification *domain.Label `json:"classification,omitempty"`
}

// ClassifyTask labels a stored ticket with the rule engine.
type ClassifyTask struct {
	tickets    repository.TicketRepository
	rules      classifier.RuleSet
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewClassifyTask builds the task around an injected repository.
func NewClassifyTask(tickets repository.TicketRepository, rules classifier.RuleSet, dispatcher events.Dispatcher, logger *zap.Logger) *ClassifyTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassifyTask{
		tickets:    tickets,
		rules:      rules,
		dispatcher: dispatcher,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register adds the task to r under domain.TaskClassifyTicket.
func (t *ClassifyTask) Register(r *Registry) {
	r.Register(domain.TaskClassifyTicket, t.Run)
}

// Run decodes the ticket id argument and classifies that ticket.
func (t *ClassifyTask) Run(ctx context.Context, args json.RawMessage) (any, error) {
	var decoded []string
	if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, fmt.Errorf("decode %s args: %w", domain.TaskClassifyTicket, err)
	}
	if len(decoded) != 1 {
		return nil, fmt.Errorf("%s expects 1 argument, got %d", domain.TaskClassifyTicket, len(decoded))
	}
	jobID, _ := JobIDFromContext(ctx)
	return t.Classify(ctx, decoded[0], jobID)
}

// Classify fetches the ticket, computes its label and marks it classified
// under jobID.
func (t *ClassifyTask) Classify(ctx context.Context, ticketID, jobID string) (*ClassifyResult, error) {
	ticket, err := t.tickets.FindByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			t.logger.Warn("ticket vanished before classification", zap.String("ticket_id", ticketID))
			return &ClassifyResult{OK: false, Reason: "not_found", TicketID: ticketID}, nil
		}
		return nil, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}

	label := t.rules.Classify(ticket.Subject, ticket.Description)
	if _, err := t.tickets.UpdateFields(ctx, ticketID, domain.ClassifiedPatch(label, jobID, t.now())); err != nil {
		return nil, fmt.Errorf("store classification for %s: %w", ticketID, err)
	}

	if t.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketClassified,
			TicketID:  ticketID,
			Timestamp: t.now(),
			Payload:   events.TicketClassifiedPayload{Classification: label},
		}
		if err := t.dispatcher.Publish(ctx, event); err != nil {
			t.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return &ClassifyResult{OK: true, TicketID: ticketID, Classification: &label}, nil
}

package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/agentic-support/internal/events"
)

// LifecycleNotifier logs ticket lifecycle events. It is the only subscriber
// today; completion is never pushed to clients, who poll instead.
type LifecycleNotifier struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewLifecycleNotifier creates the notifier.
func NewLifecycleNotifier(dispatcher events.Dispatcher, logger *zap.Logger) *LifecycleNotifier {
	return &LifecycleNotifier{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *LifecycleNotifier) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketQueued, n.handleTicketQueued)
	n.dispatcher.Subscribe(events.EventTicketClassified, n.handleTicketClassified)
}

func (n *LifecycleNotifier) handleTicketCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *LifecycleNotifier) handleTicketQueued(_ context.Context, event events.Event) error {
	fields := []zap.Field{zap.String("ticket_id", event.TicketID)}
	if payload, ok := event.Payload.(events.TicketQueuedPayload); ok {
		fields = append(fields,
			zap.String("job_id", payload.JobID),
			zap.String("previous_status", string(payload.PreviousStatus)))
		if payload.PreviousJobID != nil {
			fields = append(fields, zap.String("replaced_job_id", *payload.PreviousJobID))
		}
	}
	n.logger.Info("TicketQueued", fields...)
	return nil
}

func (n *LifecycleNotifier) handleTicketClassified(_ context.Context, event events.Event) error {
	fields := []zap.Field{zap.String("ticket_id", event.TicketID)}
	if payload, ok := event.Payload.(events.TicketClassifiedPayload); ok {
		fields = append(fields, zap.String("classification", string(payload.Classification)))
	}
	n.logger.Info("TicketClassified", fields...)
	return nil
}

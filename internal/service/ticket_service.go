package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/agentic-support/internal/domain"
	"github.com/spec-kit/agentic-support/internal/events"
	"github.com/spec-kit/agentic-support/internal/repository"
	apperrors "github.com/spec-kit/agentic-support/pkg/util"
)

// JobQueue is the part of the dispatcher the coordinator needs.
type JobQueue interface {
	Enqueue(ctx context.Context, task string, args ...any) (string, error)
	FetchJob(ctx context.Context, jobID string) (*domain.Job, error)
}

// TicketService coordinates the ticket lifecycle between storage and the job queue.
// It never waits for a dispatched job to complete.
type TicketService struct {
	tickets    repository.TicketRepository
	queue      JobQueue
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
	validate   *validator.Validate
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Queue      JobQueue
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// TicketCreateInput describes ticket creation payload. Both fields are
// trimmed before the length rules apply.
type TicketCreateInput struct {
	Subject     string `json:"subject" validate:"required,min=3,max=2000"`
	Description string `json:"description" validate:"required,min=3,max=2000"`
}

// TicketQueued is returned whenever a ticket has been handed to a new job.
type TicketQueued struct {
	TicketID string
	JobID    string
	Status   domain.TicketStatus
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		queue:      deps.Queue,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        func() time.Time { return clock().UTC() },
		validate:   newValidator(),
	}
}

// CreateTicket validates input, persists a new ticket and dispatches its
// classification job. If dispatch fails the ticket stays in status new.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*TicketQueued, error) {
	input.Subject = strings.TrimSpace(input.Subject)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		Subject:     input.Subject,
		Description: input.Description,
		Status:      domain.TicketStatusNew,
		CreatedAt:   s.now(),
	}
	id, err := s.tickets.Insert(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}
	ticket.ID = id

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: id,
		Payload:  events.TicketCreatedPayload{Subject: ticket.Subject},
	})
	return s.dispatch(ctx, ticket)
}

// GetTicket returns the stored ticket.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, translateTicketError(err)
	}
	return ticket, nil
}

// Reclassify dispatches a fresh classification job for an existing ticket and
// moves it back to queued. The previous job id is overwritten whatever the
// current status is.
func (s *TicketService) Reclassify(ctx context.Context, ticketID string) (*TicketQueued, error) {
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, translateTicketError(err)
	}
	return s.dispatch(ctx, ticket)
}

// GetJobStatus returns the dispatcher's view of a job. Result is only kept for
// finished jobs and ExcInfo only for failed ones.
func (s *TicketService) GetJobStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.queue.FetchJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, apperrors.NewJobNotFound(err)
		}
		return nil, apperrors.NewDispatchUnavailable(err)
	}
	if job.Status != domain.JobStatusFinished {
		job.Result = nil
	}
	if job.Status != domain.JobStatusFailed {
		job.ExcInfo = nil
	}
	return job, nil
}

func (s *TicketService) dispatch(ctx context.Context, ticket *domain.Ticket) (*TicketQueued, error) {
	jobID, err := s.queue.Enqueue(ctx, domain.TaskClassifyTicket, ticket.ID)
	if err != nil {
		s.logger.Error("enqueue classification failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, apperrors.NewDispatchUnavailable(err)
	}

	matched, err := s.tickets.UpdateFields(ctx, ticket.ID, domain.QueuedPatch(jobID, s.now()))
	if err != nil {
		return nil, fmt.Errorf("mark ticket %s queued: %w", ticket.ID, translateTicketError(err))
	}
	if matched == 0 {
		return s.unmatchedDispatch(ctx, ticket.ID, jobID)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketQueued,
		TicketID: ticket.ID,
		Payload: events.TicketQueuedPayload{
			JobID:          jobID,
			PreviousStatus: ticket.Status,
			PreviousJobID:  ticket.JobID,
		},
	})
	return &TicketQueued{TicketID: ticket.ID, JobID: jobID, Status: domain.TicketStatusQueued}, nil
}

// unmatchedDispatch explains a queued update that matched nothing: either the
// ticket is gone, or the worker already classified it under jobID and the
// update must not roll it back.
func (s *TicketService) unmatchedDispatch(ctx context.Context, ticketID, jobID string) (*TicketQueued, error) {
	current, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return nil, translateTicketError(err)
	}
	if current.Status != domain.TicketStatusClassified || current.JobID == nil || *current.JobID != jobID {
		return nil, apperrors.NewNotFound("Ticket", domain.ErrTicketNotFound)
	}
	s.logger.Info("job finished before ticket was marked queued",
		zap.String("ticket_id", ticketID),
		zap.String("job_id", jobID))
	return &TicketQueued{TicketID: ticketID, JobID: jobID, Status: domain.TicketStatusQueued}, nil
}

func (s *TicketService) validateInput(input TicketCreateInput) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	details := make([]apperrors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fieldError(fe))
	}
	return apperrors.NewValidationError(details)
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func translateTicketError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidTicketID):
		return apperrors.NewInvalidID("ticket", err)
	case errors.Is(err, domain.ErrTicketNotFound):
		return apperrors.NewNotFound("Ticket", err)
	default:
		return err
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func fieldError(fe validator.FieldError) apperrors.FieldError {
	out := apperrors.FieldError{Field: fe.Field()}
	switch fe.Tag() {
	case "required":
		out.Type = "missing"
		out.Message = "Field required"
	case "min":
		out.Type = "string_too_short"
		out.Message = fmt.Sprintf("String should have at least %s characters", fe.Param())
	case "max":
		out.Type = "string_too_long"
		out.Message = fmt.Sprintf("String should have at most %s characters", fe.Param())
	default:
		out.Type = fe.Tag()
		out.Message = fmt.Sprintf("failed the %s rule", fe.Tag())
	}
	return out
}

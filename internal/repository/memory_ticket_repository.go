package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/agentic-support/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. Ids are UUIDs.
// It backs tests and local runs without a database.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	pingErr error
}

// NewMemoryTicketRepository returns an empty repository.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]domain.Ticket)}
}

func (r *MemoryTicketRepository) Insert(_ context.Context, ticket *domain.Ticket) (string, error) {
	id := uuid.NewString()
	stored := cloneTicket(*ticket)
	stored.ID = id

	r.mu.Lock()
	r.tickets[id] = stored
	r.mu.Unlock()
	return id, nil
}

func (r *MemoryTicketRepository) FindByID(_ context.Context, id string) (*domain.Ticket, error) {
	key, err := memoryKey(id)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	stored, ok := r.tickets[key]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	ticket := cloneTicket(stored)
	return &ticket, nil
}

func (r *MemoryTicketRepository) UpdateFields(_ context.Context, id string, patch domain.TicketPatch) (int64, error) {
	key, err := memoryKey(id)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[key]
	if !ok || patch.Skips(stored) {
		return 0, nil
	}
	patch.Apply(&stored)
	r.tickets[key] = stored
	return 1, nil
}

func (r *MemoryTicketRepository) Ping(context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pingErr
}

// SetPingError makes subsequent Ping calls fail with err; nil restores health.
func (r *MemoryTicketRepository) SetPingError(err error) {
	r.mu.Lock()
	r.pingErr = err
	r.mu.Unlock()
}

// Len reports how many tickets are stored.
func (r *MemoryTicketRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tickets)
}

// memoryKey maps any accepted UUID spelling to the canonical form ids are stored under.
func memoryKey(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidTicketID, id)
	}
	return parsed.String(), nil
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	if t.Classification != nil {
		label := *t.Classification
		t.Classification = &label
	}
	if t.UpdatedAt != nil {
		ts := *t.UpdatedAt
		t.UpdatedAt = &ts
	}
	if t.JobID != nil {
		id := *t.JobID
		t.JobID = &id
	}
	return t
}

var _ TicketRepository = (*MemoryTicketRepository)(nil)

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/agentic-support/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
//
// Implementations return domain.ErrInvalidTicketID for ids that are not in the
// store's native format and domain.ErrTicketNotFound when nothing matches.
// UpdateFields is a partial merge with last-writer-wins semantics.
type TicketRepository interface {
	Insert(ctx context.Context, ticket *domain.Ticket) (string, error)
	FindByID(ctx context.Context, id string) (*domain.Ticket, error)
	UpdateFields(ctx context.Context, id string, patch domain.TicketPatch) (int64, error)
	Ping(ctx context.Context) error
}

type postgresTicketRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketRepository instantiates a repository backed by the tickets table.
func NewPostgresTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &postgresTicketRepository{pool: pool}
}

func (r *postgresTicketRepository) Insert(ctx context.Context, ticket *domain.Ticket) (string, error) {
	const query = `
        INSERT INTO tickets (subject, description, status, classification, job_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, query,
		ticket.Subject,
		ticket.Description,
		string(ticket.Status),
		labelToNullable(ticket.Classification),
		ticket.JobID,
		ticket.CreatedAt.UTC(),
		ticket.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (r *postgresTicketRepository) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	parsed, err := parsePostgresID(id)
	if err != nil {
		return nil, err
	}

	const query = `
        SELECT id, subject, description, status, classification, job_id, created_at, updated_at
        FROM tickets WHERE id=$1`
	var (
		ticketID       uuid.UUID
		ticket         domain.Ticket
		status         string
		classification *string
	)
	if err := r.pool.QueryRow(ctx, query, parsed).Scan(
		&ticketID,
		&ticket.Subject,
		&ticket.Description,
		&status,
		&classification,
		&ticket.JobID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}

	ticket.ID = ticketID.String()
	ticket.Status = domain.TicketStatus(status)
	ticket.Classification = nullableToLabel(classification)
	ticket.CreatedAt = ticket.CreatedAt.UTC()
	if ticket.UpdatedAt != nil {
		ts := ticket.UpdatedAt.UTC()
		ticket.UpdatedAt = &ts
	}
	return &ticket, nil
}

func (r *postgresTicketRepository) UpdateFields(ctx context.Context, id string, patch domain.TicketPatch) (int64, error) {
	parsed, err := parsePostgresID(id)
	if err != nil {
		return 0, err
	}
	query, args := buildTicketUpdate(parsed, patch)
	if query == "" {
		return 0, nil
	}
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *postgresTicketRepository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return r.pool.Ping(ctx)
}

// buildTicketUpdate renders an UPDATE touching only the fields set in patch,
// plus the patch's classified-job guard. An empty patch yields an empty query.
func buildTicketUpdate(id uuid.UUID, patch domain.TicketPatch) (string, []any) {
	clauses := []string{}
	args := []any{}

	set := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	switch {
	case patch.ClearClassification:
		set("classification", nil)
	case patch.Classification != nil:
		set("classification", string(*patch.Classification))
	}
	if patch.UpdatedAt != nil {
		set("updated_at", patch.UpdatedAt.UTC())
	}
	if patch.JobID != nil {
		set("job_id", *patch.JobID)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE tickets SET %s WHERE id=$%d", strings.Join(clauses, ", "), len(args))
	if patch.UnlessClassifiedBy != nil {
		args = append(args, string(domain.TicketStatusClassified), *patch.UnlessClassifiedBy)
		query += fmt.Sprintf(" AND NOT (status=$%d AND job_id IS NOT DISTINCT FROM $%d)", len(args)-1, len(args))
	}
	return query, args
}

func parsePostgresID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", domain.ErrInvalidTicketID, id)
	}
	return parsed, nil
}

func labelToNullable(label *domain.Label) *string {
	if label == nil {
		return nil
	}
	s := string(*label)
	return &s
}

func nullableToLabel(s *string) *domain.Label {
	if s == nil {
		return nil
	}
	label := domain.Label(*s)
	return &label
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/spec-kit/agentic-support/internal/domain"
)

// ticketDocument is the stored shape of a ticket. Nil pointers are written as
// BSON null so every document carries the full field set.
type ticketDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Subject        string             `bson:"subject"`
	Description    string             `bson:"description"`
	Status         string             `bson:"status"`
	Classification *string            `bson:"classification"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      *time.Time         `bson:"updated_at"`
	JobID          *string            `bson:"job_id"`
}

type mongoTicketRepository struct {
	collection *mongo.Collection
}

// NewMongoTicketRepository instantiates a repository over the given collection.
func NewMongoTicketRepository(collection *mongo.Collection) TicketRepository {
	return &mongoTicketRepository{collection: collection}
}

func (r *mongoTicketRepository) Insert(ctx context.Context, ticket *domain.Ticket) (string, error) {
	doc := toTicketDocument(ticket)
	res, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return "", err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

func (r *mongoTicketRepository) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return nil, err
	}

	var doc ticketDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *mongoTicketRepository) UpdateFields(ctx context.Context, id string, patch domain.TicketPatch) (int64, error) {
	oid, err := parseObjectID(id)
	if err != nil {
		return 0, err
	}
	set := patchToSet(patch)
	if len(set) == 0 {
		return 0, nil
	}
	res, err := r.collection.UpdateOne(ctx, patchFilter(oid, patch), bson.M{"$set": set})
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (r *mongoTicketRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, readpref.Primary())
}

// patchFilter selects the ticket unless the patch's guard excludes it.
func patchFilter(oid primitive.ObjectID, patch domain.TicketPatch) bson.M {
	filter := bson.M{"_id": oid}
	if patch.UnlessClassifiedBy != nil {
		filter["$nor"] = bson.A{bson.M{
			"status": string(domain.TicketStatusClassified),
			"job_id": *patch.UnlessClassifiedBy,
		}}
	}
	return filter
}

// patchToSet builds the $set document for a partial update.
func patchToSet(patch domain.TicketPatch) bson.M {
	set := bson.M{}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	switch {
	case patch.ClearClassification:
		set["classification"] = nil
	case patch.Classification != nil:
		set["classification"] = string(*patch.Classification)
	}
	if patch.UpdatedAt != nil {
		set["updated_at"] = patch.UpdatedAt.UTC()
	}
	if patch.JobID != nil {
		set["job_id"] = *patch.JobID
	}
	return set
}

func parseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", domain.ErrInvalidTicketID, id)
	}
	return oid, nil
}

func toTicketDocument(ticket *domain.Ticket) ticketDocument {
	doc := ticketDocument{
		Subject:        ticket.Subject,
		Description:    ticket.Description,
		Status:         string(ticket.Status),
		Classification: labelToNullable(ticket.Classification),
		CreatedAt:      ticket.CreatedAt.UTC(),
		JobID:          ticket.JobID,
	}
	if ticket.UpdatedAt != nil {
		ts := ticket.UpdatedAt.UTC()
		doc.UpdatedAt = &ts
	}
	return doc
}

func (d ticketDocument) toDomain() *domain.Ticket {
	ticket := &domain.Ticket{
		ID:             d.ID.Hex(),
		Subject:        d.Subject,
		Description:    d.Description,
		Status:         domain.TicketStatus(d.Status),
		Classification: nullableToLabel(d.Classification),
		CreatedAt:      d.CreatedAt.UTC(),
		JobID:          d.JobID,
	}
	if d.UpdatedAt != nil {
		ts := d.UpdatedAt.UTC()
		ticket.UpdatedAt = &ts
	}
	return ticket
}

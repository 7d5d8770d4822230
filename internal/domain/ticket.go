package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "new"
	TicketStatusQueued     TicketStatus = "queued"
	TicketStatusClassified TicketStatus = "classified"
	// TicketStatusFailed is reserved; nothing in this service writes it yet.
	TicketStatusFailed TicketStatus = "failed"
)

// Label is a classification category assigned by the rule engine.
type Label string

const (
	LabelAuth    Label = "auth"
	LabelBilling Label = "billing"
	LabelAccount Label = "account"
	LabelGeneral Label = "general"
)

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID             string
	Subject        string
	Description    string
	Status         TicketStatus
	Classification *Label
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	JobID          *string
}

// TicketPatch names the fields an update overwrites. Nil fields are left untouched.
// ClearClassification takes precedence over Classification.
//
// When UnlessClassifiedBy is set the update matches nothing if the ticket is
// already classified under that job id.
type TicketPatch struct {
	Status              *TicketStatus
	Classification      *Label
	ClearClassification bool
	UpdatedAt           *time.Time
	JobID               *string
	UnlessClassifiedBy  *string
}

// Skips reports whether the patch's guard excludes t.
func (p TicketPatch) Skips(t Ticket) bool {
	return p.UnlessClassifiedBy != nil &&
		t.Status == TicketStatusClassified &&
		t.JobID != nil && *t.JobID == *p.UnlessClassifiedBy
}

// Apply merges the patch into t.
func (p TicketPatch) Apply(t *Ticket) {
	if p.Status != nil {
		t.Status = *p.Status
	}
	switch {
	case p.ClearClassification:
		t.Classification = nil
	case p.Classification != nil:
		label := *p.Classification
		t.Classification = &label
	}
	if p.UpdatedAt != nil {
		ts := *p.UpdatedAt
		t.UpdatedAt = &ts
	}
	if p.JobID != nil {
		id := *p.JobID
		t.JobID = &id
	}
}

// QueuedPatch moves a ticket to queued for the given job. Any previous
// classification is dropped since it belongs to an older job. The job can
// finish before this patch is written; the guard keeps its result.
func QueuedPatch(jobID string, at time.Time) TicketPatch {
	status := TicketStatusQueued
	at = at.UTC()
	guard := jobID
	return TicketPatch{
		Status:              &status,
		ClearClassification: true,
		UpdatedAt:           &at,
		JobID:               &jobID,
		UnlessClassifiedBy:  &guard,
	}
}

// ClassifiedPatch records the worker's label and the job that produced it.
// An empty jobID leaves job_id untouched.
func ClassifiedPatch(label Label, jobID string, at time.Time) TicketPatch {
	status := TicketStatusClassified
	at = at.UTC()
	patch := TicketPatch{
		Status:         &status,
		Classification: &label,
		UpdatedAt:      &at,
	}
	if jobID != "" {
		patch.JobID = &jobID
	}
	return patch
}

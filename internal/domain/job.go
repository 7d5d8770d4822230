package domain

import (
	"encoding/json"
	"time"
)

// TaskClassifyTicket is the registered name of the classification task. Its
// single argument is the ticket id.
const TaskClassifyTicket = "classify_ticket"

// JobStatus enumerates states of a dispatched job.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusStarted  JobStatus = "started"
	JobStatusFinished JobStatus = "finished"
	JobStatusFailed   JobStatus = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed
}

// Job is a snapshot of a job record owned by the dispatcher.
type Job struct {
	ID         string
	Task       string
	Args       json.RawMessage
	Origin     string
	Status     JobStatus
	Result     json.RawMessage
	ExcInfo    *string
	EnqueuedAt *time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
}

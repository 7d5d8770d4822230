package domain

import "errors"

var (
	// ErrInvalidTicketID is returned when an id is not in the store's native format.
	ErrInvalidTicketID = errors.New("invalid ticket id")

	// ErrTicketNotFound is returned when no ticket matches the id.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrJobNotFound is returned when the dispatcher holds no record for a job id.
	ErrJobNotFound = errors.New("job not found")
)

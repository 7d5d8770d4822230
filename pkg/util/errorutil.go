package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Error types rendered in the response envelope.
const (
	TypeValidation          = "validation_error"
	TypeInvalidID           = "invalid_id"
	TypeNotFound            = "not_found"
	TypeJobNotFound         = "job_not_found"
	TypeDispatchUnavailable = "dispatch_unavailable"
	TypeInternal            = "internal_error"
	TypeHTTP                = "http_error"
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// DomainError standardizes application errors.
type DomainError struct {
	Type       string
	Message    string
	HTTPStatus int
	Details    []FieldError
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(errType, message string, status int, err error) *DomainError {
	return &DomainError{Type: errType, Message: message, HTTPStatus: status, Err: err}
}

func NewValidationError(details []FieldError) error {
	return &DomainError{
		Type:       TypeValidation,
		Message:    "request validation failed",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func NewInvalidID(resource string, err error) error {
	return NewDomainError(TypeInvalidID, fmt.Sprintf("Invalid %s id", resource), http.StatusBadRequest, err)
}

func NewNotFound(resource string, err error) error {
	return NewDomainError(TypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, err)
}

func NewJobNotFound(err error) error {
	return NewDomainError(TypeJobNotFound, "Job not found", http.StatusNotFound, err)
}

func NewDispatchUnavailable(err error) error {
	return NewDomainError(TypeDispatchUnavailable, "job queue unavailable", http.StatusServiceUnavailable, err)
}

func NewInternalError(err error) error {
	return NewDomainError(TypeInternal, "internal server error", http.StatusInternalServerError, err)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return NewDomainError(TypeHTTP, fiberErr.Message, fiberErr.Code, err)
	}
	return NewDomainError(TypeInternal, "internal server error", http.StatusInternalServerError, err)
}

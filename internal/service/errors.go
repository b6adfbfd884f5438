package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/careminder/internal/domain"
	"github.com/phrazzld/careminder/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check for them with errors.Is; the API layer maps them to status codes.
var (
	// ErrNotFound indicates the referenced occurrence, item or plan does not
	// exist or belongs to another patient.
	// API layer should map this to HTTP 404 Not Found.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyResolved indicates the occurrence or checklist item was already
	// fulfilled, missed, superseded or completed. It is a benign race.
	// API layer should map this to HTTP 409 Conflict.
	ErrAlreadyResolved = errors.New("already resolved")

	// ErrUnavailable indicates the store stayed unreachable for the whole retry
	// budget.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrUnavailable = errors.New("store unavailable")

	// ErrInvalidInput indicates a request that fails validation before any
	// store access.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidInput = errors.New("invalid input")
)

// ServiceError wraps unexpected errors from a service operation with context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "check_in", "submit_note_result")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a ServiceError.
// Known sentinel errors are returned directly, and store-level conditions are
// translated to their service-level counterparts.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidSchedule):
		return err
	case store.IsNotFoundError(err):
		return ErrNotFound
	case errors.Is(err, store.ErrStatusConflict):
		return ErrAlreadyResolved
	case store.IsTransientError(err):
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, operation, err)
	}

	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

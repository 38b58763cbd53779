// Package services implements the engine's business operations on top of the
// persistence layer: definition management, instance control and scheduled
// task administration.
package services

import (
	"errors"
	"fmt"

	"github.com/orchonhq/orchon/pkg/persistence"
)

// Business logic errors indicating client mistakes (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidCron        = errors.New("invalid cron expression")
	ErrWorkflowNil        = errors.New("workflow cannot be nil")
	ErrUnknownActionType  = errors.New("unknown action type")
	ErrInvalidParameters  = errors.New("invalid action parameters")
	ErrMissingTaskPayload = errors.New("scheduled task needs a workflow or an inline action")

	// Business logic conflicts (409 Conflict).
	ErrWorkflowNotActive       = errors.New("workflow is not active")
	ErrActiveInstancesExist    = errors.New("workflow has active instances")
	ErrInstanceAlreadyFinished = errors.New("instance has already finished")
	ErrAlreadyInRequestedState = errors.New("already in the requested state")
	ErrStaleVersion            = persistence.ErrConcurrentModification
)

// ServiceError wraps service-level errors with the failing operation.
type ServiceError struct {
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	if err == nil {
		err = ErrInvalidRequest
	}

	return &ServiceError{Op: op, Message: message, Err: err}
}

// NewConflictError creates a conflict error with context.
func NewConflictError(op, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Message: message, Err: err}
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidCron) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrUnknownActionType) ||
		errors.Is(err, ErrInvalidParameters) ||
		errors.Is(err, ErrMissingTaskPayload)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowNotActive) ||
		errors.Is(err, ErrActiveInstancesExist) ||
		errors.Is(err, ErrInstanceAlreadyFinished) ||
		errors.Is(err, ErrAlreadyInRequestedState) ||
		errors.Is(err, ErrStaleVersion)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsWorkflowNotFound(err) ||
		persistence.IsInstanceNotFound(err) ||
		persistence.IsTaskNotFound(err)
}

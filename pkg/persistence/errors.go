// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates no definition exists for the identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInstanceNotFound indicates no workflow instance exists for the identifier.
	ErrInstanceNotFound = errors.New("workflow instance not found")

	// ErrTaskNotFound indicates no scheduled task exists for the identifier.
	ErrTaskNotFound = errors.New("scheduled task not found")

	// ErrConcurrentModification indicates a stale write: the record changed
	// since the caller read it. Callers should re-read and retry.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// StoreError wraps storage errors with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g. "GetByID", "Save")
	Entity string // Entity kind (e.g. "workflow", "scheduled_task")
	ID     string // Record ID if applicable
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a storage error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing definition.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsInstanceNotFound checks if an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsTaskNotFound checks if an error indicates a missing scheduled task.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsConcurrentModification checks if an error indicates a stale write.
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

package models

import (
	"errors"
	"fmt"
)

var ErrInvalidAction = errors.New("invalid action")

// Action is one unit of work inside a workflow definition. Type names a
// registered action implementation; Parameters is passed to its factory.
// MaxRetries, when set, overrides the definition's default retry budget.
// DelaySeconds is a fixed pause applied before the action runs.
type Action struct {
	ID           string         `json:"id"`
	Type         string         `json:"action_type"             validate:"required"`
	Parameters   map[string]any `json:"parameters"`
	MaxRetries   *int           `json:"max_retries,omitempty"   validate:"omitempty,min=0"`
	DelaySeconds int            `json:"delay_seconds,omitempty" validate:"min=0"`
}

// Validate checks structural constraints. Whether Type names a registered
// action, and whether Parameters satisfy its schema, is checked by the
// registry at save time.
func (a *Action) Validate() error {
	if a.Type == "" {
		return fmt.Errorf("%w: action_type is required", ErrInvalidAction)
	}

	if a.MaxRetries != nil && *a.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidAction)
	}

	if a.DelaySeconds < 0 {
		return fmt.Errorf("%w: delay_seconds must not be negative", ErrInvalidAction)
	}

	return nil
}

// Package models defines the core domain models for workflow automation and scheduled tasks.
package models

import (
	"errors"
	"fmt"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"    // Editable, never dispatched
	WorkflowStatusActive   WorkflowStatus = "active"   // Eligible for trigger dispatch
	WorkflowStatusInactive WorkflowStatus = "inactive" // Disabled, existing instances unaffected
)

// DefaultMaxRetries is the global per-action retry budget used when neither
// the action nor the owning definition sets one.
const DefaultMaxRetries = 3

var ErrInvalidWorkflow = errors.New("invalid workflow definition")

// WorkflowDefinition is a named, ordered set of triggers and actions.
// Only definitions in the active status are considered by the dispatcher;
// draft and inactive definitions are inert.
type WorkflowDefinition struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"                          validate:"required,min=3"`
	Description       string         `json:"description,omitempty"`
	Status            WorkflowStatus `json:"status"                        validate:"required,oneof=draft active inactive"`
	Triggers          []Trigger      `json:"triggers"`
	Actions           []Action       `json:"actions"`
	DefaultMaxRetries *int           `json:"default_max_retries,omitempty" validate:"omitempty,min=0"`
	Version           int64          `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Dispatchable reports whether the definition may produce new instances.
func (w *WorkflowDefinition) Dispatchable() bool {
	return w.Status == WorkflowStatusActive
}

// Validate performs structural validation. Cron expressions inside schedule
// triggers are parsed here so malformed schedules are rejected at save time,
// not when the scheduler first evaluates them.
func (w *WorkflowDefinition) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidWorkflow)
	}

	switch w.Status {
	case WorkflowStatusDraft, WorkflowStatusActive, WorkflowStatusInactive:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidWorkflow, w.Status)
	}

	for i, trigger := range w.Triggers {
		if err := trigger.Validate(); err != nil {
			return fmt.Errorf("trigger %d: %w", i, err)
		}
	}

	for i, action := range w.Actions {
		if err := action.Validate(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}

	return nil
}

// RetryBudgetFor resolves the retry budget for one action: the action's own
// max_retries, else the definition default, else DefaultMaxRetries.
func (w *WorkflowDefinition) RetryBudgetFor(action *Action) int {
	if action.MaxRetries != nil {
		return *action.MaxRetries
	}

	if w.DefaultMaxRetries != nil {
		return *w.DefaultMaxRetries
	}

	return DefaultMaxRetries
}

// WorkflowStats aggregates definition and instance counts for the stats endpoint.
type WorkflowStats struct {
	TotalWorkflows     int     `json:"total_workflows"`
	ActiveWorkflows    int     `json:"active_workflows"`
	TotalInstances     int     `json:"total_instances"`
	CompletedInstances int     `json:"completed_instances"`
	FailedInstances    int     `json:"failed_instances"`
	AverageExecutionMs float64 `json:"average_execution_time_ms"`
}

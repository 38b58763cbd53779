// Package web provides the REST API for workflow, instance and scheduled
// task management. Successful responses share one envelope:
//
//	{"success": true, "data": ...}
//
// Errors are RFC 7807 problem documents.
package web

import "github.com/orchonhq/orchon/pkg/models"

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name              string           `json:"name"                          validate:"required,min=3"`
	Description       string           `json:"description"`
	Status            string           `json:"status"                        validate:"omitempty,oneof=draft active inactive"`
	Triggers          []models.Trigger `json:"triggers"`
	Actions           []models.Action  `json:"actions"`
	DefaultMaxRetries *int             `json:"default_max_retries,omitempty" validate:"omitempty,min=0"`
}

// UpdateWorkflowRequest is the request body for updating a workflow. Version
// is the value the client last read; the update is rejected when it is stale.
type UpdateWorkflowRequest struct {
	Name              string           `json:"name"                          validate:"required,min=3"`
	Description       string           `json:"description"`
	Status            string           `json:"status"                        validate:"required,oneof=draft active inactive"`
	Triggers          []models.Trigger `json:"triggers"`
	Actions           []models.Action  `json:"actions"`
	DefaultMaxRetries *int             `json:"default_max_retries,omitempty" validate:"omitempty,min=0"`
	Version           int64            `json:"version"                       validate:"required,min=1"`
}

// TriggerWorkflowRequest is the optional request body for manually starting
// a workflow.
type TriggerWorkflowRequest struct {
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// CreateInstanceRequest is the request body for starting a workflow through
// the instances collection.
type CreateInstanceRequest struct {
	WorkflowID  string         `json:"workflow_id" validate:"required"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// ToggleRequest optionally pins the state a toggle should land in. A flip
// that would change nothing is rejected, so two racing toggles cannot net
// out silently. Without a body the toggle flips blindly.
type ToggleRequest struct {
	IsEnabled *bool `json:"is_enabled,omitempty"`
}

// PublishEventRequest is the request body for submitting an external domain
// event to the dispatcher.
type PublishEventRequest struct {
	EventType string         `json:"event_type" validate:"required,min=1"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// CreateTaskRequest is the request body for creating a scheduled task.
type CreateTaskRequest struct {
	TaskName       string         `json:"task_name"             validate:"required,min=3"`
	TaskType       string         `json:"task_type"             validate:"required,oneof=workflow action report cleanup"`
	CronExpression string         `json:"cron_expression"       validate:"required"`
	IsEnabled      *bool          `json:"is_enabled,omitempty"`
	MaxRetries     int            `json:"max_retries"           validate:"min=0"`
	WorkflowID     string         `json:"workflow_id,omitempty"`
	Action         *models.Action `json:"action,omitempty"`
}

// UpdateTaskRequest is the request body for updating a scheduled task.
type UpdateTaskRequest struct {
	TaskName       string         `json:"task_name"             validate:"required,min=3"`
	TaskType       string         `json:"task_type"             validate:"required,oneof=workflow action report cleanup"`
	CronExpression string         `json:"cron_expression"       validate:"required"`
	IsEnabled      bool           `json:"is_enabled"`
	MaxRetries     int            `json:"max_retries"           validate:"min=0"`
	WorkflowID     string         `json:"workflow_id,omitempty"`
	Action         *models.Action `json:"action,omitempty"`
	Version        int64          `json:"version"               validate:"required,min=1"`
}

// ActionTypeResponse describes one registered action type and its
// configuration schema.
type ActionTypeResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

package models

import "time"

// InstanceStatus represents the lifecycle state of a workflow instance.
type InstanceStatus string

const (
	InstanceStatusPending   InstanceStatus = "pending"
	InstanceStatusRunning   InstanceStatus = "running"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusFailed    InstanceStatus = "failed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s InstanceStatus) Terminal() bool {
	switch s {
	case InstanceStatusCompleted, InstanceStatusFailed, InstanceStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowInstance is one execution of a workflow definition. It is created
// pending by the dispatcher, owned by the executor while running, and is its
// own audit record once terminal: completion metadata lives on the row itself.
type WorkflowInstance struct {
	ID                 string         `json:"id"`
	WorkflowID         string         `json:"workflow_id"`
	Status             InstanceStatus `json:"status"`
	TriggerData        map[string]any `json:"trigger_data,omitempty"`
	CurrentActionIndex int            `json:"current_action_index"`
	ExecutedActions    int            `json:"executed_actions"`
	FailedActions      int            `json:"failed_actions"`
	ProgressPercentage int            `json:"progress_percentage"`
	Error              string         `json:"error,omitempty"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// NewWorkflowInstance creates a pending instance carrying the trigger payload.
func NewWorkflowInstance(id, workflowID string, triggerData map[string]any) *WorkflowInstance {
	now := time.Now().UTC()

	return &WorkflowInstance{
		ID:          id,
		WorkflowID:  workflowID,
		Status:      InstanceStatusPending,
		TriggerData: triggerData,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkRunning transitions pending -> running.
func (i *WorkflowInstance) MarkRunning(now time.Time) {
	i.Status = InstanceStatusRunning
	i.StartedAt = &now
	i.UpdatedAt = now
}

// MarkCompleted transitions running -> completed.
func (i *WorkflowInstance) MarkCompleted(now time.Time) {
	i.Status = InstanceStatusCompleted
	i.ProgressPercentage = 100
	i.CompletedAt = &now
	i.UpdatedAt = now
}

// MarkFailed transitions running -> failed, recording the last failure reason.
func (i *WorkflowInstance) MarkFailed(now time.Time, reason string) {
	i.Status = InstanceStatusFailed
	i.Error = reason
	i.CompletedAt = &now
	i.UpdatedAt = now
}

// MarkCancelled transitions pending/running -> cancelled.
func (i *WorkflowInstance) MarkCancelled(now time.Time) {
	i.Status = InstanceStatusCancelled
	i.CompletedAt = &now
	i.UpdatedAt = now
}

// AdvanceAction records one successfully completed action out of total.
func (i *WorkflowInstance) AdvanceAction(total int) {
	i.CurrentActionIndex++
	i.ExecutedActions++

	if total > 0 {
		i.ProgressPercentage = i.ExecutedActions * 100 / total
	}

	i.UpdatedAt = time.Now().UTC()
}

// InstanceStats aggregates instance counts for the stats endpoint.
type InstanceStats struct {
	Total              int     `json:"total"`
	Completed          int     `json:"completed"`
	Failed             int     `json:"failed"`
	AverageExecutionMs float64 `json:"average_execution_time_ms"`
}

// DurationMs returns the wall-clock execution time, or 0 when not terminal.
func (i *WorkflowInstance) DurationMs() int64 {
	if i.StartedAt == nil || i.CompletedAt == nil {
		return 0
	}

	return i.CompletedAt.Sub(*i.StartedAt).Milliseconds()
}

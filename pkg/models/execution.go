package models

import "time"

// ExecutionStatus is the recorded outcome of one scheduled-task run.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
	// ExecutionStatusSkipped means the run lock was held by a previous run
	// still in flight. Expected under normal operation, not a fault.
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// ScheduledTaskExecution is an append-only audit row for one scheduler-
// triggered run. Never mutated after creation.
type ScheduledTaskExecution struct {
	ID           string          `json:"id"`
	TaskID       string          `json:"task_id"`
	Status       ExecutionStatus `json:"status"`
	ExecutedAt   time.Time       `json:"executed_at"`
	DurationMs   int64           `json:"duration_ms"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

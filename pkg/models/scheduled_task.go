package models

import (
	"errors"
	"fmt"
	"time"
)

// ScheduledTaskType categorizes what a scheduled task does when it fires.
type ScheduledTaskType string

const (
	TaskTypeWorkflow ScheduledTaskType = "workflow" // Triggers an attached workflow definition
	TaskTypeAction   ScheduledTaskType = "action"   // Runs a single inline action ("bare" cron job)
	TaskTypeReport   ScheduledTaskType = "report"
	TaskTypeCleanup  ScheduledTaskType = "cleanup"
)

var ErrInvalidScheduledTask = errors.New("invalid scheduled task")

// ScheduledTask is a cron-driven unit that fires independently of event
// triggers. It may wrap a workflow (WorkflowID set) or carry a single inline
// action. NextRunAt is precomputed so the scheduler can scan for due tasks
// with one query instead of keeping a timer per task; it is recomputed when a
// run starts, never reused, so a task firing every minute cannot double-fire.
// RunningSince is the persistence-backed run lock: non-nil while a run is in
// flight.
type ScheduledTask struct {
	ID             string            `json:"id"`
	TaskName       string            `json:"task_name"       validate:"required,min=3"`
	TaskType       ScheduledTaskType `json:"task_type"       validate:"required,oneof=workflow action report cleanup"`
	CronExpression string            `json:"cron_expression" validate:"required"`
	IsEnabled      bool              `json:"is_enabled"`
	MaxRetries     int               `json:"max_retries"     validate:"min=0"`
	WorkflowID     string            `json:"workflow_id,omitempty"`
	Action         *Action           `json:"action,omitempty"`
	LastRunAt      *time.Time        `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time        `json:"next_run_at,omitempty"`
	RunningSince   *time.Time        `json:"running_since,omitempty"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewScheduledTask creates an enabled task with its first run time computed.
func NewScheduledTask(id, name string, taskType ScheduledTaskType, cronExpression string) (*ScheduledTask, error) {
	now := time.Now().UTC()

	task := &ScheduledTask{
		ID:             id,
		TaskName:       name,
		TaskType:       taskType,
		CronExpression: cronExpression,
		IsEnabled:      true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := task.ComputeNextRun(now); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate rejects malformed tasks before persistence. The cron expression is
// parsed here so bad input fails at save time, not in the scheduler loop.
func (t *ScheduledTask) Validate() error {
	if t.TaskName == "" {
		return fmt.Errorf("%w: task_name is required", ErrInvalidScheduledTask)
	}

	switch t.TaskType {
	case TaskTypeWorkflow, TaskTypeAction, TaskTypeReport, TaskTypeCleanup:
	default:
		return fmt.Errorf("%w: unknown task_type %q", ErrInvalidScheduledTask, t.TaskType)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalidScheduledTask)
	}

	if t.TaskType == TaskTypeWorkflow && t.WorkflowID == "" {
		return fmt.Errorf("%w: workflow task requires workflow_id", ErrInvalidScheduledTask)
	}

	if t.Action != nil {
		if err := t.Action.Validate(); err != nil {
			return err
		}
	}

	if _, err := ParseCron(t.CronExpression); err != nil {
		return fmt.Errorf("%w: cron expression %q: %w", ErrInvalidScheduledTask, t.CronExpression, err)
	}

	return nil
}

// ComputeNextRun recomputes NextRunAt from the reference time. The reference
// is the moment the run starts, not when it finishes, which keeps the cadence
// fixed regardless of execution duration.
func (t *ScheduledTask) ComputeNextRun(reference time.Time) error {
	schedule, err := ParseCron(t.CronExpression)
	if err != nil {
		return err
	}

	next := schedule.Next(reference)
	t.NextRunAt = &next
	t.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue reports whether the task should fire at the given time.
func (t *ScheduledTask) IsDue(now time.Time) bool {
	return t.IsEnabled && t.NextRunAt != nil && !t.NextRunAt.After(now)
}

// SetEnabled toggles the task. Disabling clears NextRunAt so the task drops
// out of due-task scans; enabling recomputes it from now.
func (t *ScheduledTask) SetEnabled(enabled bool) error {
	t.IsEnabled = enabled

	if !enabled {
		t.NextRunAt = nil
		t.UpdatedAt = time.Now().UTC()

		return nil
	}

	return t.ComputeNextRun(time.Now().UTC())
}

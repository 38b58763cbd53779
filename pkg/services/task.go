package services

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
)

// ErrTaskNotFound is returned when a scheduled task is not found.
var ErrTaskNotFound = persistence.ErrTaskNotFound

// Task manages scheduled task definitions and their execution history.
type Task struct {
	persistence persistence.Persistence
	registry    ParameterValidator
	validate    *validator.Validate
}

// ParameterValidator checks an action's parameters against its type's schema.
type ParameterValidator interface {
	ValidateActionParameters(actionType string, parameters map[string]any) error
}

// NewTask creates a new scheduled task service.
func NewTask(p persistence.Persistence, reg ParameterValidator) *Task {
	return &Task{persistence: p, registry: reg, validate: validator.New()}
}

// List returns tasks matching the filter.
func (s *Task) List(ctx context.Context, opts persistence.ListOptions) ([]*models.ScheduledTask, error) {
	return s.persistence.ScheduledTasks().List(ctx, opts)
}

// Get returns one task by ID.
func (s *Task) Get(ctx context.Context, id string) (*models.ScheduledTask, error) {
	return s.persistence.ScheduledTasks().GetByID(ctx, id)
}

// Create validates and stores a new task, computing its first fire time.
func (s *Task) Create(ctx context.Context, task *models.ScheduledTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	if err := s.validateTask(ctx, task); err != nil {
		return err
	}

	if task.IsEnabled && task.NextRunAt == nil {
		if err := task.ComputeNextRun(nowUTC()); err != nil {
			return NewValidationError("create_task", err.Error(), ErrInvalidCron)
		}
	}

	return s.persistence.ScheduledTasks().Save(ctx, task)
}

// Update validates and stores changes to an existing task. Run bookkeeping
// (last_run_at) carries over from the stored record, and the fire time is
// recomputed when the cron expression changed.
func (s *Task) Update(ctx context.Context, task *models.ScheduledTask) error {
	existing, err := s.persistence.ScheduledTasks().GetByID(ctx, task.ID)
	if err != nil {
		return err
	}

	if err := s.validateTask(ctx, task); err != nil {
		return err
	}

	task.LastRunAt = existing.LastRunAt
	task.CreatedAt = existing.CreatedAt

	if !task.IsEnabled {
		task.NextRunAt = nil
	} else if task.CronExpression != existing.CronExpression || existing.NextRunAt == nil {
		if err := task.ComputeNextRun(nowUTC()); err != nil {
			return NewValidationError("update_task", err.Error(), ErrInvalidCron)
		}
	} else {
		task.NextRunAt = existing.NextRunAt
	}

	err = s.persistence.ScheduledTasks().Save(ctx, task)
	if persistence.IsConcurrentModification(err) {
		return NewConflictError("update_task", "task was modified concurrently", ErrStaleVersion)
	}

	return err
}

// Toggle enables or disables a task. Disabling clears the fire time so the
// scheduler never picks the task up; enabling recomputes it from now. When
// the caller states the desired state, a no-op flip is a conflict.
func (s *Task) Toggle(ctx context.Context, id string, enable *bool) (*models.ScheduledTask, error) {
	task, err := s.persistence.ScheduledTasks().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if enable != nil && *enable == task.IsEnabled {
		state := "disabled"
		if task.IsEnabled {
			state = "enabled"
		}

		return nil, NewConflictError("toggle_task",
			"task is already "+state, ErrAlreadyInRequestedState)
	}

	if err := task.SetEnabled(!task.IsEnabled); err != nil {
		return nil, NewValidationError("toggle_task", err.Error(), ErrInvalidCron)
	}

	if err := s.persistence.ScheduledTasks().Save(ctx, task); err != nil {
		return nil, err
	}

	return task, nil
}

// Delete removes a task. Its execution history remains.
func (s *Task) Delete(ctx context.Context, id string) error {
	return s.persistence.ScheduledTasks().Delete(ctx, id)
}

// Executions returns a task's run history, newest first.
func (s *Task) Executions(ctx context.Context, taskID string, opts persistence.ListOptions) ([]*models.ScheduledTaskExecution, error) {
	if _, err := s.persistence.ScheduledTasks().GetByID(ctx, taskID); err != nil {
		return nil, err
	}

	return s.persistence.Executions().ListByTask(ctx, taskID, opts)
}

func (s *Task) validateTask(ctx context.Context, task *models.ScheduledTask) error {
	if err := s.validate.StructCtx(ctx, task); err != nil {
		return NewValidationError("validate_task", err.Error(), ErrInvalidRequest)
	}

	if err := task.Validate(); err != nil {
		return NewValidationError("validate_task", err.Error(), ErrInvalidRequest)
	}

	if task.WorkflowID == "" && task.Action == nil {
		return NewValidationError("validate_task", "task needs a workflow_id or an action", ErrMissingTaskPayload)
	}

	if task.WorkflowID != "" {
		if _, err := s.persistence.Workflows().GetByID(ctx, task.WorkflowID); err != nil {
			if persistence.IsWorkflowNotFound(err) {
				return NewValidationError("validate_task",
					"workflow "+task.WorkflowID+" does not exist", ErrInvalidRequest)
			}

			return err
		}
	}

	if task.Action != nil && s.registry != nil {
		if err := s.registry.ValidateActionParameters(task.Action.Type, task.Action.Parameters); err != nil {
			return NewValidationError("validate_task", err.Error(), ErrInvalidParameters)
		}
	}

	return nil
}

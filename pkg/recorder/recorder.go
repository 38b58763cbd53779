// Package recorder persists the outcome of scheduled-task runs: the
// append-only execution history plus the task's own bookkeeping fields.
package recorder

import (
	"context"
	"log/slog"
	"time"

	"github.com/orchonhq/orchon/pkg/log"
	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
)

// Recorder writes execution rows and updates task run state. It always
// releases the task's run lock once an outcome is recorded, so a recording
// failure never strands a task in "running" forever.
type Recorder struct {
	tasks      persistence.ScheduledTaskRepository
	executions persistence.ExecutionRepository
	logger     *slog.Logger
}

func NewRecorder(p persistence.Persistence) *Recorder {
	return &Recorder{
		tasks:      p.ScheduledTasks(),
		executions: p.Executions(),
		logger:     log.WithModule("recorder"),
	}
}

// RecordRun stores the outcome of a completed run attempt, updates the
// task's last_run_at and releases its run lock. errMessage is empty for a
// successful run.
func (r *Recorder) RecordRun(ctx context.Context, taskID string, startedAt time.Time, duration time.Duration, errMessage string) error {
	status := models.ExecutionStatusSuccess
	if errMessage != "" {
		status = models.ExecutionStatusFailed
	}

	execution := &models.ScheduledTaskExecution{
		TaskID:       taskID,
		Status:       status,
		ExecutedAt:   startedAt,
		DurationMs:   duration.Milliseconds(),
		ErrorMessage: errMessage,
	}

	if err := r.executions.Append(ctx, execution); err != nil {
		r.logger.ErrorContext(ctx, "Failed to append execution row", "task_id", taskID, "error", err)
		r.release(ctx, taskID)

		return err
	}

	if err := r.touchLastRun(ctx, taskID, startedAt); err != nil {
		r.logger.ErrorContext(ctx, "Failed to update task run state", "task_id", taskID, "error", err)
		r.release(ctx, taskID)

		return err
	}

	r.release(ctx, taskID)

	r.logger.InfoContext(ctx, "Recorded task run",
		"task_id", taskID,
		"status", status,
		"duration_ms", execution.DurationMs,
	)

	return nil
}

// RecordSkipped stores a skipped row for a tick that found the task's
// previous run still in flight. The run lock stays with its current holder.
func (r *Recorder) RecordSkipped(ctx context.Context, taskID string, dueAt time.Time) error {
	execution := &models.ScheduledTaskExecution{
		TaskID:     taskID,
		Status:     models.ExecutionStatusSkipped,
		ExecutedAt: dueAt,
	}

	if err := r.executions.Append(ctx, execution); err != nil {
		r.logger.ErrorContext(ctx, "Failed to append skipped row", "task_id", taskID, "error", err)

		return err
	}

	r.logger.WarnContext(ctx, "Task run skipped, previous run still in flight", "task_id", taskID)

	return nil
}

// touchLastRun re-reads the task before saving so concurrent edits made
// while the run was in flight are not clobbered.
func (r *Recorder) touchLastRun(ctx context.Context, taskID string, startedAt time.Time) error {
	task, err := r.tasks.GetByID(ctx, taskID)
	if err != nil {
		if persistence.IsTaskNotFound(err) {
			// Task was deleted mid-run. Nothing left to update.
			return nil
		}

		return err
	}

	task.LastRunAt = &startedAt

	return r.tasks.Save(ctx, task)
}

func (r *Recorder) release(ctx context.Context, taskID string) {
	if err := r.tasks.ReleaseRunLock(ctx, taskID); err != nil && !persistence.IsTaskNotFound(err) {
		r.logger.ErrorContext(ctx, "Failed to release run lock", "task_id", taskID, "error", err)
	}
}

// Package dispatcher routes trigger firings to execution. Due-task events
// from the scheduler and external domain events both land here; the
// dispatcher decides which workflow instances to create and hands them to
// the executor.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/orchonhq/orchon/pkg/eventbus"
	"github.com/orchonhq/orchon/pkg/events"
	"github.com/orchonhq/orchon/pkg/executor"
	"github.com/orchonhq/orchon/pkg/log"
	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/recorder"
)

// Dispatcher subscribes to the engine's event stream and turns trigger
// firings into executor work.
type Dispatcher struct {
	workflows  persistence.WorkflowRepository
	instances  persistence.InstanceRepository
	tasks      persistence.ScheduledTaskRepository
	recorder   *recorder.Recorder
	executor   *executor.Executor
	bus        eventbus.EventBus
	generateID func() string
	logger     *slog.Logger
}

func NewDispatcher(p persistence.Persistence, bus eventbus.EventBus, exec *executor.Executor) *Dispatcher {
	return &Dispatcher{
		workflows:  p.Workflows(),
		instances:  p.Instances(),
		tasks:      p.ScheduledTasks(),
		recorder:   recorder.NewRecorder(p),
		executor:   exec,
		bus:        bus,
		generateID: bus.GenerateID,
		logger:     log.WithModule("dispatcher"),
	}
}

// Start registers the dispatcher's handlers and begins consuming events
// in the background until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.bus.Handle(events.TaskDueEvent, d.handleTaskDue); err != nil {
		return fmt.Errorf("failed to register task due handler: %w", err)
	}

	if err := d.bus.Handle(events.ExternalEventReceived, d.handleExternalEvent); err != nil {
		return fmt.Errorf("failed to register external event handler: %w", err)
	}

	d.logger.InfoContext(ctx, "Dispatcher started")

	return d.bus.Subscribe(ctx)
}

func (d *Dispatcher) handleTaskDue(ctx context.Context, event any) error {
	due, ok := event.(*events.TaskDue)
	if !ok {
		return fmt.Errorf("unexpected event payload %T for task due event", event)
	}

	task, err := d.tasks.GetByID(ctx, due.TaskID)
	if err != nil {
		d.logger.ErrorContext(ctx, "Due task vanished before dispatch", "task_id", due.TaskID, "error", err)

		return nil
	}

	logger := d.logger.With("task_id", task.ID, "task_name", task.TaskName)

	if task.WorkflowID != "" {
		return d.dispatchWorkflowTask(ctx, task, logger)
	}

	if task.Action != nil {
		d.executor.EnqueueTask(task)

		return nil
	}

	// Misconfigured task: claimed by the scheduler but nothing to run.
	return d.recorder.RecordRun(ctx, task.ID, time.Now().UTC(), 0, "task has neither a workflow nor an action")
}

// dispatchWorkflowTask creates an instance for the task's attached workflow.
// A missing or non-active workflow becomes a failed execution row, releasing
// the run lock for the next tick.
func (d *Dispatcher) dispatchWorkflowTask(ctx context.Context, task *models.ScheduledTask, logger *slog.Logger) error {
	startedAt := time.Now().UTC()

	workflow, err := d.workflows.GetByID(ctx, task.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			logger.WarnContext(ctx, "Task points at a missing workflow", "workflow_id", task.WorkflowID)

			return d.recorder.RecordRun(ctx, task.ID, startedAt, 0,
				fmt.Sprintf("workflow %s not found", task.WorkflowID))
		}

		return err
	}

	if !workflow.Dispatchable() {
		logger.WarnContext(ctx, "Task workflow is not active",
			"workflow_id", workflow.ID, "status", workflow.Status)

		return d.recorder.RecordRun(ctx, task.ID, startedAt, 0,
			fmt.Sprintf("workflow %s is %s", workflow.ID, workflow.Status))
	}

	triggerData := map[string]any{
		"source":    "schedule",
		"task_id":   task.ID,
		"task_name": task.TaskName,
	}

	instance := models.NewWorkflowInstance(d.generateID(), workflow.ID, triggerData)

	if err := d.instances.Save(ctx, instance); err != nil {
		releaseErr := d.recorder.RecordRun(ctx, task.ID, startedAt, 0, "failed to create instance: "+err.Error())
		if releaseErr != nil {
			logger.ErrorContext(ctx, "Failed to record dispatch failure", "error", releaseErr)
		}

		return err
	}

	logger.InfoContext(ctx, "Dispatching scheduled workflow run",
		"workflow_id", workflow.ID, "instance_id", instance.ID)

	d.executor.Enqueue(instance, task.ID)

	return nil
}

func (d *Dispatcher) handleExternalEvent(ctx context.Context, event any) error {
	external, ok := event.(*events.ExternalEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T for external event", event)
	}

	_, err := d.DispatchEvent(ctx, external.EventType, external.Payload)

	return err
}

// DispatchEvent matches an external event against every active definition's
// triggers and starts one instance per matching workflow. It returns the
// created instances. A workflow whose conditions do not match is skipped
// silently; condition evaluation never aborts the scan.
func (d *Dispatcher) DispatchEvent(ctx context.Context, eventType string, payload map[string]any) ([]*models.WorkflowInstance, error) {
	active, err := d.workflows.Active(ctx)
	if err != nil {
		return nil, err
	}

	started := make([]*models.WorkflowInstance, 0)

	for _, workflow := range active {
		if !d.matches(ctx, workflow, eventType, payload) {
			continue
		}

		triggerData := map[string]any{
			"source":     "event",
			"event_type": eventType,
			"payload":    payload,
		}

		instance := models.NewWorkflowInstance(d.generateID(), workflow.ID, triggerData)

		if err := d.instances.Save(ctx, instance); err != nil {
			d.logger.ErrorContext(ctx, "Failed to create instance for event",
				"workflow_id", workflow.ID, "event_type", eventType, "error", err)

			continue
		}

		d.logger.InfoContext(ctx, "Event matched workflow",
			"event_type", eventType, "workflow_id", workflow.ID, "instance_id", instance.ID)

		d.executor.Enqueue(instance, "")
		started = append(started, instance)
	}

	return started, nil
}

func (d *Dispatcher) matches(ctx context.Context, workflow *models.WorkflowDefinition, eventType string, payload map[string]any) bool {
	for i := range workflow.Triggers {
		matched, err := workflow.Triggers[i].Matches(eventType, payload)
		if err != nil {
			d.logger.WarnContext(ctx, "Trigger evaluation failed",
				"workflow_id", workflow.ID, "trigger_id", workflow.Triggers[i].ID, "error", err)

			continue
		}

		if matched {
			return true
		}
	}

	return false
}

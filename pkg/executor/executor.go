// Package executor runs workflow instances and inline task actions through a
// bounded worker pool, with exponential-backoff retries per action and
// cooperative cancellation between actions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/orchonhq/orchon/pkg/eventbus"
	"github.com/orchonhq/orchon/pkg/events"
	"github.com/orchonhq/orchon/pkg/log"
	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/otelhelper"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/recorder"
	"github.com/orchonhq/orchon/pkg/registry"
	"github.com/orchonhq/orchon/pkg/template"
)

const (
	DefaultWorkers = 8

	retryBaseDelay = time.Second
	retryMaxDelay  = 60 * time.Second
	retryJitterPct = 20

	// actionTimeout bounds a single attempt of one action.
	actionTimeout = 2 * time.Minute
)

// ErrInstanceNotRunning is returned by Cancel when the instance has no
// in-flight worker to interrupt.
var ErrInstanceNotRunning = errors.New("instance is not running in this executor")

// Executor consumes dispatched work. Instances run asynchronously on the
// pool; each instance drives its definition's actions in order, persisting
// progress after every action so the instance row doubles as the run's audit
// record.
type Executor struct {
	workflows  persistence.WorkflowRepository
	instances  persistence.InstanceRepository
	registry   *registry.Registry
	recorder   *recorder.Recorder
	publisher  eventbus.EventPublisher
	generateID func() string
	logger     *slog.Logger
	tracer     trace.Tracer

	// backoff builds the per-action retry schedule; replaceable in tests to
	// avoid real backoff waits.
	backoff func(budget int) retry.Backoff

	pool *semaphore.Weighted
	wg   sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewExecutor(p persistence.Persistence, bus eventbus.EventBus, reg *registry.Registry, workers int) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Executor{
		workflows:  p.Workflows(),
		instances:  p.Instances(),
		registry:   reg,
		recorder:   recorder.NewRecorder(p),
		publisher:  bus,
		generateID: bus.GenerateID,
		logger:     log.WithModule("executor"),
		tracer:     otel.Tracer("orchon/executor"),
		backoff:    defaultBackoff,
		pool:       semaphore.NewWeighted(int64(workers)),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// defaultBackoff is exponential from one second, capped at one minute, with
// jitter so concurrent retries spread out, truncated at the retry budget.
func defaultBackoff(budget int) retry.Backoff {
	return retry.WithMaxRetries(uint64(budget),
		retry.WithJitterPercent(retryJitterPct,
			retry.WithCappedDuration(retryMaxDelay,
				retry.NewExponential(retryBaseDelay))))
}

// Enqueue schedules a pending instance onto the pool and returns immediately.
// taskID is non-empty when the run belongs to a scheduled task, in which case
// the executor records the task's execution row with the instance's outcome.
// The run is detached from the caller's context: an API request finishing
// does not abort the instance it triggered.
func (e *Executor) Enqueue(instance *models.WorkflowInstance, taskID string) {
	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.cancels[instance.ID] = cancel
	e.mu.Unlock()

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		defer func() {
			e.mu.Lock()
			delete(e.cancels, instance.ID)
			e.mu.Unlock()
			cancel()
		}()

		if err := e.pool.Acquire(runCtx, 1); err != nil {
			e.finishCancelled(instance.ID, taskID)

			return
		}
		defer e.pool.Release(1)

		e.runInstance(runCtx, instance.ID, taskID)
	}()
}

// Cancel interrupts an instance currently held by this executor. The worker
// lets any in-flight action finish, observes the cancellation before the next
// one and finalizes the instance as cancelled.
func (e *Executor) Cancel(instanceID string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[instanceID]
	e.mu.Unlock()

	if !ok {
		return ErrInstanceNotRunning
	}

	cancel()

	return nil
}

// Shutdown waits for in-flight runs to finish.
func (e *Executor) Shutdown(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) runInstance(ctx context.Context, instanceID, taskID string) {
	startedAt := time.Now().UTC()

	ctx, span := e.tracer.Start(ctx, "executor.run_instance",
		trace.WithAttributes(attribute.String(otelhelper.InstanceIDKey, instanceID)))
	defer span.End()

	logger := e.logger.With("instance_id", instanceID)

	instance, workflow, err := e.loadRun(ctx, instanceID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to load dispatched run", "error", err)
		span.SetStatus(codes.Error, err.Error())

		if taskID != "" {
			e.recordTaskOutcome(taskID, startedAt, err.Error())
		}

		return
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowIDKey, workflow.ID))

	instance.MarkRunning(startedAt)

	if err := e.instances.Save(ctx, instance); err != nil {
		logger.ErrorContext(ctx, "Failed to mark instance running", "error", err)

		return
	}

	e.publish(instance.ID, events.InstanceStarted{
		BaseEvent:  e.baseEvent(events.InstanceStartedEvent),
		InstanceID: instance.ID,
		WorkflowID: workflow.ID,
	})

	runErr := e.runActions(ctx, instance, workflow, logger)

	e.finalize(instance, workflow, runErr, logger, span)

	if taskID != "" {
		message := ""
		if runErr != nil {
			message = runErr.Error()
		}

		e.recordTaskOutcome(taskID, startedAt, message)
	}
}

// runActions executes the definition's actions in order starting from the
// instance's current index. It returns nil on completion, ctx.Err() on
// cancellation, or the final attempt's error when an action exhausts its
// retry budget.
func (e *Executor) runActions(ctx context.Context, instance *models.WorkflowInstance, workflow *models.WorkflowDefinition, logger *slog.Logger) error {
	total := len(workflow.Actions)

	for instance.CurrentActionIndex < total {
		if err := ctx.Err(); err != nil {
			return err
		}

		action := &workflow.Actions[instance.CurrentActionIndex]

		if err := e.waitDelay(ctx, action.DelaySeconds); err != nil {
			return err
		}

		budget := workflow.RetryBudgetFor(action)

		execCtx := models.ExecutionContext{
			InstanceID:  instance.ID,
			WorkflowID:  instance.WorkflowID,
			TriggerData: instance.TriggerData,
		}

		if err := e.runAction(ctx, execCtx, action, budget, logger); err != nil {
			instance.FailedActions++

			return err
		}

		instance.AdvanceAction(total)

		if err := e.instances.Save(ctx, instance); err != nil {
			logger.ErrorContext(ctx, "Failed to persist instance progress", "error", err)
		}
	}

	return nil
}

// runAction performs one action with its retry budget: budget retries on top
// of the initial attempt, exponential backoff from one second capped at one
// minute, with jitter to keep concurrent retries from aligning.
func (e *Executor) runAction(ctx context.Context, execCtx models.ExecutionContext, action *models.Action, budget int, logger *slog.Logger) error {
	ctx, span := e.tracer.Start(ctx, "executor.run_action",
		trace.WithAttributes(
			attribute.String(otelhelper.ActionIDKey, action.ID),
			attribute.String(otelhelper.ActionTypeKey, action.Type),
			attribute.Int(otelhelper.RetryBudgetKey, budget),
		))
	defer span.End()

	params, err := template.RenderParameters(action.Parameters, execCtx)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("action %s has unrenderable parameters: %w", action.ID, err)
	}

	attempt := 0

	err = retry.Do(ctx, e.backoff(budget), func(ctx context.Context) error {
		attempt++

		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying action",
				"action_id", action.ID, "attempt", attempt, "budget", budget+1)
		}

		impl, err := e.registry.CreateAction(ctx, action.Type, params)
		if err != nil {
			// Unknown type or bad parameters will not improve with retries.
			return err
		}

		// Cancellation is cooperative: an in-flight attempt runs to completion
		// and the run stops before the next action, so the attempt context only
		// carries the timeout.
		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), actionTimeout)
		defer cancel()

		_, err = impl.Execute(attemptCtx, execCtx, logger)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		otelhelper.SetError(span, err)

		return fmt.Errorf("action %s failed after %d attempts: %w", action.ID, attempt, err)
	}

	return nil
}

func (e *Executor) waitDelay(ctx context.Context, delaySeconds int) error {
	if delaySeconds <= 0 {
		return nil
	}

	timer := time.NewTimer(time.Duration(delaySeconds) * time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// finalize moves the instance to its terminal state and emits the matching
// lifecycle event. Persistence happens with a fresh context: the run context
// is already dead on the cancellation path.
func (e *Executor) finalize(instance *models.WorkflowInstance, workflow *models.WorkflowDefinition, runErr error, logger *slog.Logger, span trace.Span) {
	ctx := context.Background()
	now := time.Now().UTC()

	switch {
	case runErr == nil:
		instance.MarkCompleted(now)

		e.publish(instance.ID, events.InstanceCompleted{
			BaseEvent:  e.baseEvent(events.InstanceCompletedEvent),
			InstanceID: instance.ID,
			WorkflowID: workflow.ID,
			DurationMs: instance.DurationMs(),
		})

		logger.InfoContext(ctx, "Instance completed", "duration_ms", instance.DurationMs())

	case errors.Is(runErr, context.Canceled):
		instance.MarkCancelled(now)
		span.SetAttributes(attribute.Bool(otelhelper.CancelledKey, true))

		e.publish(instance.ID, events.InstanceCancelled{
			BaseEvent:  e.baseEvent(events.InstanceCancelledEvent),
			InstanceID: instance.ID,
			WorkflowID: workflow.ID,
			DurationMs: instance.DurationMs(),
		})

		logger.InfoContext(ctx, "Instance cancelled")

	default:
		instance.MarkFailed(now, runErr.Error())
		span.SetStatus(codes.Error, runErr.Error())

		e.publish(instance.ID, events.InstanceFailed{
			BaseEvent:  e.baseEvent(events.InstanceFailedEvent),
			InstanceID: instance.ID,
			WorkflowID: workflow.ID,
			Error:      runErr.Error(),
			DurationMs: instance.DurationMs(),
		})

		logger.ErrorContext(ctx, "Instance failed", "error", runErr)
	}

	if err := e.instances.Save(ctx, instance); err != nil {
		logger.ErrorContext(ctx, "Failed to persist terminal instance state", "error", err)
	}
}

// finishCancelled handles runs torn down before a worker slot was acquired.
func (e *Executor) finishCancelled(instanceID, taskID string) {
	ctx := context.Background()

	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		e.logger.Error("Failed to load instance for cancellation", "instance_id", instanceID, "error", err)

		return
	}

	if instance.Status.Terminal() {
		return
	}

	now := time.Now().UTC()
	instance.MarkCancelled(now)

	if err := e.instances.Save(ctx, instance); err != nil {
		e.logger.Error("Failed to persist cancelled instance", "instance_id", instanceID, "error", err)
	}

	e.publish(instance.ID, events.InstanceCancelled{
		BaseEvent:  e.baseEvent(events.InstanceCancelledEvent),
		InstanceID: instance.ID,
		WorkflowID: instance.WorkflowID,
	})

	if taskID != "" {
		e.recordTaskOutcome(taskID, now, "run cancelled before execution")
	}
}

func (e *Executor) loadRun(ctx context.Context, instanceID string) (*models.WorkflowInstance, *models.WorkflowDefinition, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	if instance.Status != models.InstanceStatusPending {
		return nil, nil, fmt.Errorf("instance %s is %s, expected pending", instanceID, instance.Status)
	}

	workflow, err := e.workflows.GetByID(ctx, instance.WorkflowID)
	if err != nil {
		return nil, nil, err
	}

	return instance, workflow, nil
}

// EnqueueTask runs a bare task's inline action on the pool and returns
// immediately, so a slow action never stalls the dispatcher's event stream.
func (e *Executor) EnqueueTask(task *models.ScheduledTask) {
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		ctx := context.Background()

		if err := e.pool.Acquire(ctx, 1); err != nil {
			return
		}
		defer e.pool.Release(1)

		_ = e.RunTaskAction(ctx, task)
	}()
}

// RunTaskAction executes a bare task's inline action synchronously with the
// task's retry budget, then records exactly one execution row for the run.
func (e *Executor) RunTaskAction(ctx context.Context, task *models.ScheduledTask) error {
	startedAt := time.Now().UTC()

	ctx, span := e.tracer.Start(ctx, "executor.run_task_action",
		trace.WithAttributes(
			attribute.String(otelhelper.TaskIDKey, task.ID),
			attribute.String(otelhelper.TaskTypeKey, string(task.TaskType)),
		))
	defer span.End()

	logger := e.logger.With("task_id", task.ID, "task_name", task.TaskName)

	if task.Action == nil {
		err := fmt.Errorf("task %s has no action attached", task.ID)
		span.SetStatus(codes.Error, err.Error())
		e.recordTaskOutcome(task.ID, startedAt, err.Error())

		return err
	}

	execCtx := models.ExecutionContext{
		TaskID:      task.ID,
		TriggerData: map[string]any{"task_name": task.TaskName},
	}

	runErr := e.runAction(ctx, execCtx, task.Action, task.MaxRetries, logger)
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
		logger.ErrorContext(ctx, "Task action failed", "error", runErr)

		e.recordTaskOutcome(task.ID, startedAt, runErr.Error())

		return runErr
	}

	logger.InfoContext(ctx, "Task action completed")
	e.recordTaskOutcome(task.ID, startedAt, "")

	return nil
}

func (e *Executor) recordTaskOutcome(taskID string, startedAt time.Time, errMessage string) {
	ctx := context.Background()
	duration := time.Since(startedAt)

	if err := e.recorder.RecordRun(ctx, taskID, startedAt, duration, errMessage); err != nil {
		e.logger.Error("Failed to record task run", "task_id", taskID, "error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:        e.generateID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

func (e *Executor) publish(key string, event eventbus.Event) {
	if err := e.publisher.Publish(context.Background(), key, event); err != nil {
		e.logger.Error("Failed to publish lifecycle event", "key", key, "error", err)
	}
}

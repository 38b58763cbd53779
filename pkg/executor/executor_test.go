package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchonhq/orchon/pkg/eventbus"
	"github.com/orchonhq/orchon/pkg/events"
	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/persistence/file"
	"github.com/orchonhq/orchon/pkg/protocol"
	"github.com/orchonhq/orchon/pkg/registry"
)

type captureBus struct {
	mu     sync.Mutex
	events []eventbus.Event
	nextID atomic.Int64
}

func (b *captureBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *captureBus) Handle(events.EventType, eventbus.EventHandler) error { return nil }
func (b *captureBus) Subscribe(context.Context) error                      { return nil }
func (b *captureBus) Close() error                                         { return nil }

func (b *captureBus) GenerateID() string {
	return string(rune('a' + b.nextID.Add(1)))
}

func (b *captureBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]events.EventType, 0, len(b.events))
	for _, event := range b.events {
		out = append(out, event.GetType())
	}

	return out
}

// flakyAction fails until the configured number of calls is reached.
type flakyAction struct {
	calls       *atomic.Int64
	failUntil   int64
	alwaysFails bool
}

func (a *flakyAction) Execute(context.Context, models.ExecutionContext, *slog.Logger) (any, error) {
	n := a.calls.Add(1)

	if a.alwaysFails || n <= a.failUntil {
		return nil, errors.New("transient failure")
	}

	return map[string]any{"calls": n}, nil
}

type flakyFactory struct {
	calls       atomic.Int64
	failUntil   int64
	alwaysFails bool
}

func (*flakyFactory) ID() string             { return "flaky" }
func (*flakyFactory) Name() string           { return "Flaky" }
func (*flakyFactory) Description() string    { return "Fails a configured number of times." }
func (*flakyFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func (f *flakyFactory) Create(context.Context, map[string]any) (protocol.Action, error) {
	return &flakyAction{calls: &f.calls, failUntil: f.failUntil, alwaysFails: f.alwaysFails}, nil
}

// gatedAction blocks until the test releases it, counting its runs.
type gatedAction struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	runs    atomic.Int64
}

func (a *gatedAction) Execute(ctx context.Context, _ models.ExecutionContext, _ *slog.Logger) (any, error) {
	a.runs.Add(1)
	a.once.Do(func() { close(a.started) })

	select {
	case <-a.release:
		return map[string]any{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type gatedFactory struct {
	action *gatedAction
}

func (*gatedFactory) ID() string             { return "gated" }
func (*gatedFactory) Name() string           { return "Gated" }
func (*gatedFactory) Description() string    { return "Blocks until released." }
func (*gatedFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func (f *gatedFactory) Create(context.Context, map[string]any) (protocol.Action, error) {
	return f.action, nil
}

func setupExecutor(t *testing.T, factories ...protocol.ActionFactory) (*Executor, *captureBus, persistence.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	bus := &captureBus{}

	reg := registry.NewRegistry(slog.Default())
	for _, factory := range factories {
		reg.RegisterAction(factory)
	}

	exec := NewExecutor(store, bus, reg, 2)
	exec.backoff = func(budget int) retry.Backoff {
		return retry.WithMaxRetries(uint64(budget), retry.NewConstant(time.Millisecond))
	}

	return exec, bus, store
}

func saveWorkflow(t *testing.T, store persistence.Persistence, actions ...models.Action) *models.WorkflowDefinition {
	t.Helper()

	workflow := &models.WorkflowDefinition{
		ID:     "wf-1",
		Name:   "order processing",
		Status: models.WorkflowStatusActive,
		Triggers: []models.Trigger{
			{ID: "t1", Type: models.TriggerTypeEvent, EventType: "order.created"},
		},
		Actions: actions,
	}
	require.NoError(t, store.Workflows().Save(context.Background(), workflow))

	return workflow
}

func startInstance(t *testing.T, store persistence.Persistence, workflowID string) *models.WorkflowInstance {
	t.Helper()

	instance := models.NewWorkflowInstance("inst-1", workflowID, map[string]any{"order_id": "42"})
	require.NoError(t, store.Instances().Save(context.Background(), instance))

	return instance
}

func waitTerminal(t *testing.T, store persistence.Persistence, instanceID string) *models.WorkflowInstance {
	t.Helper()

	var instance *models.WorkflowInstance

	require.Eventually(t, func() bool {
		var err error

		instance, err = store.Instances().GetByID(context.Background(), instanceID)

		return err == nil && instance.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	return instance
}

func TestExecutor_CompletesInstance(t *testing.T) {
	t.Parallel()

	factory := &flakyFactory{}
	exec, bus, store := setupExecutor(t, factory)

	saveWorkflow(t, store,
		models.Action{ID: "a1", Type: "flaky"},
		models.Action{ID: "a2", Type: "flaky"},
	)
	instance := startInstance(t, store, "wf-1")

	exec.Enqueue(instance, "")

	final := waitTerminal(t, store, instance.ID)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
	assert.Equal(t, 2, final.ExecutedActions)
	assert.Equal(t, 0, final.FailedActions)
	assert.Equal(t, 100, final.ProgressPercentage)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)

	require.NoError(t, exec.Shutdown(context.Background()))
	assert.Equal(t,
		[]events.EventType{events.InstanceStartedEvent, events.InstanceCompletedEvent},
		bus.types())
}

func TestExecutor_ZeroActionWorkflowCompletes(t *testing.T) {
	t.Parallel()

	exec, _, store := setupExecutor(t)

	saveWorkflow(t, store)
	instance := startInstance(t, store, "wf-1")

	exec.Enqueue(instance, "")

	final := waitTerminal(t, store, instance.ID)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
	assert.Equal(t, 100, final.ProgressPercentage)
}

func TestExecutor_RetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	factory := &flakyFactory{alwaysFails: true}
	exec, bus, store := setupExecutor(t, factory)

	maxRetries := 2
	saveWorkflow(t, store, models.Action{ID: "a1", Type: "flaky", MaxRetries: &maxRetries})
	instance := startInstance(t, store, "wf-1")

	exec.Enqueue(instance, "")

	final := waitTerminal(t, store, instance.ID)
	assert.Equal(t, models.InstanceStatusFailed, final.Status)
	assert.Contains(t, final.Error, "a1")
	assert.Equal(t, 1, final.FailedActions)
	assert.Equal(t, 0, final.ExecutedActions)

	// max_retries=2 means one initial attempt plus two retries.
	assert.Equal(t, int64(3), factory.calls.Load())

	require.NoError(t, exec.Shutdown(context.Background()))
	assert.Equal(t,
		[]events.EventType{events.InstanceStartedEvent, events.InstanceFailedEvent},
		bus.types())
}

func TestExecutor_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	factory := &flakyFactory{failUntil: 2}
	exec, _, store := setupExecutor(t, factory)

	maxRetries := 3
	saveWorkflow(t, store, models.Action{ID: "a1", Type: "flaky", MaxRetries: &maxRetries})
	instance := startInstance(t, store, "wf-1")

	exec.Enqueue(instance, "")

	final := waitTerminal(t, store, instance.ID)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)
	assert.Equal(t, int64(3), factory.calls.Load())
}

func TestExecutor_UnknownActionTypeFailsWithoutRetries(t *testing.T) {
	t.Parallel()

	exec, _, store := setupExecutor(t)

	saveWorkflow(t, store, models.Action{ID: "a1", Type: "does-not-exist"})
	instance := startInstance(t, store, "wf-1")

	exec.Enqueue(instance, "")

	final := waitTerminal(t, store, instance.ID)
	assert.Equal(t, models.InstanceStatusFailed, final.Status)
}

// Cancelling mid-action lets the running action finish normally, then stops
// the run before the next one.
func TestExecutor_CancelLetsInFlightActionFinish(t *testing.T) {
	t.Parallel()

	action := &gatedAction{started: make(chan struct{}), release: make(chan struct{})}
	factory := &gatedFactory{action: action}
	exec, bus, store := setupExecutor(t, factory)

	saveWorkflow(t, store,
		models.Action{ID: "a1", Type: "gated"},
		models.Action{ID: "a2", Type: "gated"},
	)
	instance := startInstance(t, store, "wf-1")

	exec.Enqueue(instance, "")

	<-action.started
	require.NoError(t, exec.Cancel(instance.ID))
	close(action.release)

	final := waitTerminal(t, store, instance.ID)
	assert.Equal(t, models.InstanceStatusCancelled, final.Status)
	assert.Equal(t, 1, final.ExecutedActions, "the in-flight action completes despite the cancel")
	assert.Equal(t, int64(1), action.runs.Load(), "the second action never starts")

	require.NoError(t, exec.Shutdown(context.Background()))
	assert.Equal(t,
		[]events.EventType{events.InstanceStartedEvent, events.InstanceCancelledEvent},
		bus.types())
}

func TestExecutor_CancelUnknownInstance(t *testing.T) {
	t.Parallel()

	exec, _, _ := setupExecutor(t)

	require.ErrorIs(t, exec.Cancel("missing"), ErrInstanceNotRunning)
}

func TestExecutor_RunTaskAction(t *testing.T) {
	t.Parallel()

	factory := &flakyFactory{failUntil: 1}
	exec, _, store := setupExecutor(t, factory)
	ctx := context.Background()

	task, err := models.NewScheduledTask("task-1", "cache-cleanup", models.TaskTypeCleanup, "*/5 * * * *")
	require.NoError(t, err)

	task.MaxRetries = 2
	task.Action = &models.Action{ID: "clean", Type: "flaky"}
	require.NoError(t, store.ScheduledTasks().Save(ctx, task))

	require.NoError(t, exec.RunTaskAction(ctx, task))
	assert.Equal(t, int64(2), factory.calls.Load())

	executions, err := store.Executions().ListByTask(ctx, task.ID, persistence.ListOptions{})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, executions[0].Status)

	stored, err := store.ScheduledTasks().GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastRunAt)
	assert.Nil(t, stored.RunningSince)
}

func TestExecutor_RunTaskAction_ExhaustsBudget(t *testing.T) {
	t.Parallel()

	factory := &flakyFactory{alwaysFails: true}
	exec, _, store := setupExecutor(t, factory)
	ctx := context.Background()

	task, err := models.NewScheduledTask("task-1", "cache-cleanup", models.TaskTypeCleanup, "*/5 * * * *")
	require.NoError(t, err)

	task.MaxRetries = 1
	task.Action = &models.Action{ID: "clean", Type: "flaky"}
	require.NoError(t, store.ScheduledTasks().Save(ctx, task))

	require.Error(t, exec.RunTaskAction(ctx, task))
	assert.Equal(t, int64(2), factory.calls.Load())

	executions, err := store.Executions().ListByTask(ctx, task.ID, persistence.ListOptions{})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionStatusFailed, executions[0].Status)
	assert.Contains(t, executions[0].ErrorMessage, "transient failure")
}

// paramCaptureFactory records the configuration each created action received.
type paramCaptureFactory struct {
	mu     sync.Mutex
	config map[string]any
}

func (*paramCaptureFactory) ID() string             { return "capture" }
func (*paramCaptureFactory) Name() string           { return "Capture" }
func (*paramCaptureFactory) Description() string    { return "Records its configuration." }
func (*paramCaptureFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func (f *paramCaptureFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	f.mu.Lock()
	f.config = config
	f.mu.Unlock()

	return &flakyAction{calls: &atomic.Int64{}}, nil
}

func TestExecutor_RendersActionParameters(t *testing.T) {
	t.Parallel()

	factory := &paramCaptureFactory{}
	exec, _, store := setupExecutor(t, factory)

	saveWorkflow(t, store, models.Action{
		ID:   "a1",
		Type: "capture",
		Parameters: map[string]any{
			"message": "processing order {{.trigger_data.order_id}}",
			"static":  "unchanged",
		},
	})
	instance := startInstance(t, store, "wf-1")

	exec.Enqueue(instance, "")

	final := waitTerminal(t, store, instance.ID)
	assert.Equal(t, models.InstanceStatusCompleted, final.Status)

	factory.mu.Lock()
	defer factory.mu.Unlock()
	assert.Equal(t, "processing order 42", factory.config["message"])
	assert.Equal(t, "unchanged", factory.config["static"])
}

func TestExecutor_UnrenderableParametersFailInstance(t *testing.T) {
	t.Parallel()

	factory := &paramCaptureFactory{}
	exec, _, store := setupExecutor(t, factory)

	saveWorkflow(t, store, models.Action{
		ID:         "a1",
		Type:       "capture",
		Parameters: map[string]any{"message": "{{.unclosed"},
	})
	instance := startInstance(t, store, "wf-1")

	exec.Enqueue(instance, "")

	final := waitTerminal(t, store, instance.ID)
	assert.Equal(t, models.InstanceStatusFailed, final.Status)
	assert.Contains(t, final.Error, "unrenderable parameters")
}

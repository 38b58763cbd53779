package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchonhq/orchon/pkg/actions/log"
	"github.com/orchonhq/orchon/pkg/actions/noop"
	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/persistence/file"
	"github.com/orchonhq/orchon/pkg/registry"
)

// fakeRunner records enqueued instances and cancellation requests.
type fakeRunner struct {
	mu        sync.Mutex
	enqueued  []string
	cancelled []string
	cancelErr error
}

func (r *fakeRunner) Enqueue(instance *models.WorkflowInstance, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.enqueued = append(r.enqueued, instance.ID)
}

func (r *fakeRunner) Cancel(instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancelErr != nil {
		return r.cancelErr
	}

	r.cancelled = append(r.cancelled, instanceID)

	return nil
}

func newTestRegistry() *registry.Registry {
	reg := registry.NewRegistry(slog.Default())
	reg.RegisterAction(noop.NewActionFactory())
	reg.RegisterAction(log.NewActionFactory())

	return reg
}

func setupWorkflowService(t *testing.T) (*Workflow, persistence.Persistence, *fakeRunner) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	runner := &fakeRunner{}
	service := NewWorkflow(store, newTestRegistry(), runner)

	return service, store, runner
}

func validWorkflow() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		Name:   "lead scoring follow-up",
		Status: models.WorkflowStatusActive,
		Triggers: []models.Trigger{
			{Type: models.TriggerTypeEvent, EventType: "lead_scored"},
		},
		Actions: []models.Action{
			{Type: "log", Parameters: map[string]any{"message": "lead scored"}},
		},
	}
}

func TestWorkflowService_Create(t *testing.T) {
	t.Parallel()

	service, store, _ := setupWorkflowService(t)
	ctx := context.Background()

	workflow := validWorkflow()
	require.NoError(t, service.Create(ctx, workflow))

	assert.NotEmpty(t, workflow.ID)
	assert.NotEmpty(t, workflow.Triggers[0].ID)
	assert.NotEmpty(t, workflow.Actions[0].ID)

	stored, err := store.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestWorkflowService_Create_ValidationFailures(t *testing.T) {
	t.Parallel()

	service, _, _ := setupWorkflowService(t)
	ctx := context.Background()

	t.Run("nil workflow", func(t *testing.T) {
		t.Parallel()

		err := service.Create(ctx, nil)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})

	t.Run("unknown action type", func(t *testing.T) {
		t.Parallel()

		workflow := validWorkflow()
		workflow.Actions[0].Type = "teleport"

		err := service.Create(ctx, workflow)
		require.ErrorIs(t, err, ErrUnknownActionType)
		assert.True(t, IsValidationError(err))
	})

	t.Run("schema violation", func(t *testing.T) {
		t.Parallel()

		workflow := validWorkflow()
		workflow.Actions[0].Parameters = map[string]any{"level": "info"} // message missing

		err := service.Create(ctx, workflow)
		require.ErrorIs(t, err, ErrInvalidParameters)
	})

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()

		workflow := validWorkflow()
		workflow.Name = ""

		err := service.Create(ctx, workflow)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})
}

func TestWorkflowService_Update_StaleVersion(t *testing.T) {
	t.Parallel()

	service, _, _ := setupWorkflowService(t)
	ctx := context.Background()

	workflow := validWorkflow()
	require.NoError(t, service.Create(ctx, workflow))

	first, err := service.Get(ctx, workflow.ID)
	require.NoError(t, err)

	second, err := service.Get(ctx, workflow.ID)
	require.NoError(t, err)

	first.Description = "updated first"
	require.NoError(t, service.Update(ctx, first))

	second.Description = "updated second"
	err = service.Update(ctx, second)
	require.ErrorIs(t, err, ErrStaleVersion)
	assert.True(t, IsConflictError(err))
}

func TestWorkflowService_Toggle(t *testing.T) {
	t.Parallel()

	service, _, _ := setupWorkflowService(t)
	ctx := context.Background()

	workflow := validWorkflow()
	workflow.Status = models.WorkflowStatusDraft
	require.NoError(t, service.Create(ctx, workflow))

	toggled, err := service.Toggle(ctx, workflow.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusActive, toggled.Status)

	toggled, err = service.Toggle(ctx, workflow.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusInactive, toggled.Status)
}

func TestWorkflowService_Toggle_RequestedStateConflict(t *testing.T) {
	t.Parallel()

	service, _, _ := setupWorkflowService(t)
	ctx := context.Background()

	workflow := validWorkflow()
	require.NoError(t, service.Create(ctx, workflow))

	enable := true

	// Already active: a second enable is a no-op and must not succeed.
	_, err := service.Toggle(ctx, workflow.ID, &enable)
	require.ErrorIs(t, err, ErrAlreadyInRequestedState)
	assert.True(t, IsConflictError(err))

	disable := false
	toggled, err := service.Toggle(ctx, workflow.ID, &disable)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusInactive, toggled.Status)

	_, err = service.Toggle(ctx, workflow.ID, &disable)
	require.ErrorIs(t, err, ErrAlreadyInRequestedState)
}

func TestWorkflowService_Create_NoTriggersPersisted(t *testing.T) {
	t.Parallel()

	service, store, _ := setupWorkflowService(t)
	ctx := context.Background()

	workflow := validWorkflow()
	workflow.Triggers = nil

	// No triggers means unreachable, not invalid.
	require.NoError(t, service.Create(ctx, workflow))

	stored, err := store.Workflows().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Triggers)
}

func TestWorkflowService_Delete_ActiveInstancesConflict(t *testing.T) {
	t.Parallel()

	service, store, runner := setupWorkflowService(t)
	ctx := context.Background()

	workflow := validWorkflow()
	require.NoError(t, service.Create(ctx, workflow))

	instance := models.NewWorkflowInstance("inst-1", workflow.ID, nil)
	require.NoError(t, store.Instances().Save(ctx, instance))

	err := service.Delete(ctx, workflow.ID, false)
	require.ErrorIs(t, err, ErrActiveInstancesExist)
	assert.True(t, IsConflictError(err))

	// Force cancels the stragglers and removes the definition.
	require.NoError(t, service.Delete(ctx, workflow.ID, true))
	assert.Equal(t, []string{"inst-1"}, runner.cancelled)

	_, err = service.Get(ctx, workflow.ID)
	assert.True(t, IsNotFoundError(err))
}

func TestWorkflowService_Stats(t *testing.T) {
	t.Parallel()

	service, store, _ := setupWorkflowService(t)
	ctx := context.Background()

	active := validWorkflow()
	require.NoError(t, service.Create(ctx, active))

	draft := validWorkflow()
	draft.Status = models.WorkflowStatusDraft
	require.NoError(t, service.Create(ctx, draft))

	done := models.NewWorkflowInstance("inst-1", active.ID, nil)
	done.MarkRunning(nowUTC().Add(-2 * time.Second))
	require.NoError(t, store.Instances().Save(ctx, done))
	done.MarkCompleted(nowUTC())
	require.NoError(t, store.Instances().Save(ctx, done))

	failed := models.NewWorkflowInstance("inst-2", active.ID, nil)
	require.NoError(t, store.Instances().Save(ctx, failed))
	failed.MarkRunning(nowUTC())
	failed.MarkFailed(nowUTC(), "boom")
	require.NoError(t, store.Instances().Save(ctx, failed))

	stats, err := service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalWorkflows)
	assert.Equal(t, 1, stats.ActiveWorkflows)
	assert.Equal(t, 2, stats.TotalInstances)
	assert.Equal(t, 1, stats.CompletedInstances)
	assert.Equal(t, 1, stats.FailedInstances)
	assert.Positive(t, stats.AverageExecutionMs)
}

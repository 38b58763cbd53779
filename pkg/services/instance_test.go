package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/persistence/file"
)

func setupInstanceService(t *testing.T) (*Instance, persistence.Persistence, *fakeRunner) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	runner := &fakeRunner{}
	service := NewInstance(store, runner)

	return service, store, runner
}

func saveWorkflow(t *testing.T, store persistence.Persistence, status models.WorkflowStatus) *models.WorkflowDefinition {
	t.Helper()

	workflow := &models.WorkflowDefinition{
		ID:     "wf-1",
		Name:   "order followup",
		Status: status,
		Triggers: []models.Trigger{
			{ID: "t1", Type: models.TriggerTypeEvent, EventType: "order_created"},
		},
		Actions: []models.Action{{ID: "a1", Type: "noop"}},
	}
	require.NoError(t, store.Workflows().Save(context.Background(), workflow))

	return workflow
}

func TestInstanceService_Trigger(t *testing.T) {
	t.Parallel()

	service, store, runner := setupInstanceService(t)
	ctx := context.Background()

	saveWorkflow(t, store, models.WorkflowStatusActive)

	instance, err := service.Trigger(ctx, "wf-1", map[string]any{"order_id": "42"})
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusPending, instance.Status)
	assert.Equal(t, "manual", instance.TriggerData["source"])
	assert.Equal(t, "42", instance.TriggerData["order_id"])
	assert.Equal(t, []string{instance.ID}, runner.enqueued)

	stored, err := store.Instances().GetByID(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusPending, stored.Status)
}

func TestInstanceService_Trigger_InactiveWorkflow(t *testing.T) {
	t.Parallel()

	service, store, runner := setupInstanceService(t)

	saveWorkflow(t, store, models.WorkflowStatusInactive)

	_, err := service.Trigger(context.Background(), "wf-1", nil)
	require.ErrorIs(t, err, ErrWorkflowNotActive)
	assert.True(t, IsConflictError(err))
	assert.Empty(t, runner.enqueued)
}

func TestInstanceService_Trigger_MissingWorkflow(t *testing.T) {
	t.Parallel()

	service, _, _ := setupInstanceService(t)

	_, err := service.Trigger(context.Background(), "nope", nil)
	assert.True(t, IsNotFoundError(err))
}

func TestInstanceService_Cancel_ViaRunner(t *testing.T) {
	t.Parallel()

	service, store, runner := setupInstanceService(t)
	ctx := context.Background()

	saveWorkflow(t, store, models.WorkflowStatusActive)

	instance := models.NewWorkflowInstance("inst-1", "wf-1", nil)
	require.NoError(t, store.Instances().Save(ctx, instance))

	require.NoError(t, service.Cancel(ctx, "inst-1"))
	assert.Equal(t, []string{"inst-1"}, runner.cancelled)
}

func TestInstanceService_Cancel_FallsBackToStore(t *testing.T) {
	t.Parallel()

	service, store, runner := setupInstanceService(t)
	ctx := context.Background()

	runner.cancelErr = ErrInstanceNotFound // no worker holds the instance

	instance := models.NewWorkflowInstance("inst-1", "wf-1", nil)
	require.NoError(t, store.Instances().Save(ctx, instance))

	require.NoError(t, service.Cancel(ctx, "inst-1"))

	stored, err := store.Instances().GetByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.InstanceStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func TestInstanceService_Cancel_TerminalConflict(t *testing.T) {
	t.Parallel()

	service, store, _ := setupInstanceService(t)
	ctx := context.Background()

	instance := models.NewWorkflowInstance("inst-1", "wf-1", nil)
	instance.MarkRunning(nowUTC())
	instance.MarkCompleted(nowUTC())
	require.NoError(t, store.Instances().Save(ctx, instance))

	err := service.Cancel(ctx, "inst-1")
	require.ErrorIs(t, err, ErrInstanceAlreadyFinished)
	assert.True(t, IsConflictError(err))
}

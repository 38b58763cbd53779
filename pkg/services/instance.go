package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
)

// ErrInstanceNotFound is returned when an instance is not found.
var ErrInstanceNotFound = persistence.ErrInstanceNotFound

func nowUTC() time.Time {
	return time.Now().UTC()
}

// Instance manages workflow instance lifecycle from the API's point of view:
// manual triggering, inspection and cancellation.
type Instance struct {
	persistence persistence.Persistence
	runner      Runner
}

// NewInstance creates a new instance service.
func NewInstance(p persistence.Persistence, runner Runner) *Instance {
	return &Instance{persistence: p, runner: runner}
}

// List returns instances matching the filter, newest first.
func (s *Instance) List(ctx context.Context, opts persistence.InstanceListOptions) ([]*models.WorkflowInstance, error) {
	return s.persistence.Instances().List(ctx, opts)
}

// Get returns one instance by ID.
func (s *Instance) Get(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return s.persistence.Instances().GetByID(ctx, id)
}

// Trigger starts a workflow manually. The instance is created pending and
// handed to the executor; the call returns without waiting for the run, so
// the caller gets the instance ID to poll.
func (s *Instance) Trigger(ctx context.Context, workflowID string, triggerData map[string]any) (*models.WorkflowInstance, error) {
	workflow, err := s.persistence.Workflows().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.Dispatchable() {
		return nil, NewConflictError("trigger_workflow",
			"workflow "+workflowID+" is "+string(workflow.Status), ErrWorkflowNotActive)
	}

	if triggerData == nil {
		triggerData = map[string]any{}
	}

	triggerData["source"] = "manual"

	instance := models.NewWorkflowInstance(uuid.NewString(), workflow.ID, triggerData)

	if err := s.persistence.Instances().Save(ctx, instance); err != nil {
		return nil, err
	}

	s.runner.Enqueue(instance, "")

	return instance, nil
}

// Cancel stops an instance. Running instances are interrupted through the
// executor and finalized by their worker; pending instances held elsewhere
// are cancelled directly in the store. Cancelling a finished instance is a
// conflict.
func (s *Instance) Cancel(ctx context.Context, id string) error {
	instance, err := s.persistence.Instances().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if instance.Status.Terminal() {
		return NewConflictError("cancel_instance",
			"instance is already "+string(instance.Status), ErrInstanceAlreadyFinished)
	}

	if s.runner != nil && s.runner.Cancel(id) == nil {
		return nil
	}

	instance.MarkCancelled(nowUTC())

	err = s.persistence.Instances().Save(ctx, instance)
	if err != nil && persistence.IsConcurrentModification(err) {
		// The worker finalized the instance between our read and write.
		return NewConflictError("cancel_instance", "instance has already finished", ErrInstanceAlreadyFinished)
	}

	return err
}

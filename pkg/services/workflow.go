package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/orchonhq/orchon/pkg/log"
	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/registry"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

// Runner is the executor surface the services need: starting pending
// instances and interrupting in-flight ones.
type Runner interface {
	Enqueue(instance *models.WorkflowInstance, taskID string)
	Cancel(instanceID string) error
}

// Workflow manages workflow definitions.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	runner      Runner
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(p persistence.Persistence, reg *registry.Registry, runner Runner) *Workflow {
	return &Workflow{
		persistence: p,
		registry:    reg,
		runner:      runner,
		validate:    validator.New(),
		logger:      log.WithModule("workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := w.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns definitions matching the filter, newest first.
func (w *Workflow) List(ctx context.Context, opts persistence.ListOptions) ([]*models.WorkflowDefinition, error) {
	return w.persistence.Workflows().List(ctx, opts)
}

// Get returns one definition by ID.
func (w *Workflow) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return w.persistence.Workflows().GetByID(ctx, id)
}

// Create validates and stores a new definition. Missing IDs are assigned.
// New definitions start in draft unless the caller sets a status explicitly.
func (w *Workflow) Create(ctx context.Context, workflow *models.WorkflowDefinition) error {
	if workflow == nil {
		return NewValidationError("create_workflow", "workflow cannot be nil", ErrWorkflowNil)
	}

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	w.assignComponentIDs(workflow)

	if err := w.validateWorkflow(ctx, workflow); err != nil {
		return err
	}

	w.warnWhenUnreachable(ctx, workflow)

	return w.persistence.Workflows().Save(ctx, workflow)
}

// Update validates and stores changes to an existing definition. The caller
// supplies the version it read; a stale version surfaces as a conflict.
func (w *Workflow) Update(ctx context.Context, workflow *models.WorkflowDefinition) error {
	if workflow == nil {
		return NewValidationError("update_workflow", "workflow cannot be nil", ErrWorkflowNil)
	}

	if _, err := w.persistence.Workflows().GetByID(ctx, workflow.ID); err != nil {
		return err
	}

	w.assignComponentIDs(workflow)

	if err := w.validateWorkflow(ctx, workflow); err != nil {
		return err
	}

	w.warnWhenUnreachable(ctx, workflow)

	err := w.persistence.Workflows().Save(ctx, workflow)
	if persistence.IsConcurrentModification(err) {
		return NewConflictError("update_workflow", "workflow was modified concurrently", ErrStaleVersion)
	}

	return err
}

// Toggle flips a definition between active and inactive. Draft definitions
// are activated. When the caller states the desired state, a flip that would
// change nothing is a conflict, so two racing toggles cannot net out silently.
func (w *Workflow) Toggle(ctx context.Context, id string, enable *bool) (*models.WorkflowDefinition, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	active := workflow.Status == models.WorkflowStatusActive

	if enable != nil && *enable == active {
		return nil, NewConflictError("toggle_workflow",
			"workflow is already "+string(workflow.Status), ErrAlreadyInRequestedState)
	}

	if active {
		workflow.Status = models.WorkflowStatusInactive
	} else {
		workflow.Status = models.WorkflowStatusActive
	}

	if err := w.persistence.Workflows().Save(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Delete removes a definition. With active instances the delete is refused
// unless force is set, in which case the instances are cancelled first.
func (w *Workflow) Delete(ctx context.Context, id string, force bool) error {
	if _, err := w.persistence.Workflows().GetByID(ctx, id); err != nil {
		return err
	}

	active, err := w.persistence.Instances().Active(ctx, id)
	if err != nil {
		return err
	}

	if len(active) > 0 {
		if !force {
			return NewConflictError("delete_workflow",
				fmt.Sprintf("workflow has %d active instances", len(active)), ErrActiveInstancesExist)
		}

		for _, instance := range active {
			w.cancelInstance(ctx, instance)
		}
	}

	return w.persistence.Workflows().Delete(ctx, id)
}

// Stats aggregates definition and instance counts across the store.
func (w *Workflow) Stats(ctx context.Context) (*models.WorkflowStats, error) {
	total, active, err := w.persistence.Workflows().Counts(ctx)
	if err != nil {
		return nil, err
	}

	instances, err := w.persistence.Instances().Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &models.WorkflowStats{
		TotalWorkflows:     total,
		ActiveWorkflows:    active,
		TotalInstances:     instances.Total,
		CompletedInstances: instances.Completed,
		FailedInstances:    instances.Failed,
		AverageExecutionMs: instances.AverageExecutionMs,
	}, nil
}

// warnWhenUnreachable flags definitions no trigger can start. They are valid
// and stored, but only manual triggering reaches them.
func (w *Workflow) warnWhenUnreachable(ctx context.Context, workflow *models.WorkflowDefinition) {
	if len(workflow.Triggers) == 0 {
		w.logger.WarnContext(ctx, "Workflow has no triggers and can only be started manually",
			"workflow_id", workflow.ID)
	}
}

func (w *Workflow) assignComponentIDs(workflow *models.WorkflowDefinition) {
	for i := range workflow.Triggers {
		if workflow.Triggers[i].ID == "" {
			workflow.Triggers[i].ID = uuid.NewString()
		}
	}

	for i := range workflow.Actions {
		if workflow.Actions[i].ID == "" {
			workflow.Actions[i].ID = uuid.NewString()
		}
	}
}

// validateWorkflow layers struct tags, domain rules and per-action parameter
// schemas. Any failure maps to a 400.
func (w *Workflow) validateWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error {
	if err := w.validate.StructCtx(ctx, workflow); err != nil {
		return NewValidationError("validate_workflow", err.Error(), ErrInvalidRequest)
	}

	if err := workflow.Validate(); err != nil {
		return NewValidationError("validate_workflow", err.Error(), ErrInvalidRequest)
	}

	for i := range workflow.Actions {
		action := &workflow.Actions[i]

		if err := w.registry.ValidateActionParameters(action.Type, action.Parameters); err != nil {
			if errors.Is(err, registry.ErrUnknownActionType) {
				return NewValidationError("validate_workflow",
					fmt.Sprintf("action %s: unknown type %q", action.ID, action.Type), ErrUnknownActionType)
			}

			return NewValidationError("validate_workflow",
				fmt.Sprintf("action %s: %v", action.ID, err), ErrInvalidParameters)
		}
	}

	return nil
}

// cancelInstance interrupts a running instance via the executor, falling back
// to a direct store update for instances no worker holds.
func (w *Workflow) cancelInstance(ctx context.Context, instance *models.WorkflowInstance) {
	if w.runner != nil && w.runner.Cancel(instance.ID) == nil {
		return
	}

	instance.MarkCancelled(nowUTC())
	_ = w.persistence.Instances().Save(ctx, instance)
}

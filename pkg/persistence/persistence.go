// Package persistence provides the data storage abstraction for workflow
// definitions, instances, scheduled tasks and their execution history.
package persistence

import (
	"context"
	"time"

	"github.com/orchonhq/orchon/pkg/models"
)

// Persistence aggregates the four repositories backing the engine. All
// implementations must honor the repository contracts below, in particular
// the compare-and-swap semantics of AcquireRunLock.
type Persistence interface {
	Workflows() WorkflowRepository
	Instances() InstanceRepository
	ScheduledTasks() ScheduledTaskRepository
	Executions() ExecutionRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListOptions controls pagination and filtering for definition and task lists.
type ListOptions struct {
	Page   int
	Limit  int
	Status *models.WorkflowStatus
	Search string
}

// InstanceListOptions controls pagination and filtering for instance lists.
type InstanceListOptions struct {
	Page       int
	Limit      int
	WorkflowID string
	Status     *models.InstanceStatus
}

type WorkflowRepository interface {
	List(ctx context.Context, opts ListOptions) ([]*models.WorkflowDefinition, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)

	// Active returns every active definition, unpaginated. The dispatcher
	// scans this set for trigger matches on each incoming event.
	Active(ctx context.Context) ([]*models.WorkflowDefinition, error)

	// Counts returns the total and active definition counts.
	Counts(ctx context.Context) (total, active int, err error)

	// Save creates or updates a definition. Updates carry the version the
	// caller read; a mismatch against the stored version returns
	// ErrConcurrentModification. The stored version is incremented on success.
	Save(ctx context.Context, workflow *models.WorkflowDefinition) error
	Delete(ctx context.Context, id string) error
}

type InstanceRepository interface {
	List(ctx context.Context, opts InstanceListOptions) ([]*models.WorkflowInstance, error)
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)
	Save(ctx context.Context, instance *models.WorkflowInstance) error

	// Active returns instances of a definition in pending or running state.
	Active(ctx context.Context, workflowID string) ([]*models.WorkflowInstance, error)

	// Stats aggregates instance counts and the mean execution time of
	// terminal instances across all workflows.
	Stats(ctx context.Context) (*models.InstanceStats, error)
}

type ScheduledTaskRepository interface {
	List(ctx context.Context, opts ListOptions) ([]*models.ScheduledTask, error)
	GetByID(ctx context.Context, id string) (*models.ScheduledTask, error)
	Save(ctx context.Context, task *models.ScheduledTask) error
	Delete(ctx context.Context, id string) error

	// Due returns enabled tasks whose next_run_at is at or before now.
	Due(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error)

	// AcquireRunLock atomically sets running_since when no run is in flight.
	// It returns false without error when the lock is already held; this is
	// the mutual exclusion primitive preventing overlapping runs of one task.
	AcquireRunLock(ctx context.Context, taskID string, now time.Time) (bool, error)
	ReleaseRunLock(ctx context.Context, taskID string) error
}

type ExecutionRepository interface {
	// Append stores one execution row. Rows are append-only audit records.
	Append(ctx context.Context, execution *models.ScheduledTaskExecution) error
	ListByTask(ctx context.Context, taskID string, opts ListOptions) ([]*models.ScheduledTaskExecution, error)
}

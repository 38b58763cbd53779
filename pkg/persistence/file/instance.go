package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
)

const instancesDir = "workflow_instances"

// InstanceRepository stores workflow instances as JSON documents.
type InstanceRepository struct {
	dir string
	mu  sync.Mutex
}

func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{dir: filepath.Join(root, instancesDir)}
}

func (r *InstanceRepository) List(ctx context.Context, opts persistence.InstanceListOptions) ([]*models.WorkflowInstance, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowInstance{}, nil
		}

		return nil, persistence.NewStoreError("List", "workflow_instance", "", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(ids))

	for _, id := range ids {
		instance, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if opts.WorkflowID != "" && instance.WorkflowID != opts.WorkflowID {
			continue
		}

		if opts.Status != nil && instance.Status != *opts.Status {
			continue
		}

		instances = append(instances, instance)
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})

	return paginate(instances, opts.Page, opts.Limit), nil
}

func (r *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	instance, err := readRecord[models.WorkflowInstance](r.dir, id)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "workflow_instance", id, err)
	}

	if instance == nil {
		return nil, persistence.NewStoreError("GetByID", "workflow_instance", id, persistence.ErrInstanceNotFound)
	}

	return instance, nil
}

// Save upserts an instance. Instances in a terminal state are immutable: a
// write against a terminal stored record is rejected so a cancel racing a
// completion cannot rewrite history.
func (r *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := readRecord[models.WorkflowInstance](r.dir, instance.ID)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow_instance", instance.ID, err)
	}

	if existing != nil && existing.Status.Terminal() {
		return persistence.NewStoreError("Save", "workflow_instance", instance.ID, persistence.ErrConcurrentModification)
	}

	instance.UpdatedAt = time.Now().UTC()

	if err := writeRecord(r.dir, instance.ID, instance); err != nil {
		return persistence.NewStoreError("Save", "workflow_instance", instance.ID, err)
	}

	return nil
}

func (r *InstanceRepository) Active(ctx context.Context, workflowID string) ([]*models.WorkflowInstance, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowInstance{}, nil
		}

		return nil, persistence.NewStoreError("Active", "workflow_instance", "", err)
	}

	active := make([]*models.WorkflowInstance, 0)

	for _, id := range ids {
		instance, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if instance.WorkflowID == workflowID && !instance.Status.Terminal() {
			active = append(active, instance)
		}
	}

	return active, nil
}

func (r *InstanceRepository) Stats(ctx context.Context) (*models.InstanceStats, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.InstanceStats{}, nil
		}

		return nil, persistence.NewStoreError("Stats", "workflow_instance", "", err)
	}

	stats := &models.InstanceStats{}

	var totalMs, measured int64

	for _, id := range ids {
		instance, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		stats.Total++

		switch instance.Status {
		case models.InstanceStatusCompleted:
			stats.Completed++
		case models.InstanceStatusFailed:
			stats.Failed++
		}

		if duration := instance.DurationMs(); duration > 0 {
			totalMs += duration
			measured++
		}
	}

	if measured > 0 {
		stats.AverageExecutionMs = float64(totalMs) / float64(measured)
	}

	return stats, nil
}

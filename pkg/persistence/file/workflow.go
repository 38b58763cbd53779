package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
)

const workflowsDir = "workflow_definitions"

// WorkflowRepository stores workflow definitions as JSON documents.
type WorkflowRepository struct {
	dir string
	mu  sync.Mutex
}

func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{dir: filepath.Join(root, workflowsDir)}
}

func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListOptions) ([]*models.WorkflowDefinition, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowDefinition{}, nil
		}

		return nil, persistence.NewStoreError("List", "workflow", "", err)
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if opts.Status != nil && workflow.Status != *opts.Status {
			continue
		}

		if opts.Search != "" && !strings.Contains(strings.ToLower(workflow.Name), strings.ToLower(opts.Search)) {
			continue
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return paginate(workflows, opts.Page, opts.Limit), nil
}

// Active returns every active definition without pagination.
func (r *WorkflowRepository) Active(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowDefinition{}, nil
		}

		return nil, persistence.NewStoreError("Active", "workflow", "", err)
	}

	workflows := make([]*models.WorkflowDefinition, 0, len(ids))

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if workflow.Dispatchable() {
			workflows = append(workflows, workflow)
		}
	}

	return workflows, nil
}

func (r *WorkflowRepository) Counts(ctx context.Context) (int, int, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}

		return 0, 0, persistence.NewStoreError("Counts", "workflow", "", err)
	}

	var total, active int

	for _, id := range ids {
		workflow, err := r.GetByID(ctx, id)
		if err != nil {
			return 0, 0, err
		}

		total++

		if workflow.Dispatchable() {
			active++
		}
	}

	return total, active, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	workflow, err := readRecord[models.WorkflowDefinition](r.dir, id)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, err)
	}

	if workflow == nil {
		return nil, persistence.NewStoreError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return workflow, nil
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := readRecord[models.WorkflowDefinition](r.dir, workflow.ID)
	if err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	now := time.Now().UTC()

	if existing == nil {
		if workflow.CreatedAt.IsZero() {
			workflow.CreatedAt = now
		}

		workflow.Version = 1
	} else {
		if workflow.Version != existing.Version {
			return persistence.NewStoreError("Save", "workflow", workflow.ID, persistence.ErrConcurrentModification)
		}

		workflow.CreatedAt = existing.CreatedAt
		workflow.Version = existing.Version + 1
	}

	workflow.UpdatedAt = now

	if err := writeRecord(r.dir, workflow.ID, workflow); err != nil {
		return persistence.NewStoreError("Save", "workflow", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := readRecord[models.WorkflowDefinition](r.dir, id)
	if err != nil {
		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	if existing == nil {
		return persistence.NewStoreError("Delete", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	if err := deleteRecord(r.dir, id); err != nil {
		return persistence.NewStoreError("Delete", "workflow", id, err)
	}

	return nil
}

package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
)

const executionsDir = "scheduled_task_executions"

// ExecutionRepository stores scheduled-task execution rows. Append-only.
type ExecutionRepository struct {
	dir string
	mu  sync.Mutex
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{dir: filepath.Join(root, executionsDir)}
}

func (r *ExecutionRepository) Append(_ context.Context, execution *models.ScheduledTaskExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if execution.ID == "" {
		execution.ID = uuid.New().String()
	}

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	if err := writeRecord(r.dir, execution.ID, execution); err != nil {
		return persistence.NewStoreError("Append", "scheduled_task_execution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) ListByTask(_ context.Context, taskID string, opts persistence.ListOptions) ([]*models.ScheduledTaskExecution, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ScheduledTaskExecution{}, nil
		}

		return nil, persistence.NewStoreError("ListByTask", "scheduled_task_execution", taskID, err)
	}

	executions := make([]*models.ScheduledTaskExecution, 0)

	for _, id := range ids {
		execution, err := readRecord[models.ScheduledTaskExecution](r.dir, id)
		if err != nil {
			return nil, persistence.NewStoreError("ListByTask", "scheduled_task_execution", id, err)
		}

		if execution != nil && execution.TaskID == taskID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].ExecutedAt.After(executions[j].ExecutedAt)
	})

	return paginate(executions, opts.Page, opts.Limit), nil
}

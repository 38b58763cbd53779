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

const tasksDir = "scheduled_tasks"

// runLockExpiry bounds how long a run lock survives without release, so a
// crashed process does not block a task forever.
const runLockExpiry = 10 * time.Minute

// ScheduledTaskRepository stores scheduled tasks as JSON documents. The mutex
// makes the lock operations atomic within one process; the running_since
// field itself is persisted, so a restarted process still observes a held lock.
type ScheduledTaskRepository struct {
	dir string
	mu  sync.Mutex
}

func NewScheduledTaskRepository(root string) *ScheduledTaskRepository {
	return &ScheduledTaskRepository{dir: filepath.Join(root, tasksDir)}
}

func (r *ScheduledTaskRepository) List(ctx context.Context, opts persistence.ListOptions) ([]*models.ScheduledTask, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ScheduledTask{}, nil
		}

		return nil, persistence.NewStoreError("List", "scheduled_task", "", err)
	}

	tasks := make([]*models.ScheduledTask, 0, len(ids))

	for _, id := range ids {
		task, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if opts.Search != "" && !strings.Contains(strings.ToLower(task.TaskName), strings.ToLower(opts.Search)) {
			continue
		}

		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	return paginate(tasks, opts.Page, opts.Limit), nil
}

func (r *ScheduledTaskRepository) GetByID(_ context.Context, id string) (*models.ScheduledTask, error) {
	task, err := readRecord[models.ScheduledTask](r.dir, id)
	if err != nil {
		return nil, persistence.NewStoreError("GetByID", "scheduled_task", id, err)
	}

	if task == nil {
		return nil, persistence.NewStoreError("GetByID", "scheduled_task", id, persistence.ErrTaskNotFound)
	}

	return task, nil
}

// Save creates or updates a task with an optimistic version check. The
// running_since lock column is owned exclusively by AcquireRunLock and
// ReleaseRunLock; Save always preserves the stored value.
func (r *ScheduledTaskRepository) Save(_ context.Context, task *models.ScheduledTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := readRecord[models.ScheduledTask](r.dir, task.ID)
	if err != nil {
		return persistence.NewStoreError("Save", "scheduled_task", task.ID, err)
	}

	now := time.Now().UTC()

	if existing == nil {
		if task.CreatedAt.IsZero() {
			task.CreatedAt = now
		}

		task.Version = 1
	} else {
		if task.Version != existing.Version {
			return persistence.NewStoreError("Save", "scheduled_task", task.ID, persistence.ErrConcurrentModification)
		}

		task.CreatedAt = existing.CreatedAt
		task.RunningSince = existing.RunningSince
		task.Version = existing.Version + 1
	}

	task.UpdatedAt = now

	if err := writeRecord(r.dir, task.ID, task); err != nil {
		return persistence.NewStoreError("Save", "scheduled_task", task.ID, err)
	}

	return nil
}

func (r *ScheduledTaskRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := readRecord[models.ScheduledTask](r.dir, id)
	if err != nil {
		return persistence.NewStoreError("Delete", "scheduled_task", id, err)
	}

	if existing == nil {
		return persistence.NewStoreError("Delete", "scheduled_task", id, persistence.ErrTaskNotFound)
	}

	if err := deleteRecord(r.dir, id); err != nil {
		return persistence.NewStoreError("Delete", "scheduled_task", id, err)
	}

	return nil
}

func (r *ScheduledTaskRepository) Due(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error) {
	ids, err := listIDs(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ScheduledTask{}, nil
		}

		return nil, persistence.NewStoreError("Due", "scheduled_task", "", err)
	}

	due := make([]*models.ScheduledTask, 0)

	for _, id := range ids {
		task, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if task.IsDue(now) {
			due = append(due, task)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRunAt.Before(*due[j].NextRunAt)
	})

	return due, nil
}

// AcquireRunLock is the compare-and-swap on running_since: it succeeds only
// when no run is in flight (or the previous holder exceeded runLockExpiry).
func (r *ScheduledTaskRepository) AcquireRunLock(_ context.Context, taskID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, err := readRecord[models.ScheduledTask](r.dir, taskID)
	if err != nil {
		return false, persistence.NewStoreError("AcquireRunLock", "scheduled_task", taskID, err)
	}

	if task == nil {
		return false, persistence.NewStoreError("AcquireRunLock", "scheduled_task", taskID, persistence.ErrTaskNotFound)
	}

	if task.RunningSince != nil && now.Sub(*task.RunningSince) < runLockExpiry {
		return false, nil
	}

	task.RunningSince = &now

	if err := writeRecord(r.dir, taskID, task); err != nil {
		return false, persistence.NewStoreError("AcquireRunLock", "scheduled_task", taskID, err)
	}

	return true, nil
}

func (r *ScheduledTaskRepository) ReleaseRunLock(_ context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, err := readRecord[models.ScheduledTask](r.dir, taskID)
	if err != nil {
		return persistence.NewStoreError("ReleaseRunLock", "scheduled_task", taskID, err)
	}

	if task == nil {
		return persistence.NewStoreError("ReleaseRunLock", "scheduled_task", taskID, persistence.ErrTaskNotFound)
	}

	task.RunningSince = nil

	if err := writeRecord(r.dir, taskID, task); err != nil {
		return persistence.NewStoreError("ReleaseRunLock", "scheduled_task", taskID, err)
	}

	return nil
}

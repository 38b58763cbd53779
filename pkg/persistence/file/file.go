// Package file provides a file-based persistence implementation. Each record
// is one JSON document under a per-collection directory, which keeps the
// store inspectable during development and trivial to seed in tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/orchonhq/orchon/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root       string
	workflows  *WorkflowRepository
	instances  *InstanceRepository
	tasks      *ScheduledTaskRepository
	executions *ExecutionRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix on the path is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:       cleanRoot,
		workflows:  NewWorkflowRepository(cleanRoot),
		instances:  NewInstanceRepository(cleanRoot),
		tasks:      NewScheduledTaskRepository(cleanRoot),
		executions: NewExecutionRepository(cleanRoot),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) Instances() persistence.InstanceRepository {
	return p.instances
}

func (p *Persistence) ScheduledTasks() persistence.ScheduledTaskRepository {
	return p.tasks
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// recordPath returns the document path for one record.
func recordPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

// readRecord loads one JSON document. Returns (nil, nil) when absent.
func readRecord[T any](dir, id string) (*T, error) {
	data, err := os.ReadFile(recordPath(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}

	var record T
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}

	return &record, nil
}

// writeRecord stores one JSON document, creating the collection directory on
// first use. Writes go through a temp file and rename so a crash mid-write
// never leaves a truncated document behind.
func writeRecord(dir, id string, record any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", id, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write record %s: %w", id, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close temp file for %s: %w", id, err)
	}

	return os.Rename(tmp.Name(), recordPath(dir, id))
}

// deleteRecord removes one document. Missing documents are not an error here;
// repositories decide whether absence matters.
func deleteRecord(dir, id string) error {
	err := os.Remove(recordPath(dir, id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// listIDs returns the record IDs present in a collection directory.
func listIDs(dir string) ([]string, error) {
	entries, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, strings.TrimSuffix(entry, ".json"))
	}

	return ids, nil
}

// paginate applies page/limit windowing with the store's defaults.
func paginate[T any](items []T, page, limit int) []T {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	if page <= 0 {
		page = 1
	}

	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	return items[start:end]
}

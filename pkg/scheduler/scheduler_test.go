package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchonhq/orchon/pkg/eventbus"
	"github.com/orchonhq/orchon/pkg/events"
	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/persistence/file"
)

// captureBus records published events instead of delivering them.
type captureBus struct {
	mu     sync.Mutex
	events []eventbus.Event
	nextID int
}

func (b *captureBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *captureBus) Handle(events.EventType, eventbus.EventHandler) error { return nil }
func (b *captureBus) Subscribe(context.Context) error                      { return nil }
func (b *captureBus) Close() error                                         { return nil }

func (b *captureBus) GenerateID() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++

	return string(rune('a' + b.nextID))
}

func (b *captureBus) published() []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]eventbus.Event(nil), b.events...)
}

func setupScheduler(t *testing.T, at time.Time) (*Scheduler, *captureBus, persistence.Persistence, *clockwork.FakeClock) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	bus := &captureBus{}
	clock := clockwork.NewFakeClockAt(at)
	scheduler := NewScheduler(store, bus, WithClock(clock))

	return scheduler, bus, store, clock
}

func saveDueTask(t *testing.T, store persistence.Persistence, id string, dueAt time.Time) *models.ScheduledTask {
	t.Helper()

	task, err := models.NewScheduledTask(id, id, models.TaskTypeAction, "* * * * *")
	require.NoError(t, err)

	task.Action = &models.Action{ID: "step", Type: "log", Parameters: map[string]any{"message": "tick"}}
	task.NextRunAt = &dueAt
	require.NoError(t, store.ScheduledTasks().Save(context.Background(), task))

	return task
}

func TestScheduler_Tick_FiresDueTask(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)
	scheduler, bus, store, _ := setupScheduler(t, now)
	ctx := context.Background()

	saveDueTask(t, store, "task-1", now.Add(-time.Second))

	scheduler.Tick(ctx)

	published := bus.published()
	require.Len(t, published, 1)

	due, ok := published[0].(events.TaskDue)
	require.True(t, ok)
	assert.Equal(t, "task-1", due.TaskID)

	stored, err := store.ScheduledTasks().GetByID(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, time.Date(2026, 3, 10, 9, 1, 0, 0, time.UTC), stored.NextRunAt.UTC(),
		"next fire computed from the run's start time")
	require.NotNil(t, stored.RunningSince, "lock stays held until the run outcome is recorded")
}

func TestScheduler_Tick_NotDueYet(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)
	scheduler, bus, store, _ := setupScheduler(t, now)

	saveDueTask(t, store, "task-1", now.Add(time.Minute))

	scheduler.Tick(context.Background())

	assert.Empty(t, bus.published())
}

func TestScheduler_Tick_SecondFireWhileLocked(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)
	scheduler, bus, store, _ := setupScheduler(t, now)
	ctx := context.Background()

	task := saveDueTask(t, store, "task-1", now.Add(-time.Second))

	scheduler.Tick(ctx)
	require.Len(t, bus.published(), 1)

	// The first run is still in flight when the task comes due again.
	stored, err := store.ScheduledTasks().GetByID(ctx, "task-1")
	require.NoError(t, err)

	overdue := now.Add(-time.Second)
	stored.NextRunAt = &overdue
	require.NoError(t, store.ScheduledTasks().Save(ctx, stored))

	scheduler.Tick(ctx)

	assert.Len(t, bus.published(), 1, "locked task must not fire again")

	executions, err := store.Executions().ListByTask(ctx, task.ID, persistence.ListOptions{})
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionStatusSkipped, executions[0].Status)
}

func TestScheduler_Tick_MultipleDueTasks(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)
	scheduler, bus, store, _ := setupScheduler(t, now)

	saveDueTask(t, store, "task-1", now.Add(-2*time.Second))
	saveDueTask(t, store, "task-2", now.Add(-time.Second))

	scheduler.Tick(context.Background())

	published := bus.published()
	require.Len(t, published, 2)

	ids := make([]string, 0, len(published))
	for _, event := range published {
		ids = append(ids, event.(events.TaskDue).TaskID)
	}

	assert.ElementsMatch(t, []string{"task-1", "task-2"}, ids)
}

func TestScheduler_Start_TicksUntilCancelled(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 30, 0, time.UTC)
	scheduler, bus, store, clock := setupScheduler(t, now)

	saveDueTask(t, store, "task-1", now.Add(-time.Second))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)

	go func() {
		done <- scheduler.Start(ctx)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultTickInterval)

	require.Eventually(t, func() bool {
		return len(bus.published()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

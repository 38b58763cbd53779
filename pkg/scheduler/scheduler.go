// Package scheduler drives time-based task execution. It polls the store for
// due tasks on a fixed tick, claims each one through the run lock, advances
// its next fire time and publishes a TaskDue event for the dispatcher.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/orchonhq/orchon/pkg/eventbus"
	"github.com/orchonhq/orchon/pkg/events"
	"github.com/orchonhq/orchon/pkg/log"
	"github.com/orchonhq/orchon/pkg/persistence"
	"github.com/orchonhq/orchon/pkg/recorder"
)

const DefaultTickInterval = time.Second

// Scheduler owns the tick loop. It never executes task payloads itself; a
// claimed task is handed to the dispatcher via the event bus. Several
// scheduler processes can run against one store: the run lock's
// compare-and-swap decides which one dispatches.
type Scheduler struct {
	tasks        persistence.ScheduledTaskRepository
	recorder     *recorder.Recorder
	publisher    eventbus.EventPublisher
	generateID   func() string
	clock        clockwork.Clock
	tickInterval time.Duration
	logger       *slog.Logger
}

type Option func(*Scheduler)

// WithClock injects a fake clock for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithTickInterval overrides the one-second default poll interval.
func WithTickInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.tickInterval = interval
		}
	}
}

func NewScheduler(p persistence.Persistence, bus eventbus.EventBus, opts ...Option) *Scheduler {
	scheduler := &Scheduler{
		tasks:        p.ScheduledTasks(),
		recorder:     recorder.NewRecorder(p),
		publisher:    bus,
		generateID:   bus.GenerateID,
		clock:        clockwork.NewRealClock(),
		tickInterval: DefaultTickInterval,
		logger:       log.WithModule("scheduler"),
	}

	for _, opt := range opts {
		opt(scheduler)
	}

	return scheduler
}

// Start runs the tick loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Scheduler started", "tick_interval", s.tickInterval)

	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Scheduler stopped")

			return ctx.Err()
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}

// Tick scans for due tasks and dispatches each claimable one. Exported so
// callers with their own loop (and tests) can drive the scheduler directly.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now().UTC()

	due, err := s.tasks.Due(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to scan due tasks", "error", err)

		return
	}

	for _, task := range due {
		s.fire(ctx, task.ID, now)
	}
}

// fire claims one due task and publishes its TaskDue event. Contention is
// expected when the previous run is still in flight or another scheduler got
// there first; the former leaves a skipped row behind.
func (s *Scheduler) fire(ctx context.Context, taskID string, now time.Time) {
	locked, err := s.tasks.AcquireRunLock(ctx, taskID, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to acquire run lock", "task_id", taskID, "error", err)

		return
	}

	if !locked {
		if err := s.recorder.RecordSkipped(ctx, taskID, now); err != nil {
			s.logger.ErrorContext(ctx, "Failed to record skipped run", "task_id", taskID, "error", err)
		}

		return
	}

	if err := s.advanceNextRun(ctx, taskID, now); err != nil {
		s.logger.ErrorContext(ctx, "Failed to advance next run time", "task_id", taskID, "error", err)
		s.releaseLock(ctx, taskID)

		return
	}

	event := events.TaskDue{
		BaseEvent: events.BaseEvent{
			ID:        s.generateID(),
			Type:      events.TaskDueEvent,
			Timestamp: now,
		},
		TaskID: taskID,
	}

	if err := s.publisher.Publish(ctx, taskID, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish task due event", "task_id", taskID, "error", err)
		s.releaseLock(ctx, taskID)

		return
	}

	s.logger.InfoContext(ctx, "Task dispatched", "task_id", taskID)
}

// advanceNextRun recomputes next_run_at from the run's start time, so a slow
// run delays the following fire instead of compressing the cadence.
func (s *Scheduler) advanceNextRun(ctx context.Context, taskID string, now time.Time) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}

	if err := task.ComputeNextRun(now); err != nil {
		return err
	}

	return s.tasks.Save(ctx, task)
}

func (s *Scheduler) releaseLock(ctx context.Context, taskID string) {
	if err := s.tasks.ReleaseRunLock(ctx, taskID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to release run lock", "task_id", taskID, "error", err)
	}
}

// Package events defines the event types flowing between the scheduler, the
// dispatcher and the executor, and the lifecycle notifications they emit.
package events

import "time"

type EventType string

// Topic is the single event stream shared by all engine components.
const Topic = "orchon.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Scheduler to dispatcher.
	TaskDueEvent EventType = "task.due"

	// External event intake to dispatcher.
	ExternalEventReceived EventType = "event.received"

	// Instance lifecycle notifications emitted by the executor. Informational
	// only: the authoritative record is the instance row itself.
	InstanceStartedEvent   EventType = "instance.started"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceFailedEvent    EventType = "instance.failed"
	InstanceCancelledEvent EventType = "instance.cancelled"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskDue signals that a scheduled task's run lock was acquired and the run
// should be dispatched.
type TaskDue struct {
	BaseEvent

	TaskID string `json:"task_id"`
}

func (t TaskDue) GetType() EventType {
	return TaskDueEvent
}

// ExternalEvent carries a domain event (e.g. "lead_scored") into the
// dispatcher for trigger matching.
type ExternalEvent struct {
	BaseEvent

	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (e ExternalEvent) GetType() EventType {
	return ExternalEventReceived
}

type InstanceStarted struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	WorkflowID string `json:"workflow_id"`
}

func (i InstanceStarted) GetType() EventType {
	return InstanceStartedEvent
}

type InstanceCompleted struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	WorkflowID string `json:"workflow_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (i InstanceCompleted) GetType() EventType {
	return InstanceCompletedEvent
}

type InstanceFailed struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	WorkflowID string `json:"workflow_id"`
	Error      string `json:"error"`
	DurationMs int64  `json:"duration_ms"`
}

func (i InstanceFailed) GetType() EventType {
	return InstanceFailedEvent
}

type InstanceCancelled struct {
	BaseEvent

	InstanceID string `json:"instance_id"`
	WorkflowID string `json:"workflow_id"`
	DurationMs int64  `json:"duration_ms"`
}

func (i InstanceCancelled) GetType() EventType {
	return InstanceCancelledEvent
}

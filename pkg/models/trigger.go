package models

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// TriggerType discriminates the trigger variant.
type TriggerType string

const (
	TriggerTypeEvent    TriggerType = "event"    // Fires on a matching external event
	TriggerTypeSchedule TriggerType = "schedule" // Fires on a cron schedule
)

var ErrInvalidTrigger = errors.New("invalid trigger")

// cronParser accepts standard 5-field expressions with an optional leading
// seconds field. Day-of-month and day-of-week are OR'd per cron convention.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ParseCron parses a cron expression with the engine's grammar.
func ParseCron(expression string) (cron.Schedule, error) {
	return cronParser.Parse(expression)
}

// Trigger is a tagged variant: an event trigger carries an event type and an
// optional condition list evaluated against the event payload; a schedule
// trigger carries a cron expression. The polymorphic JSON the client sends is
// decoded into this single struct and the unused fields stay zero.
type Trigger struct {
	ID             string      `json:"id"`
	Type           TriggerType `json:"type"                      validate:"required,oneof=event schedule"`
	EventType      string      `json:"event_type,omitempty"`
	Conditions     []Condition `json:"conditions,omitempty"`
	CronExpression string      `json:"cron_expression,omitempty"`
}

// Validate rejects malformed triggers before persistence.
func (t *Trigger) Validate() error {
	switch t.Type {
	case TriggerTypeEvent:
		if t.EventType == "" {
			return fmt.Errorf("%w: event trigger requires event_type", ErrInvalidTrigger)
		}

		for i, condition := range t.Conditions {
			if err := condition.Validate(); err != nil {
				return fmt.Errorf("condition %d: %w", i, err)
			}
		}
	case TriggerTypeSchedule:
		if t.CronExpression == "" {
			return fmt.Errorf("%w: schedule trigger requires cron_expression", ErrInvalidTrigger)
		}

		if _, err := ParseCron(t.CronExpression); err != nil {
			return fmt.Errorf("%w: cron expression %q: %w", ErrInvalidTrigger, t.CronExpression, err)
		}
	default:
		return fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, t.Type)
	}

	return nil
}

// Matches reports whether an event trigger matches the given event type and
// whether its conditions pass against the payload. Schedule triggers never
// match events.
func (t *Trigger) Matches(eventType string, payload map[string]any) (bool, error) {
	if t.Type != TriggerTypeEvent || t.EventType != eventType {
		return false, nil
	}

	return EvaluateConditions(t.Conditions, payload)
}

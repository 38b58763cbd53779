package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowDefinition_Validate(t *testing.T) {
	valid := WorkflowDefinition{
		Name:   "lead followup",
		Status: WorkflowStatusActive,
		Triggers: []Trigger{
			{Type: TriggerTypeEvent, EventType: "lead_created"},
			{Type: TriggerTypeSchedule, CronExpression: "*/5 * * * *"},
		},
		Actions: []Action{
			{Type: "send_email", Parameters: map[string]any{"to": "sales@example.com"}},
		},
	}
	require.NoError(t, valid.Validate())

	noName := valid
	noName.Name = ""
	assert.ErrorIs(t, noName.Validate(), ErrInvalidWorkflow)

	badStatus := valid
	badStatus.Status = "paused"
	assert.Error(t, badStatus.Validate())

	badCron := valid
	badCron.Triggers = []Trigger{{Type: TriggerTypeSchedule, CronExpression: "every 5 minutes"}}
	assert.Error(t, badCron.Validate())

	eventWithoutType := valid
	eventWithoutType.Triggers = []Trigger{{Type: TriggerTypeEvent}}
	assert.Error(t, eventWithoutType.Validate())

	// Zero actions is valid: such instances complete immediately.
	noActions := valid
	noActions.Actions = nil
	assert.NoError(t, noActions.Validate())
}

func TestWorkflowDefinition_RetryBudgetFor(t *testing.T) {
	two := 2
	five := 5

	definition := WorkflowDefinition{DefaultMaxRetries: &five}

	assert.Equal(t, 2, definition.RetryBudgetFor(&Action{MaxRetries: &two}))
	assert.Equal(t, 5, definition.RetryBudgetFor(&Action{}))

	bare := WorkflowDefinition{}
	assert.Equal(t, DefaultMaxRetries, bare.RetryBudgetFor(&Action{}))
}

func TestTrigger_Matches(t *testing.T) {
	trigger := &Trigger{
		Type:      TriggerTypeEvent,
		EventType: "lead_scored",
		Conditions: []Condition{
			{FieldName: "score", Operator: OperatorGreaterThan, Value: "75"},
		},
	}

	matched, err := trigger.Matches("lead_scored", map[string]any{"score": float64(90)})
	require.NoError(t, err)
	assert.True(t, matched)

	matched, err = trigger.Matches("lead_scored", map[string]any{"score": float64(10)})
	require.NoError(t, err)
	assert.False(t, matched)

	matched, err = trigger.Matches("lead_created", map[string]any{"score": float64(90)})
	require.NoError(t, err)
	assert.False(t, matched, "different event type never matches")

	schedule := &Trigger{Type: TriggerTypeSchedule, CronExpression: "* * * * *"}
	matched, err = schedule.Matches("lead_scored", nil)
	require.NoError(t, err)
	assert.False(t, matched, "schedule triggers never match events")
}

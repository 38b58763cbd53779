package models

// ExecutionContext carries the identity and trigger payload of the run an
// action executes inside. For bare scheduled-task actions the instance fields
// are empty and TaskID is set.
type ExecutionContext struct {
	InstanceID  string         `json:"instance_id,omitempty"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	TaskID      string         `json:"task_id,omitempty"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

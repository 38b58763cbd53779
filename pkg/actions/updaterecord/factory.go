package updaterecord

import (
	"context"

	"github.com/orchonhq/orchon/pkg/protocol"
)

// ActionFactory is the factory for creating update-record action instances.
type ActionFactory struct{}

// NewActionFactory creates a new instance of ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// ID returns the unique identifier for the action factory.
func (*ActionFactory) ID() string {
	return "update_record"
}

// Name returns the name of the action factory.
func (*ActionFactory) Name() string {
	return "Update Record"
}

// Description returns a brief description of the action.
func (*ActionFactory) Description() string {
	return "Patches a record in an external business system over its REST API."
}

// Create creates a new update-record action instance with the provided configuration.
func (f *ActionFactory) Create(_ context.Context, config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config)
}

// Schema returns the JSON schema for the action configuration.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"base_url": map[string]any{
				"type":        "string",
				"description": "Base URL of the record API.",
				"format":      "uri",
			},
			"record_type": map[string]any{
				"type":        "string",
				"description": "Collection the record belongs to, e.g. customers or orders.",
			},
			"record_id": map[string]any{
				"type":        "string",
				"description": "Identifier of the record to update.",
			},
			"fields": map[string]any{
				"type":          "object",
				"description":   "Field names and their new values.",
				"minProperties": 1,
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Extra headers, e.g. authorization tokens.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
		},
		"required": []string{"base_url", "record_type", "record_id", "fields"},
	}
}

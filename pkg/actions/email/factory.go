package email

import (
	"context"

	"github.com/orchonhq/orchon/pkg/protocol"
)

// ActionFactory is the factory for creating email action instances.
type ActionFactory struct{}

// NewActionFactory creates a new instance of ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// ID returns the unique identifier for the action factory.
func (*ActionFactory) ID() string {
	return "send_email"
}

// Name returns the name of the action factory.
func (*ActionFactory) Name() string {
	return "Email"
}

// Description returns a brief description of the action.
func (*ActionFactory) Description() string {
	return "Sends a plain-text email through an SMTP relay."
}

// Create creates a new email action instance with the provided configuration.
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
			"smtp_host": map[string]any{
				"type":        "string",
				"description": "SMTP relay hostname.",
			},
			"smtp_port": map[string]any{
				"type":        "number",
				"description": "SMTP relay port",
				"default":     587,
			},
			"from": map[string]any{
				"type":        "string",
				"description": "Sender address.",
			},
			"to": map[string]any{
				"description": "Recipient addresses, as a list or a comma-separated string.",
				"oneOf": []map[string]any{
					{"type": "string"},
					{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Message subject.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Plain-text message body.",
			},
			"username": map[string]any{
				"type":        "string",
				"description": "Username for SMTP PLAIN auth. Leave empty for an open relay.",
			},
			"password": map[string]any{
				"type":        "string",
				"description": "Password for SMTP PLAIN auth.",
			},
		},
		"required": []string{"smtp_host", "to", "subject"},
	}
}

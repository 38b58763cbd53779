package webhook

import (
	"context"

	"github.com/orchonhq/orchon/pkg/protocol"
)

// ActionFactory is the factory for creating webhook action instances.
type ActionFactory struct{}

// NewActionFactory creates a new instance of ActionFactory.
func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

// ID returns the unique identifier for the action factory.
func (*ActionFactory) ID() string {
	return "call_webhook"
}

// Name returns the name of the action factory.
func (*ActionFactory) Name() string {
	return "Webhook"
}

// Description returns a brief description of the action.
func (*ActionFactory) Description() string {
	return "Delivers an HTTP request to an external endpoint."
}

// Create creates a new webhook action instance with the provided configuration.
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
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute URL of the endpoint to call.",
				"format":      "uri",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method for the request",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "Extra headers to send with the request.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Sent as application/json unless a Content-Type header overrides it.",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
			},
		},
		"required": []string{"url"},
	}
}

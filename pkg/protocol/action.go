// Package protocol defines the contracts action implementations satisfy.
package protocol

import (
	"context"
	"log/slog"

	"github.com/orchonhq/orchon/pkg/models"
)

type Action interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (any, error)
}

type ActionFactory interface {
	// ID returns the action type name used in workflow definitions.
	ID() string
	Name() string
	Description() string

	// Schema returns the JSON schema the action's parameters must satisfy.
	// Checked by the registry when a definition is saved.
	Schema() map[string]any

	Create(ctx context.Context, config map[string]any) (Action, error)
}

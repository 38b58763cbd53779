// Package noop provides an action that does nothing. Useful as a placeholder
// in definitions and in tests.
package noop

import (
	"context"
	"log/slog"

	"github.com/orchonhq/orchon/pkg/models"
	"github.com/orchonhq/orchon/pkg/protocol"
)

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "noop"
}

func (*ActionFactory) Name() string {
	return "No-op"
}

func (*ActionFactory) Description() string {
	return "Does nothing and always succeeds."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (f *ActionFactory) Create(_ context.Context, _ map[string]any) (protocol.Action, error) {
	return &Action{}, nil
}

type Action struct{}

func (a *Action) Execute(_ context.Context, _ models.ExecutionContext, _ *slog.Logger) (any, error) {
	return map[string]any{}, nil
}

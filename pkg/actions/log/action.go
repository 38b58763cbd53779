package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orchonhq/orchon/pkg/models"
)

type Action struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

func NewAction(config map[string]any) (*Action, error) {
	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, fmt.Errorf("log action requires a non-empty message")
	}

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	switch level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log action: unknown level %q", level)
	}

	return &Action{Message: message, Level: level}, nil
}

func (a *Action) Execute(_ context.Context, execCtx models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("instance_id", execCtx.InstanceID)

	switch a.Level {
	case "debug":
		logger.Debug(a.Message)
	case "warn":
		logger.Warn(a.Message)
	case "error":
		logger.Error(a.Message)
	default:
		logger.Info(a.Message)
	}

	return map[string]any{"message": a.Message, "level": a.Level}, nil
}

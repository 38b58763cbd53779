// Package registry holds the catalog of available action types and validates
// action parameters against their schemas.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/orchonhq/orchon/pkg/protocol"
)

var ErrUnknownActionType = errors.New("action type not registered")

type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger,
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) RegisterAction(factory protocol.ActionFactory) {
	r.actionFactories[factory.ID()] = factory
}

// ActionFactories returns the registered factories sorted by ID.
func (r *Registry) ActionFactories() []protocol.ActionFactory {
	ids := r.ActionTypes()
	sort.Strings(ids)

	factories := make([]protocol.ActionFactory, 0, len(ids))
	for _, id := range ids {
		factories = append(factories, r.actionFactories[id])
	}

	return factories
}

// ActionTypes returns the registered action type names.
func (r *Registry) ActionTypes() []string {
	types := make([]string, 0, len(r.actionFactories))
	for actionType := range r.actionFactories {
		types = append(types, actionType)
	}

	return types
}

func (r *Registry) CreateAction(ctx context.Context, actionType string, config map[string]any) (protocol.Action, error) {
	factory, ok := r.actionFactories[actionType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}

	return factory.Create(ctx, config)
}

// ValidateActionParameters checks a parameter map against the registered
// factory's JSON schema. Definitions with malformed parameters are rejected
// at save time instead of failing mid-execution.
func (r *Registry) ValidateActionParameters(actionType string, parameters map[string]any) error {
	factory, ok := r.actionFactories[actionType]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownActionType, actionType)
	}

	if parameters == nil {
		parameters = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(factory.Schema()),
		gojsonschema.NewGoLoader(parameters),
	)
	if err != nil {
		return fmt.Errorf("failed to validate %q parameters: %w", actionType, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, resultError := range result.Errors() {
			details = append(details, resultError.String())
		}

		return fmt.Errorf("invalid parameters for action %q: %s", actionType, strings.Join(details, "; "))
	}

	return nil
}

func (r *Registry) HealthCheck() (string, bool) {
	if len(r.actionFactories) == 0 {
		return "No actions registered", false
	}

	return fmt.Sprintf("%d actions registered", len(r.actionFactories)), true
}

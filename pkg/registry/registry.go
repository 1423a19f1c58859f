// Package registry maps action names to their handler implementations.
package registry

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/helixcrm/automation/pkg/protocol"
)

// ErrUnknownAction indicates a graph node references an action name that was
// never registered. Fatal for the run that hit it.
var ErrUnknownAction = errors.New("unknown action")

// Registry is an explicit, constructed dependency of the executor: actions
// are registered at startup and the executor carries no action-specific
// logic. New actions are added purely by registering a new name.
type Registry struct {
	logger  *slog.Logger
	actions map[string]protocol.Action
}

// NewRegistry creates an empty action registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:  logger,
		actions: make(map[string]protocol.Action),
	}
}

// Register adds an action under its ID, replacing any previous registration.
func (r *Registry) Register(action protocol.Action) {
	r.actions[action.ID()] = action
	r.logger.Debug("Registered action", "action", action.ID())
}

// Action returns the handler registered under name.
func (r *Registry) Action(name string) (protocol.Action, error) {
	action, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("action %q is not registered: %w", name, ErrUnknownAction)
	}

	return action, nil
}

// ActionNames returns the registered action names.
func (r *Registry) ActionNames() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}

	return names
}

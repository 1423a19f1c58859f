// Package protocol defines the contracts between the graph executor and the
// pluggable action implementations.
package protocol

import "context"

// ActionContext identifies the run an action executes on behalf of.
type ActionContext struct {
	OrgID        string
	AutomationID string
	RunID        string
}

// Action is one side-effecting handler in the registry. Input is the node's
// config after placeholder substitution; the returned map becomes the step's
// recorded output.
type Action interface {
	ID() string
	Execute(ctx context.Context, actionCtx ActionContext, input map[string]any) (map[string]any, error)
}

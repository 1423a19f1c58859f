// Package dealstage provides the deal.update_stage action.
package dealstage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixcrm/automation/pkg/persistence"
	"github.com/helixcrm/automation/pkg/protocol"
)

// Action implements deal.update_stage.
type Action struct {
	store  persistence.CRMStore
	logger *slog.Logger
}

// NewAction creates the deal.update_stage action.
func NewAction(store persistence.CRMStore, logger *slog.Logger) *Action {
	return &Action{store: store, logger: logger.With("module", "dealstage_action")}
}

// ID returns the action name.
func (a *Action) ID() string {
	return "deal.update_stage"
}

// Execute moves the referenced deal to a new pipeline stage.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, input map[string]any) (map[string]any, error) {
	dealID, _ := input["deal_id"].(string)
	stage, _ := input["stage"].(string)

	if dealID == "" || stage == "" {
		return nil, fmt.Errorf("deal.update_stage requires 'deal_id' and 'stage'")
	}

	err := a.store.UpdateDealStage(ctx, actionCtx.OrgID, dealID, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to update deal stage: %w", err)
	}

	a.logger.InfoContext(ctx, "Updated deal stage",
		"run_id", actionCtx.RunID, "deal_id", dealID, "stage", stage)

	return map[string]any{"updated": true}, nil
}

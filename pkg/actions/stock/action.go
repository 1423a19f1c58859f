// Package stock provides the stock.reserve action.
package stock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence"
	"github.com/helixcrm/automation/pkg/protocol"
)

// Action implements stock.reserve.
type Action struct {
	store  persistence.CRMStore
	logger *slog.Logger
}

// NewAction creates the stock.reserve action.
func NewAction(store persistence.CRMStore, logger *slog.Logger) *Action {
	return &Action{store: store, logger: logger.With("module", "stock_action")}
}

// ID returns the action name.
func (a *Action) ID() string {
	return "stock.reserve"
}

// Execute inserts one reservation row per line. Each insert is a single-row
// write; a failure partway leaves the earlier lines reserved, which the
// failed step record makes visible to operators.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, input map[string]any) (map[string]any, error) {
	rawLines, ok := input["lines"].([]any)
	if !ok || len(rawLines) == 0 {
		return nil, fmt.Errorf("stock.reserve requires non-empty 'lines'")
	}

	for i, rawLine := range rawLines {
		line, ok := rawLine.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("stock.reserve line %d is malformed", i)
		}

		productID, _ := line["product_id"].(string)
		if productID == "" {
			return nil, fmt.Errorf("stock.reserve line %d missing 'product_id'", i)
		}

		qty, _ := line["qty"].(float64)
		locationID, _ := line["location_id"].(string)

		reservation := &models.StockReservation{
			OrgID:      actionCtx.OrgID,
			RunID:      actionCtx.RunID,
			ProductID:  productID,
			Qty:        qty,
			LocationID: locationID,
		}

		err := a.store.InsertStockReservation(ctx, reservation)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve line %d: %w", i, err)
		}
	}

	a.logger.InfoContext(ctx, "Reserved stock",
		"run_id", actionCtx.RunID, "lines", len(rawLines))

	return map[string]any{"reserved": true}, nil
}

// Package proforma provides the proforma.create action.
package proforma

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence"
	"github.com/helixcrm/automation/pkg/protocol"
)

const defaultCurrency = "EUR"

// Action implements proforma.create.
type Action struct {
	store  persistence.CRMStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAction creates the proforma.create action.
func NewAction(store persistence.CRMStore, logger *slog.Logger) *Action {
	return &Action{
		store:  store,
		logger: logger.With("module", "proforma_action"),
		now:    time.Now,
	}
}

// ID returns the action name.
func (a *Action) ID() string {
	return "proforma.create"
}

// Execute inserts one proforma document row and returns its id and number.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, input map[string]any) (map[string]any, error) {
	salesOrderID, _ := input["sales_order_id"].(string)
	if salesOrderID == "" {
		return nil, fmt.Errorf("proforma.create requires 'sales_order_id'")
	}

	currency, _ := input["currency"].(string)
	if currency == "" {
		currency = defaultCurrency
	}

	document := &models.Proforma{
		OrgID:         actionCtx.OrgID,
		Number:        a.nextNumber(),
		SalesOrderID:  salesOrderID,
		Currency:      currency,
		SubtotalCents: centsField(input, "subtotal_cents"),
		TaxRate:       floatField(input, "tax_rate"),
		TaxCents:      centsField(input, "tax_cents"),
		TotalCents:    centsField(input, "total_cents"),
	}

	err := a.store.InsertProforma(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("failed to create proforma: %w", err)
	}

	a.logger.InfoContext(ctx, "Created proforma",
		"run_id", actionCtx.RunID, "proforma_id", document.ID, "number", document.Number)

	return map[string]any{
		"id":     document.ID,
		"number": document.Number,
	}, nil
}

// nextNumber builds a document number like PF-2026-3F2A9C1B.
func (a *Action) nextNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])

	return fmt.Sprintf("PF-%d-%s", a.now().UTC().Year(), suffix)
}

func centsField(input map[string]any, key string) int64 {
	return int64(floatField(input, key))
}

func floatField(input map[string]any, key string) float64 {
	switch value := input[key].(type) {
	case float64:
		return value
	case int:
		return float64(value)
	case int64:
		return float64(value)
	default:
		return 0
	}
}

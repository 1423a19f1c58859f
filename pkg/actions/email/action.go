// Package email provides the email.send action: it queues an outbound email
// row for the CRM's delivery worker to pick up.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence"
	"github.com/helixcrm/automation/pkg/protocol"
)

// Action implements email.send.
type Action struct {
	store  persistence.CRMStore
	logger *slog.Logger
}

// NewAction creates the email.send action.
func NewAction(store persistence.CRMStore, logger *slog.Logger) *Action {
	return &Action{store: store, logger: logger.With("module", "email_action")}
}

// ID returns the action name.
func (a *Action) ID() string {
	return "email.send"
}

// Execute inserts one outbound email row. The row's status is "scheduled"
// when schedule_at is set and "queued" otherwise.
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, input map[string]any) (map[string]any, error) {
	to, _ := input["to"].(string)
	if to == "" {
		return nil, fmt.Errorf("email.send requires 'to'")
	}

	email := &models.OutboundEmail{
		OrgID:     actionCtx.OrgID,
		To:        to,
		Subject:   stringField(input, "subject"),
		Body:      stringField(input, "body"),
		CC:        stringField(input, "cc"),
		BCC:       stringField(input, "bcc"),
		DealID:    stringField(input, "deal_id"),
		ContactID: stringField(input, "contact_id"),
		Status:    models.OutboundEmailStatusQueued,
	}

	if scheduleAt := stringField(input, "schedule_at"); scheduleAt != "" {
		at, err := time.Parse(time.RFC3339, scheduleAt)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule_at %q: %w", scheduleAt, err)
		}

		email.ScheduleAt = &at
		email.Status = models.OutboundEmailStatusScheduled
	}

	err := a.store.InsertEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to queue email: %w", err)
	}

	a.logger.InfoContext(ctx, "Queued outbound email",
		"run_id", actionCtx.RunID, "email_id", email.ID, "status", email.Status)

	return map[string]any{"queued": true}, nil
}

func stringField(input map[string]any, key string) string {
	value, _ := input[key].(string)

	return value
}

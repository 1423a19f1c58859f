package email

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence/memory"
	"github.com/helixcrm/automation/pkg/protocol"
)

func TestEmailSendQueuesRow(t *testing.T) {
	store := memory.NewPersistence()
	action := NewAction(store.CRM(), slog.Default())

	assert.Equal(t, "email.send", action.ID())

	output, err := action.Execute(context.Background(), protocol.ActionContext{OrgID: "org-1", RunID: "run-1"}, map[string]any{
		"to":      "ada@example.com",
		"subject": "Welcome",
		"body":    "Hello Ada",
		"deal_id": "deal-9",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"queued": true}, output)

	emails := store.Emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "org-1", emails[0].OrgID)
	assert.Equal(t, "ada@example.com", emails[0].To)
	assert.Equal(t, "Welcome", emails[0].Subject)
	assert.Equal(t, "deal-9", emails[0].DealID)
	assert.Equal(t, models.OutboundEmailStatusQueued, emails[0].Status)
	assert.Nil(t, emails[0].ScheduleAt)
}

func TestEmailSendWithSchedule(t *testing.T) {
	store := memory.NewPersistence()
	action := NewAction(store.CRM(), slog.Default())

	_, err := action.Execute(context.Background(), protocol.ActionContext{OrgID: "org-1"}, map[string]any{
		"to":          "ada@example.com",
		"schedule_at": "2026-04-01T09:00:00Z",
	})
	require.NoError(t, err)

	emails := store.Emails()
	require.Len(t, emails, 1)
	assert.Equal(t, models.OutboundEmailStatusScheduled, emails[0].Status)
	require.NotNil(t, emails[0].ScheduleAt)
	assert.Equal(t, time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC), emails[0].ScheduleAt.UTC())
}

func TestEmailSendValidation(t *testing.T) {
	store := memory.NewPersistence()
	action := NewAction(store.CRM(), slog.Default())

	tests := []struct {
		name  string
		input map[string]any
	}{
		{name: "missing to", input: map[string]any{"subject": "x"}},
		{name: "bad schedule_at", input: map[string]any{"to": "a@b.c", "schedule_at": "tomorrow"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := action.Execute(context.Background(), protocol.ActionContext{}, tt.input)
			require.Error(t, err)
			assert.Empty(t, store.Emails())
		})
	}
}

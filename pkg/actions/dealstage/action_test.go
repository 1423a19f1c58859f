package dealstage

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixcrm/automation/pkg/persistence/memory"
	"github.com/helixcrm/automation/pkg/protocol"
)

func TestUpdateDealStage(t *testing.T) {
	store := memory.NewPersistence()
	action := NewAction(store.CRM(), slog.Default())

	assert.Equal(t, "deal.update_stage", action.ID())

	output, err := action.Execute(context.Background(), protocol.ActionContext{OrgID: "org-1"}, map[string]any{
		"deal_id": "deal-9",
		"stage":   "won",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"updated": true}, output)

	stage, ok := store.DealStage("org-1", "deal-9")
	require.True(t, ok)
	assert.Equal(t, "won", stage)
}

func TestUpdateDealStageValidation(t *testing.T) {
	store := memory.NewPersistence()
	action := NewAction(store.CRM(), slog.Default())

	_, err := action.Execute(context.Background(), protocol.ActionContext{}, map[string]any{"deal_id": "deal-9"})
	require.Error(t, err)

	_, err = action.Execute(context.Background(), protocol.ActionContext{}, map[string]any{"stage": "won"})
	require.Error(t, err)
}

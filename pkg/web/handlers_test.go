package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence/memory"
	"github.com/helixcrm/automation/pkg/protocol"
	"github.com/helixcrm/automation/pkg/registry"
	"github.com/helixcrm/automation/pkg/web"
	"github.com/helixcrm/automation/pkg/workflow"
)

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	store := memory.NewPersistence()
	reg := registry.NewRegistry(slog.Default())
	reg.Register(&countingAction{})

	executor := workflow.NewExecutor(slog.Default(), store, reg, nil)
	dispatcher := workflow.NewDispatcher(slog.Default(), store, executor, 0)
	scheduler := workflow.NewDelayScheduler(slog.Default(), store, executor)

	handlers := web.NewAPIHandlers(slog.Default(), store, dispatcher, scheduler)

	app := fiber.New()
	app.Post("/run", handlers.Run)
	app.Get("/health", handlers.HealthCheck)

	return app, store
}

type countingAction struct {
	calls int
}

func (a *countingAction) ID() string {
	return "record"
}

func (a *countingAction) Execute(_ context.Context, _ protocol.ActionContext, _ map[string]any) (map[string]any, error) {
	a.calls++

	return map[string]any{"ok": true}, nil
}

func seedAutomation(t *testing.T, store *memory.Persistence, status models.AutomationStatus) *models.Automation {
	t.Helper()

	automation := &models.Automation{
		OrgID:   "org-1",
		Name:    "stage change follow-up",
		Status:  status,
		Trigger: models.Trigger{Kind: models.TriggerKindEvent, EventType: "deal.stage_changed"},
		Graph: &models.Graph{
			Nodes: []models.Node{
				{ID: "notify", Type: models.NodeTypeAction, Name: "record"},
			},
		},
	}
	require.NoError(t, store.Automations().Save(context.Background(), automation))

	return automation
}

func postRun(t *testing.T, app *fiber.App, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(http.MethodPost, "/run", reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	decoded := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}

	return resp, decoded
}

func TestRunEndpointDefaultsToAll(t *testing.T) {
	app, store := setupTestApp(t)

	seedAutomation(t, store, models.AutomationStatusActive)
	require.NoError(t, store.Events().Append(context.Background(), &models.Event{
		OrgID:     "org-1",
		EventType: "deal.stage_changed",
	}))

	resp, body := postRun(t, app, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	remaining, err := store.Events().Unprocessed(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRunEndpointEventsMode(t *testing.T) {
	app, store := setupTestApp(t)

	automation := seedAutomation(t, store, models.AutomationStatusActive)
	require.NoError(t, store.Events().Append(context.Background(), &models.Event{
		OrgID:     "org-1",
		EventType: "deal.stage_changed",
	}))

	resp, body := postRun(t, app, map[string]any{"mode": "events"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])

	runs, err := store.Runs().ListByAutomation(context.Background(), automation.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunEndpointDelaysModeIsNoOpWhenNothingDue(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := postRun(t, app, map[string]any{"mode": "delays"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
}

func TestRunEndpointManualMode(t *testing.T) {
	app, store := setupTestApp(t)

	automation := seedAutomation(t, store, models.AutomationStatusActive)

	resp, body := postRun(t, app, map[string]any{
		"mode":          "manual",
		"automation_id": automation.ID,
		"context":       map[string]any{"deal": map[string]any{"id": "deal-9"}},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.NotEmpty(t, body["run_id"])
}

func TestRunEndpointManualModeUnknownAutomation(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := postRun(t, app, map[string]any{
		"mode":          "manual",
		"automation_id": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunEndpointManualModeFailure(t *testing.T) {
	app, store := setupTestApp(t)

	automation := seedAutomation(t, store, models.AutomationStatusDraft)

	resp, body := postRun(t, app, map[string]any{
		"mode":          "manual",
		"automation_id": automation.ID,
	})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body["error"], "not active")
}

func TestRunEndpointRejectsBadMode(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, body := postRun(t, app, map[string]any{"mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_error", body["type"])
}

func TestRunEndpointManualModeRequiresAutomationID(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, _ := postRun(t, app, map[string]any{"mode": "manual"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	body := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "healthy", body["status"])
}

// Package task provides the task.create action.
package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence"
	"github.com/helixcrm/automation/pkg/protocol"
)

const defaultPriority = "Medium"

// Action implements task.create.
type Action struct {
	store  persistence.CRMStore
	logger *slog.Logger
}

// NewAction creates the task.create action.
func NewAction(store persistence.CRMStore, logger *slog.Logger) *Action {
	return &Action{store: store, logger: logger.With("module", "task_action")}
}

// ID returns the action name.
func (a *Action) ID() string {
	return "task.create"
}

// Execute inserts one CRM task row. Priority defaults to "Medium".
func (a *Action) Execute(ctx context.Context, actionCtx protocol.ActionContext, input map[string]any) (map[string]any, error) {
	title, _ := input["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("task.create requires 'title'")
	}

	priority, _ := input["priority"].(string)
	if priority == "" {
		priority = defaultPriority
	}

	dueDate, _ := input["due_date"].(string)
	dealID, _ := input["deal_id"].(string)
	contactID, _ := input["contact_id"].(string)

	crmTask := &models.Task{
		OrgID:     actionCtx.OrgID,
		Title:     title,
		DueDate:   dueDate,
		DealID:    dealID,
		ContactID: contactID,
		Priority:  priority,
	}

	err := a.store.InsertTask(ctx, crmTask)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	a.logger.InfoContext(ctx, "Created task",
		"run_id", actionCtx.RunID, "task_id", crmTask.ID, "priority", priority)

	return map[string]any{"created": true}, nil
}

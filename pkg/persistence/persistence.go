// Package persistence provides the data storage abstraction layer for
// automations, runs, steps, delayed jobs, the event log and the CRM rows the
// built-in actions write.
package persistence

import (
	"context"
	"time"

	"github.com/helixcrm/automation/pkg/models"
)

// Persistence aggregates the repositories a runner needs.
type Persistence interface {
	Automations() AutomationRepository
	Runs() RunRepository
	Steps() StepRepository
	DelayedJobs() DelayedJobRepository
	Events() EventRepository
	CRM() CRMStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// AutomationRepository stores automation definitions. The executor never
// mutates definitions beyond dispatch bookkeeping.
type AutomationRepository interface {
	Save(ctx context.Context, automation *models.Automation) error
	ByID(ctx context.Context, id string) (*models.Automation, error)
	ActiveByOrg(ctx context.Context, orgID string) ([]*models.Automation, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) error
}

// RunRepository stores run records.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	ByID(ctx context.Context, id string) (*models.Run, error)
	UpdateStatus(ctx context.Context, id string, status models.RunStatus, lastError string, finishedAt *time.Time) error
	ListByAutomation(ctx context.Context, automationID string) ([]*models.Run, error)
}

// StepRepository stores the append-only step audit trail.
type StepRepository interface {
	Append(ctx context.Context, step *models.Step) error
	ListByRun(ctx context.Context, runID string) ([]*models.Step, error)
}

// DelayedJobRepository stores continuation markers for suspended runs.
type DelayedJobRepository interface {
	Create(ctx context.Context, job *models.DelayedJob) error
	Due(ctx context.Context, now time.Time) ([]*models.DelayedJob, error)
	Delete(ctx context.Context, id string) error
}

// EventRepository reads the append-only domain event log.
type EventRepository interface {
	Append(ctx context.Context, event *models.Event) error
	Unprocessed(ctx context.Context, limit int) ([]*models.Event, error)
	MarkProcessed(ctx context.Context, id string) error
}

// CRMStore writes the business-entity rows the action handlers produce. Only
// the action registry touches these tables.
type CRMStore interface {
	InsertEmail(ctx context.Context, email *models.OutboundEmail) error
	UpdateDealStage(ctx context.Context, orgID, dealID, stage string) error
	InsertTask(ctx context.Context, task *models.Task) error
	InsertProforma(ctx context.Context, proforma *models.Proforma) error
	InsertStockReservation(ctx context.Context, reservation *models.StockReservation) error
}

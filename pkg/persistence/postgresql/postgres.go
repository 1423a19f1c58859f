// Package postgresql provides the PostgreSQL persistence implementation for
// the automation runner.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/helixcrm/automation/pkg/persistence"
	"github.com/helixcrm/automation/pkg/persistence/sqlbase"

	_ "github.com/lib/pq" // postgres driver
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	automations *AutomationRepository
	runs        *RunRepository
	steps       *StepRepository
	delayedJobs *DelayedJobRepository
	events      *EventRepository
	crm         *CRMStore
}

// NewPersistence connects to the database, runs migrations and returns the
// persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		automations: NewAutomationRepository(database, logger),
		runs:        NewRunRepository(database, logger),
		steps:       NewStepRepository(database, logger),
		delayedJobs: NewDelayedJobRepository(database, logger),
		events:      NewEventRepository(database, logger),
		crm:         NewCRMStore(database, logger),
	}, nil
}

func (p *Persistence) Automations() persistence.AutomationRepository { return p.automations }
func (p *Persistence) Runs() persistence.RunRepository               { return p.runs }
func (p *Persistence) Steps() persistence.StepRepository             { return p.steps }
func (p *Persistence) DelayedJobs() persistence.DelayedJobRepository { return p.delayedJobs }
func (p *Persistence) Events() persistence.EventRepository           { return p.events }
func (p *Persistence) CRM() persistence.CRMStore                     { return p.crm }

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

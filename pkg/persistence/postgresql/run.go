package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence"
)

// RunRepository handles run record storage.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Create inserts a new run row, generating its id when absent.
func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal run context: %w", err)
	}

	query := `
		INSERT INTO automation_runs (id, org_id, automation_id, context, status, last_error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.OrgID,
		run.AutomationID,
		contextJSON,
		run.Status,
		nullString(run.LastError),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// ByID returns one run by id.
func (r *RunRepository) ByID(ctx context.Context, id string) (*models.Run, error) {
	query := `
		SELECT id, org_id, automation_id, context, status, last_error, started_at, finished_at
		FROM automation_runs
		WHERE id = $1
	`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// UpdateStatus transitions a run's status and error fields.
func (r *RunRepository) UpdateStatus(ctx context.Context, id string, status models.RunStatus, lastError string, finishedAt *time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE automation_runs SET status = $2, last_error = $3, finished_at = $4 WHERE id = $1`,
		id, status, nullString(lastError), finishedAt)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("run %s: %w", id, persistence.ErrRunNotFound)
	}

	return nil
}

// ListByAutomation returns runs for one automation, newest first.
func (r *RunRepository) ListByAutomation(ctx context.Context, automationID string) ([]*models.Run, error) {
	query := `
		SELECT id, org_id, automation_id, context, status, last_error, started_at, finished_at
		FROM automation_runs
		WHERE automation_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, automationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run         models.Run
		contextJSON []byte
		lastError   sql.NullString
		finishedAt  sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.OrgID,
		&run.AutomationID,
		&contextJSON,
		&run.Status,
		&lastError,
		&run.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(contextJSON, &run.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run context: %w", err)
	}

	run.LastError = lastError.String

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return &run, nil
}

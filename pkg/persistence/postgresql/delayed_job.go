package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence"
)

// DelayedJobRepository stores continuation markers for suspended runs.
type DelayedJobRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDelayedJobRepository creates a new delayed job repository.
func NewDelayedJobRepository(db *sql.DB, logger *slog.Logger) *DelayedJobRepository {
	return &DelayedJobRepository{db: db, logger: logger}
}

// Create inserts a delayed job row.
func (r *DelayedJobRepository) Create(ctx context.Context, job *models.DelayedJob) error {
	if job.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate delayed job ID: %w", err)
		}

		job.ID = id.String()
	}

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal delayed job payload: %w", err)
	}

	query := `
		INSERT INTO delayed_jobs (id, org_id, automation_id, run_id, node_id, execute_at, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.OrgID,
		job.AutomationID,
		job.RunID,
		job.NodeID,
		job.ExecuteAt,
		payloadJSON,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delayed job: %w", err)
	}

	return nil
}

// Due returns all jobs whose execute_at has passed, oldest first.
func (r *DelayedJobRepository) Due(ctx context.Context, now time.Time) ([]*models.DelayedJob, error) {
	query := `
		SELECT id, org_id, automation_id, run_id, node_id, execute_at, payload, created_at
		FROM delayed_jobs
		WHERE execute_at <= $1
		ORDER BY execute_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query delayed jobs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	jobs := make([]*models.DelayedJob, 0)

	for rows.Next() {
		var (
			job         models.DelayedJob
			payloadJSON []byte
		)

		err := rows.Scan(
			&job.ID,
			&job.OrgID,
			&job.AutomationID,
			&job.RunID,
			&job.NodeID,
			&job.ExecuteAt,
			&payloadJSON,
			&job.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delayed job: %w", err)
		}

		err = json.Unmarshal(payloadJSON, &job.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal delayed job payload: %w", err)
		}

		jobs = append(jobs, &job)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating delayed jobs: %w", err)
	}

	return jobs, nil
}

// Delete removes a consumed job.
func (r *DelayedJobRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM delayed_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete delayed job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("delayed job %s: %w", id, persistence.ErrDelayedJobNotFound)
	}

	return nil
}

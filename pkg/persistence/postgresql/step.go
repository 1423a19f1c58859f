package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/helixcrm/automation/pkg/models"
)

// StepRepository handles the append-only step audit trail.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

// Append inserts one step row. Steps are never updated or deleted.
func (r *StepRepository) Append(ctx context.Context, step *models.Step) error {
	if step.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate step ID: %w", err)
		}

		step.ID = id.String()
	}

	inputJSON, err := json.Marshal(step.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}

	outputJSON, err := json.Marshal(step.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	query := `
		INSERT INTO automation_steps (id, run_id, node_id, node_type, status, input, output, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.RunID,
		step.NodeID,
		step.NodeType,
		step.Status,
		inputJSON,
		outputJSON,
		nullString(step.Error),
		step.StartedAt,
		step.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append step: %w", err)
	}

	return nil
}

// ListByRun returns all steps of one run in visitation order.
func (r *StepRepository) ListByRun(ctx context.Context, runID string) ([]*models.Step, error) {
	query := `
		SELECT id, run_id, node_id, node_type, status, input, output, error, started_at, finished_at
		FROM automation_steps
		WHERE run_id = $1
		ORDER BY started_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.Step, 0)

	for rows.Next() {
		var (
			step       models.Step
			inputJSON  []byte
			outputJSON []byte
			stepError  sql.NullString
		)

		err := rows.Scan(
			&step.ID,
			&step.RunID,
			&step.NodeID,
			&step.NodeType,
			&step.Status,
			&inputJSON,
			&outputJSON,
			&stepError,
			&step.StartedAt,
			&step.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		err = json.Unmarshal(inputJSON, &step.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
		}

		err = json.Unmarshal(outputJSON, &step.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
		}

		step.Error = stepError.String

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

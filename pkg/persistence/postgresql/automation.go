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

// AutomationRepository handles automation definition storage.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

const automationColumns = `
	id
  , org_id
  , name
  , trigger
  , graph
  , status
  , requires_approval
  , approval_status
  , last_triggered_at
  , created_at
  , updated_at
`

// Save validates and upserts an automation definition.
func (r *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC()

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	if automation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation ID: %w", err)
		}

		automation.ID = id.String()
	}

	err := models.ValidateAutomation(automation)
	if err != nil {
		return err
	}

	triggerJSON, err := json.Marshal(automation.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	graphJSON, err := json.Marshal(automation.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	query := `
		INSERT INTO automations (
			id, org_id, name, trigger, graph, status,
			requires_approval, approval_status, last_triggered_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			trigger = EXCLUDED.trigger,
			graph = EXCLUDED.graph,
			status = EXCLUDED.status,
			requires_approval = EXCLUDED.requires_approval,
			approval_status = EXCLUDED.approval_status,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		automation.ID,
		automation.OrgID,
		automation.Name,
		triggerJSON,
		graphJSON,
		automation.Status,
		automation.RequiresApproval,
		nullString(string(automation.ApprovalStatus)),
		automation.LastTriggeredAt,
		automation.CreatedAt,
		automation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	return nil
}

// ByID returns one automation by id.
func (r *AutomationRepository) ByID(ctx context.Context, id string) (*models.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE id = $1`

	automation, err := scanAutomation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("automation %s: %w", id, persistence.ErrAutomationNotFound)
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	return automation, nil
}

// ActiveByOrg returns all active automations for one organization.
func (r *AutomationRepository) ActiveByOrg(ctx context.Context, orgID string) ([]*models.Automation, error) {
	query := `
		SELECT ` + automationColumns + `
		FROM automations
		WHERE org_id = $1 AND status = $2
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, models.AutomationStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	return automations, nil
}

// MarkTriggered records dispatch bookkeeping on an automation.
func (r *AutomationRepository) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE automations SET last_triggered_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark automation triggered: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAutomation(row rowScanner) (*models.Automation, error) {
	var (
		automation      models.Automation
		triggerJSON     []byte
		graphJSON       []byte
		approvalStatus  sql.NullString
		lastTriggeredAt sql.NullTime
	)

	err := row.Scan(
		&automation.ID,
		&automation.OrgID,
		&automation.Name,
		&triggerJSON,
		&graphJSON,
		&automation.Status,
		&automation.RequiresApproval,
		&approvalStatus,
		&lastTriggeredAt,
		&automation.CreatedAt,
		&automation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(triggerJSON, &automation.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}

	automation.Graph = &models.Graph{}

	err = json.Unmarshal(graphJSON, automation.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}

	if approvalStatus.Valid {
		automation.ApprovalStatus = models.ApprovalStatus(approvalStatus.String)
	}

	if lastTriggeredAt.Valid {
		automation.LastTriggeredAt = &lastTriggeredAt.Time
	}

	return &automation, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

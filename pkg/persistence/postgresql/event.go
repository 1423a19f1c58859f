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

// EventRepository reads and writes the append-only domain event log.
type EventRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *sql.DB, logger *slog.Logger) *EventRepository {
	return &EventRepository{db: db, logger: logger}
}

// Append inserts an event row.
func (r *EventRepository) Append(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate event ID: %w", err)
		}

		event.ID = id.String()
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO automation_events (id, org_id, event_type, subject_type, subject_id, payload, processed, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.OrgID,
		event.EventType,
		nullString(event.SubjectType),
		nullString(event.SubjectID),
		payloadJSON,
		event.Processed,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// Unprocessed returns a bounded batch of unprocessed events ordered by
// occurrence time.
func (r *EventRepository) Unprocessed(ctx context.Context, limit int) ([]*models.Event, error) {
	query := `
		SELECT id, org_id, event_type, subject_type, subject_id, payload, processed, occurred_at
		FROM automation_events
		WHERE NOT processed
		ORDER BY occurred_at
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	events := make([]*models.Event, 0)

	for rows.Next() {
		var (
			event       models.Event
			subjectType sql.NullString
			subjectID   sql.NullString
			payloadJSON []byte
		)

		err := rows.Scan(
			&event.ID,
			&event.OrgID,
			&event.EventType,
			&subjectType,
			&subjectID,
			&payloadJSON,
			&event.Processed,
			&event.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		err = json.Unmarshal(payloadJSON, &event.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}

		event.SubjectType = subjectType.String
		event.SubjectID = subjectID.String

		events = append(events, &event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// MarkProcessed flips the processed flag on one event.
func (r *EventRepository) MarkProcessed(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE automation_events SET processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("event %s: %w", id, persistence.ErrEventNotFound)
	}

	return nil
}

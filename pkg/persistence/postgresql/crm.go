package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/helixcrm/automation/pkg/models"
	"github.com/helixcrm/automation/pkg/persistence"
)

// CRMStore writes the business-entity rows produced by action handlers.
type CRMStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCRMStore creates a new CRM store.
func NewCRMStore(db *sql.DB, logger *slog.Logger) *CRMStore {
	return &CRMStore{db: db, logger: logger}
}

// InsertEmail queues one outbound email row.
func (s *CRMStore) InsertEmail(ctx context.Context, email *models.OutboundEmail) error {
	err := assignID(&email.ID)
	if err != nil {
		return err
	}

	if email.CreatedAt.IsZero() {
		email.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO outbound_emails (id, org_id, to_address, cc_address, bcc_address, subject, body,
			deal_id, contact_id, status, schedule_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.db.ExecContext(ctx, query,
		email.ID,
		email.OrgID,
		email.To,
		nullString(email.CC),
		nullString(email.BCC),
		email.Subject,
		email.Body,
		nullString(email.DealID),
		nullString(email.ContactID),
		email.Status,
		email.ScheduleAt,
		email.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbound email: %w", err)
	}

	return nil
}

// UpdateDealStage moves a deal to a new pipeline stage.
func (s *CRMStore) UpdateDealStage(ctx context.Context, orgID, dealID, stage string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE deals SET stage = $3, updated_at = NOW() WHERE id = $1 AND org_id = $2`,
		dealID, orgID, stage)
	if err != nil {
		return fmt.Errorf("failed to update deal stage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("deal %s: %w", dealID, persistence.ErrDealNotFound)
	}

	return nil
}

// InsertTask creates one CRM task row.
func (s *CRMStore) InsertTask(ctx context.Context, task *models.Task) error {
	err := assignID(&task.ID)
	if err != nil {
		return err
	}

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tasks (id, org_id, title, due_date, deal_id, contact_id, priority, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.OrgID,
		task.Title,
		nullString(task.DueDate),
		nullString(task.DealID),
		nullString(task.ContactID),
		task.Priority,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// InsertProforma creates one proforma document row.
func (s *CRMStore) InsertProforma(ctx context.Context, proforma *models.Proforma) error {
	err := assignID(&proforma.ID)
	if err != nil {
		return err
	}

	if proforma.CreatedAt.IsZero() {
		proforma.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO proformas (id, org_id, number, sales_order_id, currency,
			subtotal_cents, tax_rate, tax_cents, total_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.db.ExecContext(ctx, query,
		proforma.ID,
		proforma.OrgID,
		proforma.Number,
		proforma.SalesOrderID,
		proforma.Currency,
		proforma.SubtotalCents,
		proforma.TaxRate,
		proforma.TaxCents,
		proforma.TotalCents,
		proforma.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert proforma: %w", err)
	}

	return nil
}

// InsertStockReservation creates one reservation line row.
func (s *CRMStore) InsertStockReservation(ctx context.Context, reservation *models.StockReservation) error {
	err := assignID(&reservation.ID)
	if err != nil {
		return err
	}

	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO stock_reservations (id, org_id, run_id, product_id, qty, location_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = s.db.ExecContext(ctx, query,
		reservation.ID,
		reservation.OrgID,
		nullString(reservation.RunID),
		reservation.ProductID,
		reservation.Qty,
		nullString(reservation.LocationID),
		reservation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stock reservation: %w", err)
	}

	return nil
}

func assignID(id *string) error {
	if *id != "" {
		return nil
	}

	generated, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate ID: %w", err)
	}

	*id = generated.String()

	return nil
}

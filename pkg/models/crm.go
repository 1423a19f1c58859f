package models

import "time"

// Rows written by the built-in action handlers. The action registry is the
// only code allowed to touch these tables; the CRM application reads them.

// OutboundEmailStatus represents the delivery queue state of an email row.
type OutboundEmailStatus string

const (
	OutboundEmailStatusQueued    OutboundEmailStatus = "queued"
	OutboundEmailStatusScheduled OutboundEmailStatus = "scheduled"
)

// OutboundEmail is an email queued (or scheduled) by the email.send action.
type OutboundEmail struct {
	ID         string              `json:"id"`
	OrgID      string              `json:"org_id"`
	To         string              `json:"to"      validate:"required"`
	CC         string              `json:"cc,omitempty"`
	BCC        string              `json:"bcc,omitempty"`
	Subject    string              `json:"subject"`
	Body       string              `json:"body"`
	DealID     string              `json:"deal_id,omitempty"`
	ContactID  string              `json:"contact_id,omitempty"`
	Status     OutboundEmailStatus `json:"status"`
	ScheduleAt *time.Time          `json:"schedule_at,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Task is a CRM task row created by the task.create action.
type Task struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	Title     string    `json:"title" validate:"required"`
	DueDate   string    `json:"due_date,omitempty"`
	DealID    string    `json:"deal_id,omitempty"`
	ContactID string    `json:"contact_id,omitempty"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// Proforma is a proforma document row created by the proforma.create action.
type Proforma struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	Number        string    `json:"number"`
	SalesOrderID  string    `json:"sales_order_id" validate:"required"`
	Currency      string    `json:"currency"`
	SubtotalCents int64     `json:"subtotal_cents"`
	TaxRate       float64   `json:"tax_rate"`
	TaxCents      int64     `json:"tax_cents"`
	TotalCents    int64     `json:"total_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

// StockReservation is one reserved line created by the stock.reserve action.
type StockReservation struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	RunID      string    `json:"run_id,omitempty"`
	ProductID  string    `json:"product_id" validate:"required"`
	Qty        float64   `json:"qty"`
	LocationID string    `json:"location_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

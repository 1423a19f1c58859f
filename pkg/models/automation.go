// Package models defines the core domain models for automation graph execution.
package models

import "time"

// AutomationStatus represents the lifecycle state of an automation.
type AutomationStatus string

const (
	AutomationStatusDraft  AutomationStatus = "draft"  // Editable, not executable
	AutomationStatusActive AutomationStatus = "active" // Picked up by the dispatcher
	AutomationStatusPaused AutomationStatus = "paused" // Temporarily not executable
)

// ApprovalStatus represents the governance approval state of an automation.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// TriggerKind selects how an automation is invoked.
type TriggerKind string

const (
	TriggerKindEvent    TriggerKind = "event"    // Matched against the event log
	TriggerKindManual   TriggerKind = "manual"   // Invoked explicitly by an operator
	TriggerKindSchedule TriggerKind = "schedule" // Invoked on a cron schedule
)

// Trigger describes what causes an automation to run.
type Trigger struct {
	Kind      TriggerKind `json:"kind"                 validate:"required,oneof=event manual schedule"`
	EventType string      `json:"event_type,omitempty"`
	Cron      string      `json:"cron,omitempty"`
}

// Automation is a named, versioned workflow definition scoped to an organization.
type Automation struct {
	ID               string           `json:"id"`
	OrgID            string           `json:"org_id"            validate:"required"`
	Name             string           `json:"name"              validate:"required,min=3"`
	Trigger          Trigger          `json:"trigger"`
	Graph            *Graph           `json:"graph"             validate:"required"`
	Status           AutomationStatus `json:"status"            validate:"required"`
	RequiresApproval bool             `json:"requires_approval"`
	ApprovalStatus   ApprovalStatus   `json:"approval_status,omitempty"`
	LastTriggeredAt  *time.Time       `json:"last_triggered_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ApprovalBlocked reports whether the approval gate prevents this automation
// from executing. An automation that requires approval may only run once its
// approval status is "approved".
func (a *Automation) ApprovalBlocked() bool {
	return a.RequiresApproval && a.ApprovalStatus != ApprovalStatusApproved
}

// MatchesEvent reports whether this automation's trigger matches an event of
// the given type.
func (a *Automation) MatchesEvent(eventType string) bool {
	return a.Trigger.Kind == TriggerKindEvent && a.Trigger.EventType == eventType
}

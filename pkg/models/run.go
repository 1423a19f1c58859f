package models

import "time"

// RunStatus represents the state of one automation run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	// RunStatusWaiting marks a run suspended at a delay node with at least one
	// outstanding delayed job. It is distinct from success so operators can
	// tell a paused run apart from a finished one.
	RunStatusWaiting RunStatus = "waiting"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Run is one execution instance of an automation against a concrete context.
type Run struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	AutomationID string         `json:"automation_id"`
	Context      map[string]any `json:"context,omitempty"`
	Status       RunStatus      `json:"status"`
	LastError    string         `json:"last_error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// StepStatus represents the outcome of one node visit.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
)

// Step is an immutable audit record of one node's execution within a run.
// Append-only: a node visited twice across resumptions produces two rows.
type Step struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	NodeID     string         `json:"node_id"`
	NodeType   NodeType       `json:"node_type"`
	Status     StepStatus     `json:"status"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

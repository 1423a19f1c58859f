package models

import "time"

// DelayedJob is a durable continuation marker created when a run reaches a
// delay node. It is owned by the scheduling subsystem between creation and
// consumption; the executor that created it does not touch the run again
// until the job is replayed.
type DelayedJob struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	AutomationID string         `json:"automation_id"`
	RunID        string         `json:"run_id"`
	NodeID       string         `json:"node_id"`
	ExecuteAt    time.Time      `json:"execute_at"`
	Payload      map[string]any `json:"payload,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

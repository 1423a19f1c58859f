package models

import "time"

// Event is a row in the append-only domain event log. The dispatcher reads
// unprocessed events, fans them out to matching automations and flips
// Processed afterwards (at-least-once, not exactly-once).
type Event struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	EventType   string         `json:"event_type"`
	SubjectType string         `json:"subject_type,omitempty"`
	SubjectID   string         `json:"subject_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Processed   bool           `json:"processed"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// RunContext builds the context object a triggered run executes against.
func (e *Event) RunContext() map[string]any {
	return map[string]any{
		"event": map[string]any{
			"id":   e.ID,
			"type": e.EventType,
		},
		"event_type":   e.EventType,
		"subject_type": e.SubjectType,
		"subject_id":   e.SubjectID,
		"payload":      e.Payload,
	}
}

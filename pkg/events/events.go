// Package events defines the run lifecycle notifications published on the
// event bus for observability consumers.
package events

import "time"

// EventType identifies a run lifecycle notification.
type EventType string

const (
	RunStartedEvent  EventType = "run.started"
	RunFinishedEvent EventType = "run.finished"
	RunFailedEvent   EventType = "run.failed"
)

const (
	// Topic is the event bus topic all run lifecycle events are published on.
	Topic = "automation.runs"

	EventTypeMetadataKey = "event_type"
)

// Event is implemented by all lifecycle notifications.
type Event interface {
	GetType() EventType
}

// BaseEvent carries the fields shared by all run lifecycle events.
type BaseEvent struct {
	RunID        string    `json:"run_id"`
	OrgID        string    `json:"org_id"`
	AutomationID string    `json:"automation_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// RunStarted is published when the executor creates a new run.
type RunStarted struct {
	BaseEvent
}

func (e RunStarted) GetType() EventType { return RunStartedEvent }

// RunFinished is published when a run completes its synchronous work, with
// the resulting status (success or waiting).
type RunFinished struct {
	BaseEvent

	Status string `json:"status"`
}

func (e RunFinished) GetType() EventType { return RunFinishedEvent }

// RunFailed is published when a node failure halts a run.
type RunFailed struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Error  string `json:"error"`
}

func (e RunFailed) GetType() EventType { return RunFailedEvent }

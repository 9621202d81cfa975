// Package events defines the sequenced run event records and their wire shape.
package events

import (
	"time"
)

type EventType string

// Kafka topic for mirrored run events.
const Topic = "runweave.run.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowStartEvent    EventType = "workflow_start"
	NodeStartEvent        EventType = "node_start"
	NodeCompleteEvent     EventType = "node_complete"
	NodeErrorEvent        EventType = "node_error"
	WorkflowCompleteEvent EventType = "workflow_complete"
	WorkflowErrorEvent    EventType = "workflow_error"
	ConfirmRequiredEvent  EventType = "confirm_required"
	ConfirmedEvent        EventType = "confirmed"
)

// IsTerminal reports whether t ends a run's event stream. No other event
// type may terminate a stream.
func (t EventType) IsTerminal() bool {
	return t == WorkflowCompleteEvent || t == WorkflowErrorEvent
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case WorkflowStartEvent, NodeStartEvent, NodeCompleteEvent, NodeErrorEvent,
		WorkflowCompleteEvent, WorkflowErrorEvent, ConfirmRequiredEvent, ConfirmedEvent:
		return true
	}

	return false
}

// RunEvent is an immutable, sequenced record of something that happened
// during a run. Sequence is assigned by the event log at append time,
// strictly increasing per run starting at 1; it is never assigned by
// producers.
type RunEvent struct {
	Type       EventType      `json:"type"`
	RunID      string         `json:"run_id"`
	WorkflowID string         `json:"workflow_id"`
	Sequence   int64          `json:"sequence"`
	Timestamp  time.Time      `json:"timestamp"`
	ExecutorID string         `json:"executor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// GetType implements the event bus Event interface.
func (e RunEvent) GetType() EventType {
	return e.Type
}

// Error kinds carried by node_error and workflow_error payloads.
const (
	ErrorKindTimeout            = "timeout"
	ErrorKindRuntime            = "runtime_error"
	ErrorKindConfirmationDenied = "confirmation_denied"
	ErrorKindValidation         = "validation_error"
	ErrorKindCancelled          = "cancelled"
)

// ErrorPayload builds the failure payload shared by node_error and
// workflow_error events: a machine-readable kind, a short human hint and
// an explicit retryable flag.
func ErrorPayload(kind, hint string, retryable bool) map[string]any {
	return map[string]any{
		"kind":      kind,
		"hint":      hint,
		"retryable": retryable,
	}
}

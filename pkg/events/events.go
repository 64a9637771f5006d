// Package events defines the messages exchanged over the event bus:
// trigger occurrences flowing in, run outcomes flowing out.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topic is the single bus topic all engine events travel on.
const Topic = "cadence.events"

// Metadata keys stamped on bus messages.
const (
	EventMetadataKey     = "event_key"
	EventTypeMetadataKey = "event_type"
)

// EventType discriminates bus payloads.
type EventType string

const (
	TriggerFiredEvent EventType = "trigger.fired"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
)

// BaseEvent carries the fields every event shares.
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func newBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// GetType returns the event type.
func (e BaseEvent) GetType() EventType {
	return e.Type
}

// TriggerFired is published by receivers when an external trigger
// occurrence arrives. The engine resolves it into run decisions for
// every workflow bound to the trigger.
type TriggerFired struct {
	BaseEvent

	TriggerID string         `json:"trigger_id"`
	SubjectID string         `json:"subject_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewTriggerFired creates a trigger occurrence event.
func NewTriggerFired(triggerID, subjectID string, data map[string]any) *TriggerFired {
	return &TriggerFired{
		BaseEvent: newBaseEvent(TriggerFiredEvent),
		TriggerID: triggerID,
		SubjectID: subjectID,
		Data:      data,
	}
}

// RunCompleted is published after a workflow run finished for a
// subject.
type RunCompleted struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	SubjectID  string `json:"subject_id"`
	Outcome    string `json:"outcome"`
}

// NewRunCompleted creates a run completion event.
func NewRunCompleted(workflowID, subjectID, outcome string) *RunCompleted {
	return &RunCompleted{
		BaseEvent:  newBaseEvent(RunCompletedEvent),
		WorkflowID: workflowID,
		SubjectID:  subjectID,
		Outcome:    outcome,
	}
}

// RunFailed is published when a queue entry fails terminally.
type RunFailed struct {
	BaseEvent

	WorkflowID  string `json:"workflow_id"`
	EntryID     int64  `json:"entry_id"`
	FailureCode int    `json:"failure_code"`
	Error       string `json:"error,omitempty"`
}

// NewRunFailed creates a run failure event.
func NewRunFailed(workflowID string, entryID int64, failureCode int, errMessage string) *RunFailed {
	return &RunFailed{
		BaseEvent:   newBaseEvent(RunFailedEvent),
		WorkflowID:  workflowID,
		EntryID:     entryID,
		FailureCode: failureCode,
		Error:       errMessage,
	}
}

// Package models defines the core domain models for event-driven orchestration.
package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies the origin of a system event.
type EventType string

const (
	EventTypeUser     EventType = "user"
	EventTypeSystem   EventType = "system"
	EventTypeBusiness EventType = "business"
	EventTypeExternal EventType = "external"
)

// Priority indicates how urgently downstream consumers should treat an event.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// SystemEvent is an immutable fact appended to the event log and broadcast on
// the bus. Producers may leave ID, Timestamp, CorrelationID and TraceID empty;
// the bus fills them on emit.
type SystemEvent struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"                 validate:"required,oneof=user system business external"`
	Category      string         `json:"category"             validate:"required"`
	Action        string         `json:"action"               validate:"required"`
	Timestamp     time.Time      `json:"timestamp"`
	SubjectID     string         `json:"subject_id,omitempty"`
	SessionID     string         `json:"session_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Source        string         `json:"source,omitempty"`
	Priority      Priority       `json:"priority,omitempty"`
	CorrelationID string         `json:"correlation_id"`
	TraceID       string         `json:"trace_id"`
}

// Signature returns the "{type}.{category}.{action}" string that rule
// triggers match against.
func (e *SystemEvent) Signature() string {
	return string(e.Type) + "." + e.Category + "." + e.Action
}

// NewSystemEvent builds an event with id and timestamp assigned.
func NewSystemEvent(eventType EventType, category, action string, payload map[string]any) *SystemEvent {
	id := uuid.New().String()

	return &SystemEvent{
		ID:            id,
		Type:          eventType,
		Category:      category,
		Action:        action,
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
		Priority:      PriorityMedium,
		CorrelationID: id,
	}
}

package domain

import "time"

// EventType classifies a MemoryEvent — the unit the event queue dispatches
// to subscribers and the resolution/cascade services poll for.
type EventType string

const (
	EventViolation            EventType = "violation"
	EventPredictionConfirmed  EventType = "prediction_confirmed"
	EventCascade              EventType = "cascade"
	EventResolution           EventType = "resolution"
)

// MemoryEvent records a significant state change against a memory so it can
// be dispatched to subscribers and replayed for audit.
type MemoryEvent struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	EventType EventType `json:"event_type"`

	MemoryID    string      `json:"memory_id"`
	ViolatedBy  string      `json:"violated_by,omitempty"`
	DamageLevel DamageLevel `json:"damage_level,omitempty"`

	Context map[string]any `json:"context,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	Dispatched    bool       `json:"dispatched"`
	DispatchedAt  *time.Time `json:"dispatched_at,omitempty"`
}

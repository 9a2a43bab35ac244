package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Lifecycle event types the engine emits.
const (
	EventRegistered  = "REGISTERED"
	EventProvisioned = "PROVISIONED"
	EventActivated   = "ACTIVATED"
	EventSuspended   = "SUSPENDED"
	EventResumed     = "RESUMED"
	EventTerminated  = "TERMINATED"
	EventKilled      = "KILLED"
)

// EventMetadata records who caused a lifecycle event and why.
type EventMetadata struct {
	TriggeredBy string `json:"triggered_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
	NotifyOwner bool   `json:"notify_owner,omitempty"`
}

// NewEventMetadata wraps m for storage in the event's JSON column.
func NewEventMetadata(m EventMetadata) datatypes.JSONType[EventMetadata] {
	return datatypes.NewJSONType(m)
}

// LifecycleEvent is an append-only audit record. Rows are never updated and
// are removed only by cascade when the owning agent is deleted.
type LifecycleEvent struct {
	ID        int64  `json:"id" gorm:"primaryKey"`
	AgentID   string `json:"agent_id" gorm:"type:uuid;index;not null"`
	EventType string `json:"event_type"`

	// Nil for non-transition events.
	FromState *AgentState `json:"from_state"`
	ToState   *AgentState `json:"to_state"`

	Metadata datatypes.JSONType[EventMetadata] `json:"metadata"`

	CreatedAt time.Time `json:"created_at"`

	Agent Agent `json:"-" gorm:"foreignKey:AgentID;references:ID;constraint:OnDelete:CASCADE"`
}

func (LifecycleEvent) TableName() string {
	return "lifecycle_events"
}

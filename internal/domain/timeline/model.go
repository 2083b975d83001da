// Package timeline is the append-only event history for alerts. Events are
// facts: once written they are never updated or deleted, and together they
// reconstruct an alert's full state at any past instant.
package timeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a timeline event.
type EventType string

const (
	EventCreated      EventType = "created"
	EventViewed       EventType = "viewed"
	EventAcknowledged EventType = "acknowledged"
	EventEscalated    EventType = "escalated"
	EventTransferred  EventType = "transferred"
	EventResolved     EventType = "resolved"
	EventReopened     EventType = "reopened"
	EventCommented    EventType = "commented"
)

var validEventTypes = map[EventType]bool{
	EventCreated:      true,
	EventViewed:       true,
	EventAcknowledged: true,
	EventEscalated:    true,
	EventTransferred:  true,
	EventResolved:     true,
	EventReopened:     true,
	EventCommented:    true,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool { return validEventTypes[t] }

// Event is a single immutable fact about an alert. Seq is assigned by the
// store on append and breaks ties between events sharing an EventTime, so
// the per-alert order is total.
type Event struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	Seq         int64            `db:"seq" json:"seq"`
	AlertID     uuid.UUID        `db:"alert_id" json:"alert_id"`
	EventType   EventType        `db:"event_type" json:"event_type"`
	EventTime   time.Time        `db:"event_time" json:"event_time"`
	UserID      *string          `db:"user_id" json:"user_id,omitempty"`
	Description string           `db:"description" json:"description"`
	Metadata    *json.RawMessage `db:"metadata" json:"metadata,omitempty"`
}

// NewEvent builds an event for append. userID may be empty for
// system-generated events; metadata may be nil.
func NewEvent(alertID uuid.UUID, eventType EventType, at time.Time, userID, description string, metadata map[string]interface{}) *Event {
	e := &Event{
		AlertID:     alertID,
		EventType:   eventType,
		EventTime:   at,
		Description: description,
	}
	if userID != "" {
		e.UserID = &userID
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			msg := json.RawMessage(raw)
			e.Metadata = &msg
		}
	}
	return e
}

package timeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/wardline/wardline/internal/platform/clock"
	"github.com/wardline/wardline/pkg/apperr"
)

// Service wraps the Repository with validation. It is the only writer the
// rest of the engine should use.
type Service struct {
	events Repository
	clock  clock.Clock
}

func NewService(events Repository, clk clock.Clock) *Service {
	return &Service{events: events, clock: clk}
}

// Record appends an event stamped at the current time.
func (s *Service) Record(ctx context.Context, alertID uuid.UUID, eventType EventType, userID, description string, metadata map[string]interface{}) (*Event, error) {
	if !eventType.Valid() {
		return nil, apperr.Validation("event_type", "unknown event type: "+string(eventType))
	}
	e := NewEvent(alertID, eventType, s.clock.Now(), userID, description, metadata)
	if err := s.events.Append(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Append writes a pre-built event. Used by bulk writers (shift handover)
// that stamp their own time.
func (s *Service) Append(ctx context.Context, e *Event) error {
	if !e.EventType.Valid() {
		return apperr.Validation("event_type", "unknown event type: "+string(e.EventType))
	}
	if e.EventTime.IsZero() {
		e.EventTime = s.clock.Now()
	}
	return s.events.Append(ctx, e)
}

// ForAlert returns the alert's events oldest-first.
func (s *Service) ForAlert(ctx context.Context, alertID uuid.UUID) ([]*Event, error) {
	return s.events.ListByAlert(ctx, alertID)
}

// Recent returns the newest events across all alerts, optionally filtered
// by event type.
func (s *Service) Recent(ctx context.Context, eventType string, limit, offset int) ([]*Event, int, error) {
	if eventType != "" && !EventType(eventType).Valid() {
		return nil, 0, apperr.Validation("event_type", "unknown event type: "+eventType)
	}
	return s.events.ListRecent(ctx, eventType, limit, offset)
}

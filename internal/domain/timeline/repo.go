package timeline

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the append-only store contract. There is deliberately no
// update or delete.
type Repository interface {
	Append(ctx context.Context, e *Event) error
	ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*Event, error)
	ListRecent(ctx context.Context, eventType string, limit, offset int) ([]*Event, int, error)
}

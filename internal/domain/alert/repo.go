package alert

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows alert listings.
type ListFilter struct {
	Status     Status
	Department string
	AlertType  Type
}

// Repository owns alert records. Update touches only the fields the state
// machine mutates; alerts are never deleted.
type Repository interface {
	Create(ctx context.Context, a *Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*Alert, error)
	Update(ctx context.Context, a *Alert) error
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Alert, int, error)
	ListOpenByDepartment(ctx context.Context, department string) ([]*Alert, error)
}

// EscalationRepository is the append-only record of tier transitions.
type EscalationRepository interface {
	Create(ctx context.Context, e *EscalationRecord) error
	ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*EscalationRecord, error)
	CountByAlert(ctx context.Context, alertID uuid.UUID) (int, error)
}

// AcknowledgmentRepository is the append-only record of responder
// engagements.
type AcknowledgmentRepository interface {
	Create(ctx context.Context, a *Acknowledgment) error
	ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*Acknowledgment, error)
}

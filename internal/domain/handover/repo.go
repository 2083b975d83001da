package handover

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ShiftLogRepository owns shift log records.
type ShiftLogRepository interface {
	Create(ctx context.Context, s *ShiftLog) error
	GetByID(ctx context.Context, id uuid.UUID) (*ShiftLog, error)
	Update(ctx context.Context, s *ShiftLog) error
}

// Repository owns handover records. Create must enforce the one-pending-
// per-shift-log invariant and return ErrConflict when it is violated, even
// under concurrent initiations.
type Repository interface {
	Create(ctx context.Context, h *Handover) error
	GetByID(ctx context.Context, id uuid.UUID) (*Handover, error)
	Update(ctx context.Context, h *Handover) error
	ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]*Handover, error)
}

// Package handover implements the shift handover protocol: snapshot an
// outgoing staff member's open alerts and notes into a proposal the
// incoming staff member must accept, decline, or let expire. Until a
// handover is accepted the outgoing shift stays responsible; nobody is
// ever dropped.
package handover

import (
	"time"

	"github.com/google/uuid"

	"github.com/wardline/wardline/pkg/apperr"
)

// ShiftStatus is a shift log's lifecycle state.
type ShiftStatus string

const (
	ShiftActive    ShiftStatus = "active"
	ShiftCompleted ShiftStatus = "completed"
	ShiftCancelled ShiftStatus = "cancelled"
)

// ShiftLog is one staff shift instance.
type ShiftLog struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	UserID     string      `db:"user_id" json:"user_id"`
	HospitalID string      `db:"hospital_id" json:"hospital_id"`
	Department string      `db:"department" json:"department"`
	ShiftStart time.Time   `db:"shift_start" json:"shift_start"`
	ShiftEnd   *time.Time  `db:"shift_end" json:"shift_end,omitempty"`
	Status     ShiftStatus `db:"status" json:"status"`
	HandoverID *uuid.UUID  `db:"handover_id" json:"handover_id,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// Validate checks a shift log before creation.
func (s *ShiftLog) Validate() error {
	if s.UserID == "" {
		return apperr.Validation("user_id", "required")
	}
	if s.HospitalID == "" {
		return apperr.Validation("hospital_id", "required")
	}
	if s.Department == "" {
		return apperr.Validation("department", "required")
	}
	return nil
}

// HandoverStatus is a handover proposal's lifecycle state.
type HandoverStatus string

const (
	HandoverPending  HandoverStatus = "pending"
	HandoverAccepted HandoverStatus = "accepted"
	HandoverDeclined HandoverStatus = "declined"
	HandoverExpired  HandoverStatus = "expired"
)

// AlertSummary is the point-in-time snapshot of one open alert carried
// inside a handover. It is a copy, not a reference: the handover shows
// what the outgoing staff member saw, even if the alert moves on.
type AlertSummary struct {
	AlertID      uuid.UUID `json:"alert_id"`
	RoomLocation string    `json:"room_location"`
	AlertType    string    `json:"alert_type"`
	UrgencyLevel int       `json:"urgency_level"`
	Status       string    `json:"status"`
	CurrentTier  int       `json:"current_tier"`
	Notes        string    `json:"notes,omitempty"`
}

// Handover is one transfer proposal. CriticalAlerts and FollowUpRequired
// are snapshots taken at initiation.
type Handover struct {
	ID                  uuid.UUID      `db:"id" json:"id"`
	FromUserID          string         `db:"from_user_id" json:"from_user_id"`
	ToUserID            *string        `db:"to_user_id" json:"to_user_id,omitempty"`
	ShiftLogID          uuid.UUID      `db:"shift_log_id" json:"shift_log_id"`
	HandoverNotes       string         `db:"handover_notes" json:"handover_notes"`
	CriticalAlerts      []AlertSummary `db:"critical_alerts" json:"critical_alerts"`
	FollowUpRequired    []string       `db:"follow_up_required" json:"follow_up_required"`
	Status              HandoverStatus `db:"status" json:"status"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt           time.Time      `db:"expires_at" json:"expires_at"`
	AcceptedAt          *time.Time     `db:"accepted_at" json:"accepted_at,omitempty"`
	AcknowledgmentNotes string         `db:"acknowledgment_notes" json:"acknowledgment_notes"`
}

// Terminal reports whether the handover can no longer change state.
func (h *Handover) Terminal() bool {
	return h.Status == HandoverAccepted || h.Status == HandoverDeclined || h.Status == HandoverExpired
}

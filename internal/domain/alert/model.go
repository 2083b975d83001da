// Package alert implements the life-safety alert engine: the alert records
// themselves, the escalation policy tables, and the state machine that
// drives an alert from creation through tiered escalation to resolution.
package alert

import (
	"time"

	"github.com/google/uuid"

	"github.com/wardline/wardline/pkg/apperr"
)

// Type classifies the incident an alert reports.
type Type string

const (
	TypeCardiacArrest    Type = "cardiac_arrest"
	TypeCodeBlue         Type = "code_blue"
	TypeFire             Type = "fire"
	TypeSecurity         Type = "security"
	TypeMedicalEmergency Type = "medical_emergency"
)

var validTypes = map[Type]bool{
	TypeCardiacArrest:    true,
	TypeCodeBlue:         true,
	TypeFire:             true,
	TypeSecurity:         true,
	TypeMedicalEmergency: true,
}

// Status is an alert's position in the state machine. Resolved is terminal.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Alert is one active incident. Status, CurrentTier, TargetDepartment and
// NextEscalationAt are mutated only by the Service; everything else is
// written once at creation.
type Alert struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	RoomLocation     string     `db:"room_location" json:"room_location"`
	AlertType        Type       `db:"alert_type" json:"alert_type"`
	UrgencyLevel     int        `db:"urgency_level" json:"urgency_level"`
	Status           Status     `db:"status" json:"status"`
	TargetDepartment string     `db:"target_department" json:"target_department"`
	CurrentTier      int        `db:"current_tier" json:"current_tier"`
	NextEscalationAt *time.Time `db:"next_escalation_at" json:"next_escalation_at,omitempty"`
	CreatedBy        string     `db:"created_by" json:"created_by"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	AcknowledgedBy   *string    `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt   *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	PatientID        *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	HandoverNotes    string     `db:"handover_notes" json:"handover_notes"`
}

// Open reports whether the alert still needs attention at shift boundaries.
func (a *Alert) Open() bool {
	return a.Status == StatusActive || a.Status == StatusAcknowledged
}

// Validate checks the write-once fields before creation.
func (a *Alert) Validate() error {
	if a.RoomLocation == "" {
		return apperr.Validation("room_location", "required")
	}
	if !validTypes[a.AlertType] {
		return apperr.Validation("alert_type", "unknown alert type: "+string(a.AlertType))
	}
	if a.UrgencyLevel < 1 || a.UrgencyLevel > 5 {
		return apperr.Validation("urgency_level", "must be between 1 and 5")
	}
	if a.TargetDepartment == "" {
		return apperr.Validation("target_department", "required")
	}
	if a.CreatedBy == "" {
		return apperr.Validation("created_by", "required")
	}
	return nil
}

// EscalationRecord is one tier transition, append-only. The count of
// records for an alert always equals CurrentTier - 1.
type EscalationRecord struct {
	ID          uuid.UUID `db:"id" json:"id"`
	AlertID     uuid.UUID `db:"alert_id" json:"alert_id"`
	FromRole    string    `db:"from_role" json:"from_role"`
	ToRole      string    `db:"to_role" json:"to_role"`
	EscalatedAt time.Time `db:"escalated_at" json:"escalated_at"`
	Reason      string    `db:"reason" json:"reason"`
}

// Escalation reasons.
const (
	ReasonTimeout = "timeout"
	ReasonManual  = "manual"
)

// Acknowledgment is one responder's engagement with an alert. Immutable
// once written; an alert may accumulate several across reopens.
type Acknowledgment struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	AlertID               uuid.UUID `db:"alert_id" json:"alert_id"`
	UserID                string    `db:"user_id" json:"user_id"`
	AcknowledgedAt        time.Time `db:"acknowledged_at" json:"acknowledged_at"`
	ResponseTimeSeconds   int       `db:"response_time_seconds" json:"response_time_seconds"`
	UrgencyAssessment     string    `db:"urgency_assessment" json:"urgency_assessment"`
	ResponseAction        string    `db:"response_action" json:"response_action"`
	EstimatedResponseTime string    `db:"estimated_response_time" json:"estimated_response_time"`
	DelegatedTo           *string   `db:"delegated_to" json:"delegated_to,omitempty"`
}

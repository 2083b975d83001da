package handover

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardline/wardline/internal/domain/alert"
	"github.com/wardline/wardline/internal/domain/timeline"
	"github.com/wardline/wardline/internal/platform/clock"
	"github.com/wardline/wardline/pkg/apperr"
)

// AlertDirectory is the slice of the alert engine the coordinator needs:
// the open alerts of a department at snapshot time.
type AlertDirectory interface {
	OpenByDepartment(ctx context.Context, department string) ([]*alert.Alert, error)
}

// Service is the shift handover coordinator.
type Service struct {
	shifts    ShiftLogRepository
	handovers Repository
	alerts    AlertDirectory
	tl        *timeline.Service
	clk       clock.Clock
	grace     time.Duration
	log       zerolog.Logger
}

func NewService(shifts ShiftLogRepository, handovers Repository, alerts AlertDirectory, tl *timeline.Service, clk clock.Clock, grace time.Duration, log zerolog.Logger) *Service {
	return &Service{
		shifts:    shifts,
		handovers: handovers,
		alerts:    alerts,
		tl:        tl,
		clk:       clk,
		grace:     grace,
		log:       log,
	}
}

// StartShift opens a new shift log.
func (s *Service) StartShift(ctx context.Context, userID, hospitalID, department string) (*ShiftLog, error) {
	now := s.clk.Now()
	sl := &ShiftLog{
		ID:         uuid.New(),
		UserID:     userID,
		HospitalID: hospitalID,
		Department: department,
		ShiftStart: now,
		Status:     ShiftActive,
		CreatedAt:  now,
	}
	if err := sl.Validate(); err != nil {
		return nil, err
	}
	if err := s.shifts.Create(ctx, sl); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("shift_log_id", sl.ID.String()).
		Str("user_id", userID).
		Str("department", department).
		Msg("shift started")
	return sl, nil
}

// CloseShift completes an active shift log.
func (s *Service) CloseShift(ctx context.Context, shiftLogID uuid.UUID) (*ShiftLog, error) {
	sl, err := s.shifts.GetByID(ctx, shiftLogID)
	if err != nil {
		return nil, err
	}
	if sl.Status != ShiftActive {
		return sl, fmt.Errorf("close rejected, shift is %s: %w", sl.Status, apperr.ErrInvalidTransition)
	}
	now := s.clk.Now()
	sl.ShiftEnd = &now
	sl.Status = ShiftCompleted
	if err := s.shifts.Update(ctx, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

// InitiateInput carries the outgoing staff member's handover content.
type InitiateInput struct {
	ShiftLogID       uuid.UUID `json:"shift_log_id"`
	HandoverNotes    string    `json:"handover_notes"`
	FollowUpRequired []string  `json:"follow_up_required"`
}

// Initiate snapshots the department's open alerts into a pending handover.
// The one-pending-per-shift-log invariant is enforced by the store, so two
// racing initiations cannot both create a proposal.
func (s *Service) Initiate(ctx context.Context, fromUser string, in InitiateInput) (*Handover, error) {
	sl, err := s.shifts.GetByID(ctx, in.ShiftLogID)
	if err != nil {
		return nil, err
	}
	if sl.Status != ShiftActive {
		return nil, fmt.Errorf("handover rejected, shift is %s: %w", sl.Status, apperr.ErrInvalidTransition)
	}
	if sl.UserID != fromUser {
		return nil, apperr.Validation("shift_log_id", "shift log belongs to another user")
	}

	open, err := s.alerts.OpenByDepartment(ctx, sl.Department)
	if err != nil {
		return nil, err
	}
	critical := make([]AlertSummary, 0, len(open))
	for _, a := range open {
		critical = append(critical, AlertSummary{
			AlertID:      a.ID,
			RoomLocation: a.RoomLocation,
			AlertType:    string(a.AlertType),
			UrgencyLevel: a.UrgencyLevel,
			Status:       string(a.Status),
			CurrentTier:  a.CurrentTier,
			Notes:        a.HandoverNotes,
		})
	}

	now := s.clk.Now()
	h := &Handover{
		ID:               uuid.New(),
		FromUserID:       fromUser,
		ShiftLogID:       sl.ID,
		HandoverNotes:    in.HandoverNotes,
		CriticalAlerts:   critical,
		FollowUpRequired: in.FollowUpRequired,
		Status:           HandoverPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.grace),
	}
	if err := s.handovers.Create(ctx, h); err != nil {
		return nil, err
	}

	hid := h.ID
	sl.HandoverID = &hid
	if err := s.shifts.Update(ctx, sl); err != nil {
		s.log.Error().Err(err).Str("handover_id", h.ID.String()).Msg("could not link handover to shift log")
	}

	s.log.Info().
		Str("handover_id", h.ID.String()).
		Str("from_user", fromUser).
		Int("critical_alerts", len(critical)).
		Time("expires_at", h.ExpiresAt).
		Msg("handover initiated")
	return h, nil
}

// Accept transfers the handover to the incoming staff member and stamps a
// transferred event on every snapshotted alert. Expiry is checked lazily
// here as well as by the background sweep, so a stale pending handover can
// never be accepted.
func (s *Service) Accept(ctx context.Context, handoverID uuid.UUID, toUser, notes string) (*Handover, error) {
	h, err := s.handovers.GetByID(ctx, handoverID)
	if err != nil {
		return nil, err
	}
	if h.Status != HandoverPending {
		return h, fmt.Errorf("accept rejected, handover is %s: %w", h.Status, apperr.ErrInvalidTransition)
	}

	now := s.clk.Now()
	if now.After(h.ExpiresAt) {
		if err := s.expire(ctx, h); err != nil {
			return nil, err
		}
		return h, fmt.Errorf("handover grace window closed: %w", apperr.ErrExpired)
	}

	h.Status = HandoverAccepted
	h.ToUserID = &toUser
	h.AcceptedAt = &now
	h.AcknowledgmentNotes = notes
	if err := s.handovers.Update(ctx, h); err != nil {
		return nil, err
	}

	for _, summary := range h.CriticalAlerts {
		e := timeline.NewEvent(summary.AlertID, timeline.EventTransferred, now, toUser,
			fmt.Sprintf("transferred from %s to %s at shift handover", h.FromUserID, toUser),
			map[string]interface{}{"handover_id": h.ID.String()})
		if err := s.tl.Append(ctx, e); err != nil {
			s.log.Error().Err(err).
				Str("handover_id", h.ID.String()).
				Str("alert_id", summary.AlertID.String()).
				Msg("transferred event append failed")
		}
	}

	s.log.Info().
		Str("handover_id", h.ID.String()).
		Str("to_user", toUser).
		Int("alerts_transferred", len(h.CriticalAlerts)).
		Msg("handover accepted")
	return h, nil
}

// Decline rejects the handover; the outgoing shift stays responsible.
func (s *Service) Decline(ctx context.Context, handoverID uuid.UUID, toUser, reason string) (*Handover, error) {
	h, err := s.handovers.GetByID(ctx, handoverID)
	if err != nil {
		return nil, err
	}
	if h.Status != HandoverPending {
		return h, fmt.Errorf("decline rejected, handover is %s: %w", h.Status, apperr.ErrInvalidTransition)
	}

	h.Status = HandoverDeclined
	h.ToUserID = &toUser
	h.AcknowledgmentNotes = reason
	if err := s.handovers.Update(ctx, h); err != nil {
		return nil, err
	}
	s.log.Info().
		Str("handover_id", h.ID.String()).
		Str("declined_by", toUser).
		Msg("handover declined")
	return h, nil
}

// Get returns one handover.
func (s *Service) Get(ctx context.Context, handoverID uuid.UUID) (*Handover, error) {
	return s.handovers.GetByID(ctx, handoverID)
}

// ExpireStale transitions every pending handover past its grace window to
// expired and returns how many it touched. Run periodically; Accept also
// checks lazily.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	stale, err := s.handovers.ListPendingExpiredBefore(ctx, s.clk.Now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, h := range stale {
		if err := s.expire(ctx, h); err != nil {
			s.log.Error().Err(err).Str("handover_id", h.ID.String()).Msg("expiry sweep failed for handover")
			continue
		}
		n++
	}
	if n > 0 {
		s.log.Warn().Int("expired", n).Msg("pending handovers expired unaccepted")
	}
	return n, nil
}

func (s *Service) expire(ctx context.Context, h *Handover) error {
	h.Status = HandoverExpired
	return s.handovers.Update(ctx, h)
}

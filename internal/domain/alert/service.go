package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardline/wardline/internal/domain/timeline"
	"github.com/wardline/wardline/internal/platform/clock"
	"github.com/wardline/wardline/internal/platform/notify"
	"github.com/wardline/wardline/pkg/apperr"
)

// ReopenMode selects the tier an alert returns to when reopened from
// acknowledged.
type ReopenMode string

const (
	ReopenReset  ReopenMode = "reset"  // back to tier 1
	ReopenResume ReopenMode = "resume" // same tier, fresh timeout
)

const (
	retryAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// keyedMutex serializes commands per alert id. Entries are reference
// counted and removed on release so the map does not grow with the total
// number of alerts ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*lockEntry)}
}

func (k *keyedMutex) lock(id uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &lockEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

// Deps bundles the service's collaborators.
type Deps struct {
	Alerts      Repository
	Escalations EscalationRepository
	Acks        AcknowledgmentRepository
	Timeline    *timeline.Service
	Policy      *Resolver
	Scheduler   clock.Scheduler
	Notifier    notify.Notifier
	Ops         *OperatorQueue
	Logger      zerolog.Logger
	ReopenMode  ReopenMode
}

// Service is the escalation controller: the single code path allowed to
// mutate an alert's status, tier, department and deadline. Commands for
// the same alert id are serialized; different alerts run fully parallel.
type Service struct {
	alerts      Repository
	escalations EscalationRepository
	acks        AcknowledgmentRepository
	tl          *timeline.Service
	policy      *Resolver
	sched       clock.Scheduler
	notifier    notify.Notifier
	ops         *OperatorQueue
	log         zerolog.Logger
	reopenMode  ReopenMode

	keys   *keyedMutex
	timers sync.Map // uuid.UUID -> clock.Timer
}

func NewService(d Deps) *Service {
	mode := d.ReopenMode
	if mode == "" {
		mode = ReopenReset
	}
	return &Service{
		alerts:      d.Alerts,
		escalations: d.Escalations,
		acks:        d.Acks,
		tl:          d.Timeline,
		policy:      d.Policy,
		sched:       d.Scheduler,
		notifier:    d.Notifier,
		ops:         d.Ops,
		log:         d.Logger,
		reopenMode:  mode,
		keys:        newKeyedMutex(),
	}
}

// CreateInput carries the write-once fields of a new alert.
type CreateInput struct {
	RoomLocation     string     `json:"room_location"`
	AlertType        Type       `json:"alert_type"`
	UrgencyLevel     int        `json:"urgency_level"`
	TargetDepartment string     `json:"target_department"`
	PatientID        *uuid.UUID `json:"patient_id,omitempty"`
	HandoverNotes    string     `json:"handover_notes"`
}

// CreateAlert validates the input, persists the alert at tier 1, appends
// the created event, notifies the tier-1 role and arms the first
// escalation timer. The timer is armed only after the store commit.
func (s *Service) CreateAlert(ctx context.Context, in CreateInput, createdBy string) (*Alert, error) {
	now := s.sched.Now()
	res := s.policy.Resolve(in.TargetDepartment, 1, in.UrgencyLevel)
	deadline := now.Add(res.Timeout)

	a := &Alert{
		ID:               uuid.New(),
		RoomLocation:     in.RoomLocation,
		AlertType:        in.AlertType,
		UrgencyLevel:     in.UrgencyLevel,
		Status:           StatusActive,
		TargetDepartment: in.TargetDepartment,
		CurrentTier:      1,
		NextEscalationAt: &deadline,
		CreatedBy:        createdBy,
		CreatedAt:        now,
		UpdatedAt:        now,
		PatientID:        in.PatientID,
		HandoverNotes:    in.HandoverNotes,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	if err := s.withRetry(ctx, a.ID, "create", func() error {
		return s.alerts.Create(ctx, a)
	}); err != nil {
		return nil, err
	}

	delivery := s.notify(ctx, a, res.Role, "alert-created", nil)
	s.appendEvent(ctx, a.ID, timeline.EventCreated, createdBy,
		fmt.Sprintf("%s alert created in %s, %s notified", a.AlertType, a.RoomLocation, res.Role),
		deliveryMetadata(delivery, map[string]interface{}{"tier": 1}))

	s.armTimer(a.ID, 1, res.Timeout)

	s.log.Info().
		Str("alert_id", a.ID.String()).
		Str("alert_type", string(a.AlertType)).
		Int("urgency", a.UrgencyLevel).
		Str("department", a.TargetDepartment).
		Dur("timeout", res.Timeout).
		Msg("alert created")
	return a, nil
}

// handleTimer is the timer-fire entry point. The tier the timer was armed
// for travels with the callback: if the alert has moved on (acknowledged,
// resolved, or already at a later tier), the fire is a guarded no-op. This
// guard, not timer cancellation, is the real protection against stale
// timers.
func (s *Service) handleTimer(alertID uuid.UUID, tier int) {
	ctx := context.Background()
	unlock := s.keys.lock(alertID)
	defer unlock()

	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Warn().Str("alert_id", alertID.String()).Msg("timer fired for unknown alert")
			return
		}
		s.failTransition(alertID, "escalate", 1, err)
		return
	}
	if a.Status != StatusActive || a.CurrentTier != tier {
		s.log.Debug().
			Str("alert_id", alertID.String()).
			Int("timer_tier", tier).
			Int("current_tier", a.CurrentTier).
			Str("status", string(a.Status)).
			Msg("stale timer fire ignored")
		return
	}

	now := s.sched.Now()
	next := s.policy.Resolve(a.TargetDepartment, tier+1, a.UrgencyLevel)

	if next.Exhausted {
		// Chain exhausted: hold at the last tier and keep re-notifying at
		// the hold cadence. Never silently drop.
		deadline := now.Add(next.Timeout)
		a.NextEscalationAt = &deadline
		a.UpdatedAt = now
		if err := s.withRetry(ctx, a.ID, "hold", func() error {
			return s.alerts.Update(ctx, a)
		}); err != nil {
			return
		}
		delivery := s.notify(ctx, a, next.Role, "alert-renotify", nil)
		s.appendEvent(ctx, a.ID, timeline.EventCommented, "",
			fmt.Sprintf("escalation chain exhausted at tier %d, %s re-notified", tier, next.Role),
			deliveryMetadata(delivery, map[string]interface{}{"tier": tier, "held": true}))
		s.armTimer(a.ID, tier, next.Timeout)
		s.log.Warn().
			Str("alert_id", a.ID.String()).
			Int("tier", tier).
			Msg("escalation chain exhausted; holding and re-notifying")
		return
	}

	fromRole := s.policy.Resolve(a.TargetDepartment, tier, a.UrgencyLevel).Role
	deadline := now.Add(next.Timeout)
	a.CurrentTier = tier + 1
	a.NextEscalationAt = &deadline
	a.UpdatedAt = now
	if err := s.withRetry(ctx, a.ID, "escalate", func() error {
		return s.alerts.Update(ctx, a)
	}); err != nil {
		return
	}

	rec := &EscalationRecord{
		AlertID:     a.ID,
		FromRole:    fromRole,
		ToRole:      next.Role,
		EscalatedAt: now,
		Reason:      ReasonTimeout,
	}
	_ = s.withRetry(ctx, a.ID, "escalation_record", func() error {
		return s.escalations.Create(ctx, rec)
	})

	delivery := s.notify(ctx, a, next.Role, "alert-escalated", map[string]string{"tier": fmt.Sprintf("%d", a.CurrentTier)})
	s.appendEvent(ctx, a.ID, timeline.EventEscalated, "",
		fmt.Sprintf("escalated to tier %d, %s notified", a.CurrentTier, next.Role),
		deliveryMetadata(delivery, map[string]interface{}{
			"tier":      a.CurrentTier,
			"from_role": fromRole,
			"to_role":   next.Role,
		}))

	s.armTimer(a.ID, a.CurrentTier, next.Timeout)

	s.log.Info().
		Str("alert_id", a.ID.String()).
		Int("tier", a.CurrentTier).
		Str("to_role", next.Role).
		Msg("alert escalated")
}

// AckInput carries the responder's assessment.
type AckInput struct {
	UrgencyAssessment     string  `json:"urgency_assessment"`
	ResponseAction        string  `json:"response_action"`
	EstimatedResponseTime string  `json:"estimated_response_time"`
	DelegatedTo           *string `json:"delegated_to,omitempty"`
}

// Acknowledge halts escalation. Only an active alert can be acknowledged;
// a lost race against a timer fire is surfaced as InvalidTransition with
// the current status so the caller can re-read and decide.
func (s *Service) Acknowledge(ctx context.Context, alertID uuid.UUID, userID string, in AckInput) (*Alert, error) {
	unlock := s.keys.lock(alertID)
	defer unlock()

	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive {
		return a, invalidTransition("acknowledge", a.Status)
	}

	now := s.sched.Now()
	responseTime := int(now.Sub(a.UpdatedAt).Seconds())

	a.Status = StatusAcknowledged
	a.NextEscalationAt = nil
	a.AcknowledgedBy = &userID
	a.AcknowledgedAt = &now
	a.UpdatedAt = now
	if err := s.withRetry(ctx, a.ID, "acknowledge", func() error {
		return s.alerts.Update(ctx, a)
	}); err != nil {
		return nil, err
	}
	s.stopTimer(a.ID)

	ack := &Acknowledgment{
		AlertID:               a.ID,
		UserID:                userID,
		AcknowledgedAt:        now,
		ResponseTimeSeconds:   responseTime,
		UrgencyAssessment:     in.UrgencyAssessment,
		ResponseAction:        in.ResponseAction,
		EstimatedResponseTime: in.EstimatedResponseTime,
		DelegatedTo:           in.DelegatedTo,
	}
	_ = s.withRetry(ctx, a.ID, "acknowledgment_record", func() error {
		return s.acks.Create(ctx, ack)
	})

	s.appendEvent(ctx, a.ID, timeline.EventAcknowledged, userID,
		fmt.Sprintf("acknowledged by %s after %ds", userID, responseTime),
		map[string]interface{}{"response_time_seconds": responseTime})

	s.log.Info().
		Str("alert_id", a.ID.String()).
		Str("user_id", userID).
		Int("response_time_s", responseTime).
		Msg("alert acknowledged")
	return a, nil
}

// Resolve closes an acknowledged alert. Resolved is terminal.
func (s *Service) Resolve(ctx context.Context, alertID uuid.UUID, userID string) (*Alert, error) {
	unlock := s.keys.lock(alertID)
	defer unlock()

	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusAcknowledged {
		return a, invalidTransition("resolve", a.Status)
	}

	a.Status = StatusResolved
	a.NextEscalationAt = nil
	a.UpdatedAt = s.sched.Now()
	if err := s.withRetry(ctx, a.ID, "resolve", func() error {
		return s.alerts.Update(ctx, a)
	}); err != nil {
		return nil, err
	}
	s.stopTimer(a.ID)

	s.appendEvent(ctx, a.ID, timeline.EventResolved, userID, "resolved by "+userID, nil)

	s.log.Info().Str("alert_id", a.ID.String()).Str("user_id", userID).Msg("alert resolved")
	return a, nil
}

// Reopen returns an acknowledged alert to active. The tier it resumes at
// is a deployment policy: reset to 1 or resume where it left off.
func (s *Service) Reopen(ctx context.Context, alertID uuid.UUID, userID string) (*Alert, error) {
	unlock := s.keys.lock(alertID)
	defer unlock()

	a, err := s.alerts.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusAcknowledged {
		return a, invalidTransition("reopen", a.Status)
	}

	tier := a.CurrentTier
	if s.reopenMode == ReopenReset {
		tier = 1
	}
	now := s.sched.Now()
	res := s.policy.Resolve(a.TargetDepartment, tier, a.UrgencyLevel)
	deadline := now.Add(res.Timeout)

	a.Status = StatusActive
	a.CurrentTier = tier
	a.NextEscalationAt = &deadline
	a.UpdatedAt = now
	if err := s.withRetry(ctx, a.ID, "reopen", func() error {
		return s.alerts.Update(ctx, a)
	}); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, a.ID, timeline.EventReopened, userID,
		fmt.Sprintf("reopened by %s at tier %d (%s policy)", userID, tier, s.reopenMode),
		map[string]interface{}{"tier": tier, "reopen_mode": string(s.reopenMode)})

	s.armTimer(a.ID, tier, res.Timeout)

	s.log.Info().
		Str("alert_id", a.ID.String()).
		Str("user_id", userID).
		Int("tier", tier).
		Msg("alert reopened")
	return a, nil
}

// Get returns one alert.
func (s *Service) Get(ctx context.Context, alertID uuid.UUID) (*Alert, error) {
	return s.alerts.GetByID(ctx, alertID)
}

// List returns alerts matching the filter, most urgent first.
func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Alert, int, error) {
	return s.alerts.List(ctx, f, limit, offset)
}

// Escalations returns an alert's tier transitions oldest-first.
func (s *Service) Escalations(ctx context.Context, alertID uuid.UUID) ([]*EscalationRecord, error) {
	if _, err := s.alerts.GetByID(ctx, alertID); err != nil {
		return nil, err
	}
	return s.escalations.ListByAlert(ctx, alertID)
}

// Acknowledgments returns an alert's responder engagements oldest-first.
func (s *Service) Acknowledgments(ctx context.Context, alertID uuid.UUID) ([]*Acknowledgment, error) {
	if _, err := s.alerts.GetByID(ctx, alertID); err != nil {
		return nil, err
	}
	return s.acks.ListByAlert(ctx, alertID)
}

// OpenByDepartment returns a department's unresolved alerts, used by shift
// handover snapshots.
func (s *Service) OpenByDepartment(ctx context.Context, department string) ([]*Alert, error) {
	return s.alerts.ListOpenByDepartment(ctx, department)
}

// FailedTransitions exposes the operator queue.
func (s *Service) FailedTransitions() []FailedTransition {
	return s.ops.Snapshot()
}

// PendingTimers reports how many escalation timers are armed.
func (s *Service) PendingTimers() int {
	n := 0
	s.timers.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// -- internals --

func invalidTransition(command string, current Status) error {
	return fmt.Errorf("%s rejected, alert is %s: %w", command, current, apperr.ErrInvalidTransition)
}

// withRetry runs a store write with bounded backoff. Business errors pass
// through untouched; backend errors are retried and, on exhaustion, pushed
// to the operator queue.
func (s *Service) withRetry(ctx context.Context, alertID uuid.UUID, command string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !apperr.IsBackend(err) {
			return err
		}
		if attempt < retryAttempts {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				attempt = retryAttempts
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
	}
	s.failTransition(alertID, command, retryAttempts, err)
	return err
}

func (s *Service) failTransition(alertID uuid.UUID, command string, attempts int, err error) {
	s.ops.Push(FailedTransition{
		AlertID:  alertID,
		Command:  command,
		Error:    err.Error(),
		Attempts: attempts,
		FailedAt: s.sched.Now(),
	})
}

// armTimer stops any previous timer for the alert and schedules the next
// fire. Called only after the state change it follows has committed.
func (s *Service) armTimer(alertID uuid.UUID, tier int, d time.Duration) {
	t := s.sched.AfterFunc(d, func() {
		s.timers.Delete(alertID)
		s.handleTimer(alertID, tier)
	})
	if prev, loaded := s.timers.Swap(alertID, t); loaded {
		prev.(clock.Timer).Stop()
	}
}

// stopTimer is best-effort; the handleTimer guard covers fires that slip
// through.
func (s *Service) stopTimer(alertID uuid.UUID) {
	if t, loaded := s.timers.LoadAndDelete(alertID); loaded {
		t.(clock.Timer).Stop()
	}
}

// notify dispatches fire-and-log; the result feeds timeline metadata and
// never blocks a transition.
func (s *Service) notify(ctx context.Context, a *Alert, role, event string, extra map[string]string) notify.DeliveryResult {
	result := s.notifier.Send(ctx, notify.Delivery{
		AlertID:    a.ID,
		Event:      event,
		Room:       a.RoomLocation,
		AlertType:  string(a.AlertType),
		Urgency:    a.UrgencyLevel,
		Department: a.TargetDepartment,
		Role:       role,
		Data:       extra,
	})
	if !result.Delivered {
		s.log.Warn().
			Str("alert_id", a.ID.String()).
			Str("event", event).
			Str("role", role).
			Str("error", result.Error).
			Msg("notification delivery failed")
	}
	return result
}

func (s *Service) appendEvent(ctx context.Context, alertID uuid.UUID, et timeline.EventType, userID, description string, metadata map[string]interface{}) {
	if _, err := s.tl.Record(ctx, alertID, et, userID, description, metadata); err != nil {
		s.log.Error().
			Str("alert_id", alertID.String()).
			Str("event_type", string(et)).
			Err(err).
			Msg("timeline append failed")
		s.failTransition(alertID, "timeline_"+string(et), 1, err)
	}
}

func deliveryMetadata(d notify.DeliveryResult, base map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = map[string]interface{}{}
	}
	base["notified"] = d.Delivered
	if d.Error != "" {
		base["notify_error"] = d.Error
	}
	return base
}

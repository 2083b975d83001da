package handover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wardline/wardline/internal/domain/alert"
	"github.com/wardline/wardline/internal/domain/timeline"
	"github.com/wardline/wardline/internal/platform/clock"
	"github.com/wardline/wardline/pkg/apperr"
)

// -- in-memory test doubles --

type mockShiftLogRepo struct {
	mu   sync.RWMutex
	logs map[uuid.UUID]*ShiftLog
}

func newMockShiftLogRepo() *mockShiftLogRepo {
	return &mockShiftLogRepo{logs: make(map[uuid.UUID]*ShiftLog)}
}

func (r *mockShiftLogRepo) Create(_ context.Context, s *ShiftLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.logs[s.ID] = &cp
	return nil
}

func (r *mockShiftLogRepo) GetByID(_ context.Context, id uuid.UUID) (*ShiftLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.logs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *mockShiftLogRepo) Update(_ context.Context, s *ShiftLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.logs[s.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *s
	r.logs[s.ID] = &cp
	return nil
}

// mockHandoverRepo enforces the one-pending-per-shift-log invariant the
// way the partial unique index does in Postgres.
type mockHandoverRepo struct {
	mu        sync.Mutex
	handovers map[uuid.UUID]*Handover
}

func newMockHandoverRepo() *mockHandoverRepo {
	return &mockHandoverRepo{handovers: make(map[uuid.UUID]*Handover)}
}

func (r *mockHandoverRepo) Create(_ context.Context, h *Handover) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.handovers {
		if existing.ShiftLogID == h.ShiftLogID && existing.Status == HandoverPending {
			return apperr.ErrConflict
		}
	}
	cp := *h
	r.handovers[h.ID] = &cp
	return nil
}

func (r *mockHandoverRepo) GetByID(_ context.Context, id uuid.UUID) (*Handover, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handovers[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (r *mockHandoverRepo) Update(_ context.Context, h *Handover) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handovers[h.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *h
	r.handovers[h.ID] = &cp
	return nil
}

func (r *mockHandoverRepo) ListPendingExpiredBefore(_ context.Context, cutoff time.Time) ([]*Handover, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Handover
	for _, h := range r.handovers {
		if h.Status == HandoverPending && !h.ExpiresAt.After(cutoff) {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockAlertDirectory struct {
	open []*alert.Alert
}

func (d *mockAlertDirectory) OpenByDepartment(_ context.Context, department string) ([]*alert.Alert, error) {
	var out []*alert.Alert
	for _, a := range d.open {
		if a.TargetDepartment == department {
			out = append(out, a)
		}
	}
	return out, nil
}

type testEnv struct {
	svc       *Service
	clk       *clock.Fake
	shifts    *mockShiftLogRepo
	handovers *mockHandoverRepo
	dir       *mockAlertDirectory
	tl        *timeline.MemoryRepo
}

const grace = 30 * time.Minute

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC))
	shifts := newMockShiftLogRepo()
	handovers := newMockHandoverRepo()
	dir := &mockAlertDirectory{}
	tlRepo := timeline.NewMemoryRepo()
	svc := NewService(shifts, handovers, dir, timeline.NewService(tlRepo, clk), clk, grace, zerolog.Nop())
	return &testEnv{svc: svc, clk: clk, shifts: shifts, handovers: handovers, dir: dir, tl: tlRepo}
}

func (env *testEnv) startShift(t *testing.T, user, department string) *ShiftLog {
	t.Helper()
	sl, err := env.svc.StartShift(context.Background(), user, "st-marys", department)
	if err != nil {
		t.Fatalf("StartShift: %v", err)
	}
	return sl
}

func (env *testEnv) openAlert(department string, tier int) *alert.Alert {
	a := &alert.Alert{
		ID:               uuid.New(),
		RoomLocation:     "ICU-2",
		AlertType:        alert.TypeCodeBlue,
		UrgencyLevel:     2,
		Status:           alert.StatusActive,
		TargetDepartment: department,
		CurrentTier:      tier,
		HandoverNotes:    "family notified",
	}
	env.dir.open = append(env.dir.open, a)
	return a
}

// -- tests --

func TestShiftLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sl := env.startShift(t, "n.okafor", "ICU")
	if sl.Status != ShiftActive || sl.ShiftEnd != nil {
		t.Fatalf("shift = %+v", sl)
	}

	closed, err := env.svc.CloseShift(ctx, sl.ID)
	if err != nil {
		t.Fatalf("CloseShift: %v", err)
	}
	if closed.Status != ShiftCompleted || closed.ShiftEnd == nil {
		t.Fatalf("closed = %+v", closed)
	}

	if _, err := env.svc.CloseShift(ctx, sl.ID); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("second close: err = %v", err)
	}
}

func TestStartShiftValidates(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.StartShift(context.Background(), "u", "st-marys", ""); !apperr.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestInitiateSnapshotsOpenAlerts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sl := env.startShift(t, "n.okafor", "ICU")
	a := env.openAlert("ICU", 2)
	env.openAlert("ER", 1) // different department, excluded

	h, err := env.svc.Initiate(ctx, "n.okafor", InitiateInput{
		ShiftLogID:       sl.ID,
		HandoverNotes:    "busy night",
		FollowUpRequired: []string{"check bed 4 meds"},
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if h.Status != HandoverPending {
		t.Fatalf("status = %s", h.Status)
	}
	if len(h.CriticalAlerts) != 1 || h.CriticalAlerts[0].AlertID != a.ID {
		t.Fatalf("critical alerts = %+v", h.CriticalAlerts)
	}
	if h.CriticalAlerts[0].CurrentTier != 2 || h.CriticalAlerts[0].Notes != "family notified" {
		t.Errorf("snapshot = %+v", h.CriticalAlerts[0])
	}
	if !h.ExpiresAt.Equal(env.clk.Now().Add(grace)) {
		t.Errorf("expires at = %v", h.ExpiresAt)
	}

	got, _ := env.shifts.GetByID(ctx, sl.ID)
	if got.HandoverID == nil || *got.HandoverID != h.ID {
		t.Error("shift log not linked to handover")
	}
}

func TestInitiateRejectsForeignShiftLog(t *testing.T) {
	env := newTestEnv(t)
	sl := env.startShift(t, "n.okafor", "ICU")

	_, err := env.svc.Initiate(context.Background(), "someone.else", InitiateInput{ShiftLogID: sl.ID})
	if !apperr.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestInitiateConflictWhilePendingOutstanding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sl := env.startShift(t, "n.okafor", "ICU")

	if _, err := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID}); err != nil {
		t.Fatalf("first Initiate: %v", err)
	}
	if _, err := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second Initiate: err = %v, want conflict", err)
	}
}

func TestConcurrentInitiationsOnlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sl := env.startShift(t, "n.okafor", "ICU")

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || conflicts != 5 {
		t.Fatalf("ok = %d, conflicts = %d; exactly one initiation must win", ok, conflicts)
	}
}

func TestAcceptTransfersAndStampsTimeline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sl := env.startShift(t, "n.okafor", "ICU")
	a1 := env.openAlert("ICU", 1)
	a2 := env.openAlert("ICU", 3)

	h, err := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	env.clk.Advance(10 * time.Minute)
	accepted, err := env.svc.Accept(ctx, h.ID, "d.reyes", "all noted")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != HandoverAccepted || accepted.AcceptedAt == nil {
		t.Fatalf("accepted = %+v", accepted)
	}
	if accepted.ToUserID == nil || *accepted.ToUserID != "d.reyes" {
		t.Errorf("to user = %v", accepted.ToUserID)
	}

	for _, id := range []uuid.UUID{a1.ID, a2.ID} {
		events, _ := env.tl.ListByAlert(ctx, id)
		if len(events) != 1 || events[0].EventType != timeline.EventTransferred {
			t.Errorf("alert %s events = %+v, want one transferred", id, events)
		}
	}
}

func TestAcceptIdempotenceGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sl := env.startShift(t, "n.okafor", "ICU")
	h, _ := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID})

	if _, err := env.svc.Accept(ctx, h.ID, "d.reyes", ""); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := env.svc.Accept(ctx, h.ID, "late.comer", ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("second accept: err = %v", err)
	}
	if _, err := env.svc.Decline(ctx, h.ID, "late.comer", "no"); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("decline after accept: err = %v", err)
	}
}

func TestAcceptAfterGraceExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sl := env.startShift(t, "n.okafor", "ICU")
	h, _ := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID})

	env.clk.Advance(grace + time.Minute)

	if _, err := env.svc.Accept(ctx, h.ID, "d.reyes", ""); !errors.Is(err, apperr.ErrExpired) {
		t.Fatalf("err = %v, want expired", err)
	}
	got, _ := env.svc.Get(ctx, h.ID)
	if got.Status != HandoverExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
}

func TestDeclineLeavesOutgoingResponsible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sl := env.startShift(t, "n.okafor", "ICU")
	env.openAlert("ICU", 1)
	h, _ := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID})

	declined, err := env.svc.Decline(ctx, h.ID, "d.reyes", "overloaded")
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if declined.Status != HandoverDeclined || declined.AcknowledgmentNotes != "overloaded" {
		t.Fatalf("declined = %+v", declined)
	}

	// no transferred events: responsibility did not move
	for _, a := range env.dir.open {
		events, _ := env.tl.ListByAlert(ctx, a.ID)
		if len(events) != 0 {
			t.Errorf("declined handover wrote timeline events: %+v", events)
		}
	}
}

func TestExpireStaleSweepReleasesSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sl := env.startShift(t, "n.okafor", "ICU")
	h, _ := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID})

	// a second initiation is blocked while the first is pending
	if _, err := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID}); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	env.clk.Advance(grace + time.Second)
	n, err := env.svc.ExpireStale(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ExpireStale = %d, %v", n, err)
	}
	got, _ := env.svc.Get(ctx, h.ID)
	if got.Status != HandoverExpired {
		t.Fatalf("status = %s", got.Status)
	}

	// slot released: a fresh handover can now be initiated
	if _, err := env.svc.Initiate(ctx, "n.okafor", InitiateInput{ShiftLogID: sl.ID}); err != nil {
		t.Fatalf("Initiate after expiry: %v", err)
	}
}

func TestUnknownHandover(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Accept(ctx, uuid.New(), "u", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("accept unknown: %v", err)
	}
	if _, err := env.svc.Decline(ctx, uuid.New(), "u", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("decline unknown: %v", err)
	}
}

package handover

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardline/wardline/pkg/apperr"
)

const uniqueViolation = "23505"

// -- Shift logs --

type shiftLogRepoPG struct{ pool *pgxpool.Pool }

// NewShiftLogRepoPG returns a Postgres-backed ShiftLogRepository.
func NewShiftLogRepoPG(pool *pgxpool.Pool) ShiftLogRepository {
	return &shiftLogRepoPG{pool: pool}
}

const shiftLogCols = `id, user_id, hospital_id, department, shift_start, shift_end, status, handover_id, created_at`

func scanShiftLog(row pgx.Row) (*ShiftLog, error) {
	var s ShiftLog
	err := row.Scan(&s.ID, &s.UserID, &s.HospitalID, &s.Department,
		&s.ShiftStart, &s.ShiftEnd, &s.Status, &s.HandoverID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Backend("shiftlog.scan", err)
	}
	return &s, nil
}

func (r *shiftLogRepoPG) Create(ctx context.Context, s *ShiftLog) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO shift_log (id, user_id, hospital_id, department, shift_start, shift_end, status, handover_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.ID, s.UserID, s.HospitalID, s.Department, s.ShiftStart, s.ShiftEnd, s.Status, s.HandoverID)
	if err != nil {
		return apperr.Backend("shiftlog.create", err)
	}
	return nil
}

func (r *shiftLogRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ShiftLog, error) {
	return scanShiftLog(r.pool.QueryRow(ctx, `SELECT `+shiftLogCols+` FROM shift_log WHERE id = $1`, id))
}

func (r *shiftLogRepoPG) Update(ctx context.Context, s *ShiftLog) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE shift_log SET shift_end=$2, status=$3, handover_id=$4 WHERE id = $1`,
		s.ID, s.ShiftEnd, s.Status, s.HandoverID)
	if err != nil {
		return apperr.Backend("shiftlog.update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// -- Handovers --

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Postgres-backed handover Repository. The
// one-pending-per-shift-log invariant rides on a partial unique index over
// (shift_log_id) WHERE status = 'pending'.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const handoverCols = `id, from_user_id, to_user_id, shift_log_id, handover_notes,
	critical_alerts, follow_up_required, status, created_at, expires_at,
	accepted_at, acknowledgment_notes`

func scanHandover(row pgx.Row) (*Handover, error) {
	var h Handover
	var critical, followUp []byte
	err := row.Scan(&h.ID, &h.FromUserID, &h.ToUserID, &h.ShiftLogID, &h.HandoverNotes,
		&critical, &followUp, &h.Status, &h.CreatedAt, &h.ExpiresAt,
		&h.AcceptedAt, &h.AcknowledgmentNotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Backend("handover.scan", err)
	}
	if len(critical) > 0 {
		if err := json.Unmarshal(critical, &h.CriticalAlerts); err != nil {
			return nil, apperr.Backend("handover.scan", err)
		}
	}
	if len(followUp) > 0 {
		if err := json.Unmarshal(followUp, &h.FollowUpRequired); err != nil {
			return nil, apperr.Backend("handover.scan", err)
		}
	}
	return &h, nil
}

func (r *repoPG) Create(ctx context.Context, h *Handover) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	critical, err := json.Marshal(h.CriticalAlerts)
	if err != nil {
		return apperr.Backend("handover.create", err)
	}
	followUp, err := json.Marshal(h.FollowUpRequired)
	if err != nil {
		return apperr.Backend("handover.create", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO shift_handover (id, from_user_id, to_user_id, shift_log_id,
			handover_notes, critical_alerts, follow_up_required, status,
			created_at, expires_at, acknowledgment_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		h.ID, h.FromUserID, h.ToUserID, h.ShiftLogID,
		h.HandoverNotes, critical, followUp, h.Status,
		h.CreatedAt, h.ExpiresAt, h.AcknowledgmentNotes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperr.ErrConflict
		}
		return apperr.Backend("handover.create", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Handover, error) {
	return scanHandover(r.pool.QueryRow(ctx, `SELECT `+handoverCols+` FROM shift_handover WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, h *Handover) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE shift_handover SET to_user_id=$2, status=$3, accepted_at=$4, acknowledgment_notes=$5
		WHERE id = $1`,
		h.ID, h.ToUserID, h.Status, h.AcceptedAt, h.AcknowledgmentNotes)
	if err != nil {
		return apperr.Backend("handover.update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *repoPG) ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]*Handover, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+handoverCols+` FROM shift_handover
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at ASC`, cutoff)
	if err != nil {
		return nil, apperr.Backend("handover.list_expired", err)
	}
	defer rows.Close()
	var items []*Handover
	for rows.Next() {
		h, err := scanHandover(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Backend("handover.list_expired", err)
	}
	return items, nil
}

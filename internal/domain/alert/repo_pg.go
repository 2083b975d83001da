package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardline/wardline/pkg/apperr"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// -- Alert --

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Postgres-backed alert Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable { return r.pool }

const alertCols = `id, room_location, alert_type, urgency_level, status,
	target_department, current_tier, next_escalation_at,
	created_by, created_at, updated_at,
	acknowledged_by, acknowledged_at, patient_id, handover_notes`

func scanAlert(row pgx.Row) (*Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.RoomLocation, &a.AlertType, &a.UrgencyLevel, &a.Status,
		&a.TargetDepartment, &a.CurrentTier, &a.NextEscalationAt,
		&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
		&a.AcknowledgedBy, &a.AcknowledgedAt, &a.PatientID, &a.HandoverNotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Backend("alert.scan", err)
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO alert (id, room_location, alert_type, urgency_level, status,
			target_department, current_tier, next_escalation_at,
			created_by, created_at, updated_at, patient_id, handover_notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.RoomLocation, a.AlertType, a.UrgencyLevel, a.Status,
		a.TargetDepartment, a.CurrentTier, a.NextEscalationAt,
		a.CreatedBy, a.CreatedAt, a.UpdatedAt, a.PatientID, a.HandoverNotes)
	if err != nil {
		return apperr.Backend("alert.create", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return scanAlert(r.conn(ctx).QueryRow(ctx, `SELECT `+alertCols+` FROM alert WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Alert) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE alert SET status=$2, current_tier=$3, target_department=$4,
			next_escalation_at=$5, acknowledged_by=$6, acknowledged_at=$7,
			handover_notes=$8, updated_at=$9
		WHERE id = $1`,
		a.ID, a.Status, a.CurrentTier, a.TargetDepartment,
		a.NextEscalationAt, a.AcknowledgedBy, a.AcknowledgedAt,
		a.HandoverNotes, a.UpdatedAt)
	if err != nil {
		return apperr.Backend("alert.update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Alert, int, error) {
	where := ""
	args := []interface{}{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += fmt.Sprintf(cond, len(args))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Department != "" {
		add("LOWER(target_department) = LOWER($%d)", f.Department)
	}
	if f.AlertType != "" {
		add("alert_type = $%d", f.AlertType)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM alert`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Backend("alert.list", err)
	}

	query := fmt.Sprintf(`SELECT `+alertCols+` FROM alert%s ORDER BY urgency_level ASC, created_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Backend("alert.list", err)
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Backend("alert.list", err)
	}
	return items, total, nil
}

func (r *repoPG) ListOpenByDepartment(ctx context.Context, department string) ([]*Alert, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+alertCols+` FROM alert
		WHERE LOWER(target_department) = LOWER($1) AND status IN ('active','acknowledged')
		ORDER BY urgency_level ASC, created_at ASC`, department)
	if err != nil {
		return nil, apperr.Backend("alert.list_open", err)
	}
	defer rows.Close()
	var items []*Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Backend("alert.list_open", err)
	}
	return items, nil
}

// -- Escalation records --

type escalationRepoPG struct{ pool *pgxpool.Pool }

// NewEscalationRepoPG returns a Postgres-backed EscalationRepository.
func NewEscalationRepoPG(pool *pgxpool.Pool) EscalationRepository {
	return &escalationRepoPG{pool: pool}
}

func (r *escalationRepoPG) Create(ctx context.Context, e *EscalationRecord) error {
	e.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO escalation_record (id, alert_id, from_role, to_role, escalated_at, reason)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.AlertID, e.FromRole, e.ToRole, e.EscalatedAt, e.Reason)
	if err != nil {
		return apperr.Backend("escalation.create", err)
	}
	return nil
}

func (r *escalationRepoPG) ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*EscalationRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, alert_id, from_role, to_role, escalated_at, reason
		FROM escalation_record WHERE alert_id = $1 ORDER BY escalated_at ASC`, alertID)
	if err != nil {
		return nil, apperr.Backend("escalation.list", err)
	}
	defer rows.Close()
	var items []*EscalationRecord
	for rows.Next() {
		var e EscalationRecord
		if err := rows.Scan(&e.ID, &e.AlertID, &e.FromRole, &e.ToRole, &e.EscalatedAt, &e.Reason); err != nil {
			return nil, apperr.Backend("escalation.scan", err)
		}
		items = append(items, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Backend("escalation.list", err)
	}
	return items, nil
}

func (r *escalationRepoPG) CountByAlert(ctx context.Context, alertID uuid.UUID) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM escalation_record WHERE alert_id = $1`, alertID).Scan(&n); err != nil {
		return 0, apperr.Backend("escalation.count", err)
	}
	return n, nil
}

// -- Acknowledgments --

type ackRepoPG struct{ pool *pgxpool.Pool }

// NewAcknowledgmentRepoPG returns a Postgres-backed AcknowledgmentRepository.
func NewAcknowledgmentRepoPG(pool *pgxpool.Pool) AcknowledgmentRepository {
	return &ackRepoPG{pool: pool}
}

func (r *ackRepoPG) Create(ctx context.Context, a *Acknowledgment) error {
	a.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO acknowledgment (id, alert_id, user_id, acknowledged_at,
			response_time_seconds, urgency_assessment, response_action,
			estimated_response_time, delegated_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.AlertID, a.UserID, a.AcknowledgedAt,
		a.ResponseTimeSeconds, a.UrgencyAssessment, a.ResponseAction,
		a.EstimatedResponseTime, a.DelegatedTo)
	if err != nil {
		return apperr.Backend("acknowledgment.create", err)
	}
	return nil
}

func (r *ackRepoPG) ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*Acknowledgment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, alert_id, user_id, acknowledged_at, response_time_seconds,
			urgency_assessment, response_action, estimated_response_time, delegated_to
		FROM acknowledgment WHERE alert_id = $1 ORDER BY acknowledged_at ASC`, alertID)
	if err != nil {
		return nil, apperr.Backend("acknowledgment.list", err)
	}
	defer rows.Close()
	var items []*Acknowledgment
	for rows.Next() {
		var a Acknowledgment
		if err := rows.Scan(&a.ID, &a.AlertID, &a.UserID, &a.AcknowledgedAt,
			&a.ResponseTimeSeconds, &a.UrgencyAssessment, &a.ResponseAction,
			&a.EstimatedResponseTime, &a.DelegatedTo); err != nil {
			return nil, apperr.Backend("acknowledgment.scan", err)
		}
		items = append(items, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Backend("acknowledgment.list", err)
	}
	return items, nil
}

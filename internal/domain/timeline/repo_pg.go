package timeline

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

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Postgres-backed Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable { return r.pool }

const eventCols = `id, seq, alert_id, event_type, event_time, user_id, description, metadata`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Seq, &e.AlertID, &e.EventType, &e.EventTime,
		&e.UserID, &e.Description, &e.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Backend("timeline.scan", err)
	}
	return &e, nil
}

func (r *repoPG) Append(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO timeline_event (id, alert_id, event_type, event_time, user_id, description, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING seq`,
		e.ID, e.AlertID, e.EventType, e.EventTime, e.UserID, e.Description, e.Metadata).Scan(&e.Seq)
	if err != nil {
		return apperr.Backend("timeline.append", err)
	}
	return nil
}

func (r *repoPG) ListByAlert(ctx context.Context, alertID uuid.UUID) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+eventCols+` FROM timeline_event
		WHERE alert_id = $1
		ORDER BY event_time ASC, seq ASC`, alertID)
	if err != nil {
		return nil, apperr.Backend("timeline.list_by_alert", err)
	}
	defer rows.Close()
	var items []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Backend("timeline.list_by_alert", err)
	}
	return items, nil
}

func (r *repoPG) ListRecent(ctx context.Context, eventType string, limit, offset int) ([]*Event, int, error) {
	where := ``
	args := []interface{}{}
	if eventType != "" {
		where = ` WHERE event_type = $1`
		args = append(args, eventType)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM timeline_event`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Backend("timeline.list_recent", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT `+eventCols+` FROM timeline_event%s ORDER BY event_time DESC, seq DESC LIMIT $%d OFFSET $%d`,
		where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, apperr.Backend("timeline.list_recent", err)
	}
	defer rows.Close()
	var items []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Backend("timeline.list_recent", err)
	}
	return items, total, nil
}

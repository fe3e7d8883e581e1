package audit

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository stores audit events in audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL-backed audit repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert writes one event.
func (r *PGRepository) Insert(ctx context.Context, ev Event) error {
	var userID pgtype.Int8
	if ev.UserID > 0 {
		userID = pgtype.Int8{Int64: ev.UserID, Valid: true}
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_logs (user_id, action, description, table_name, ip, occurred_at)
VALUES ($1, $2, $3, $4, $5, NOW())`,
		userID, ev.Action, optionalText(ev.Description), optionalText(ev.Table), optionalText(ev.IP))
	return err
}

// TimelineWindow lists events newest first. A zero Limit returns every match.
func (r *PGRepository) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	var limit pgtype.Int4
	if arg.Limit > 0 {
		limit = pgtype.Int4{Int32: int32(arg.Limit), Valid: true}
	}
	var userID pgtype.Int8
	if arg.UserID > 0 {
		userID = pgtype.Int8{Int64: arg.UserID, Valid: true}
	}
	rows, err := r.pool.Query(ctx, `SELECT id, occurred_at, user_id, action,
	COALESCE(description, ''), COALESCE(table_name, ''), COALESCE(ip, '')
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::bigint IS NULL OR user_id = $3)
  AND ($4::text IS NULL OR action = $4)
  AND ($5::text IS NULL OR table_name = $5)
ORDER BY occurred_at DESC, id DESC
OFFSET $6
LIMIT $7`,
		toPgTime(arg.From), toPgTime(arg.To), userID, optionalText(arg.Action), optionalText(arg.Table), arg.Offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row TimelineRow
			uid pgtype.Int8
		)
		if err := rows.Scan(&row.ID, &row.At, &uid, &row.Action, &row.Description, &row.Table, &row.IP); err != nil {
			return nil, err
		}
		if uid.Valid {
			v := uid.Int64
			row.UserID = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PruneBefore removes events that occurred before cutoff.
func (r *PGRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

var (
	_ Store      = (*PGRepository)(nil)
	_ Repository = (*PGRepository)(nil)
)

package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createAuditLog = `-- name: CreateAuditLog :exec
INSERT INTO audit_log (user_id, action, details, ip_address, user_agent)
VALUES ($1, $2, $3, $4, $5)`

type CreateAuditLogParams struct {
	UserID    pgtype.Int8 `json:"user_id"`
	Action    string      `json:"action"`
	Details   []byte      `json:"details"`
	IpAddress pgtype.Text `json:"ip_address"`
	UserAgent pgtype.Text `json:"user_agent"`
}

func (q *Queries) CreateAuditLog(ctx context.Context, arg CreateAuditLogParams) error {
	details := arg.Details
	if len(details) == 0 {
		details = []byte("{}")
	}
	_, err := q.db.Exec(ctx, createAuditLog,
		arg.UserID,
		arg.Action,
		details,
		arg.IpAddress,
		arg.UserAgent,
	)
	return err
}

const listAuditLogs = `-- name: ListAuditLogs :many
SELECT id, user_id, action, details, ip_address, user_agent, created_at
FROM audit_log
WHERE ($1::bigint IS NULL OR user_id = $1)
  AND ($2::text IS NULL OR action = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`

type ListAuditLogsParams struct {
	UserID pgtype.Int8 `json:"user_id"`
	Action pgtype.Text `json:"action"`
	Limit  int64       `json:"limit"`
	Offset int64       `json:"offset"`
}

func (q *Queries) ListAuditLogs(ctx context.Context, arg ListAuditLogsParams) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLogs,
		arg.UserID,
		arg.Action,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []AuditLog{}
	for rows.Next() {
		var i AuditLog
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.Action,
			&i.Details,
			&i.IpAddress,
			&i.UserAgent,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

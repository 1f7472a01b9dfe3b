package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tailingsiq/tailingsiq/internal/middleware"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

type auditLogResponse struct {
	ID        int64           `json:"id"`
	UserID    *int64          `json:"user_id"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	IPAddress string          `json:"ip_address,omitempty"`
	UserAgent string          `json:"user_agent,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toAuditLogResponse(row store.AuditLog) auditLogResponse {
	out := auditLogResponse{
		ID:        row.ID,
		Action:    row.Action,
		IPAddress: row.IpAddress.String,
		UserAgent: row.UserAgent.String,
		CreatedAt: row.CreatedAt.Time,
	}
	if row.UserID.Valid {
		id := row.UserID.Int64
		out.UserID = &id
	}
	if len(row.Details) > 0 {
		out.Details = json.RawMessage(row.Details)
	}
	return out
}

func (s *Server) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	if _, ok := requirePermission(w, r, rbac.CanAccessAdminPanel); !ok {
		return
	}

	q := r.URL.Query()
	var userID pgtype.Int8
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, ValidationErr("Invalid user_id", nil))
			return
		}
		userID = pgtype.Int8{Int64: id, Valid: true}
	}

	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid pagination parameters", nil))
		return
	}

	rows, err := s.users.ListAuditLogs(r.Context(), store.ListAuditLogsParams{
		UserID: userID,
		Action: store.Text(q.Get("action")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		logger.Error("Failed to list audit logs", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	out := make([]auditLogResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toAuditLogResponse(row))
	}
	writeJSON(w, http.StatusOK, out)
}

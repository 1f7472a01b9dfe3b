package store

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
)

type User struct {
	ID                  int64              `json:"id"`
	Username            string             `json:"username"`
	Email               string             `json:"email"`
	PasswordHash        string             `json:"password_hash"`
	FirstName           string             `json:"first_name"`
	LastName            string             `json:"last_name"`
	Role                string             `json:"role"`
	Status              string             `json:"status"`
	Organization        pgtype.Text        `json:"organization"`
	Position            pgtype.Text        `json:"position"`
	Phone               pgtype.Text        `json:"phone"`
	LicenseNumber       pgtype.Text        `json:"license_number"`
	FacilitiesAccess    []string           `json:"facilities_access"`
	FailedLoginAttempts int32              `json:"failed_login_attempts"`
	LockedUntil         pgtype.Timestamptz `json:"locked_until"`
	LastLogin           pgtype.Timestamptz `json:"last_login"`
	PasswordChangedAt   pgtype.Timestamptz `json:"password_changed_at"`
	CreatedAt           pgtype.Timestamptz `json:"created_at"`
	UpdatedAt           pgtype.Timestamptz `json:"updated_at"`
}

type AuditLog struct {
	ID        int64              `json:"id"`
	UserID    pgtype.Int8        `json:"user_id"`
	Action    string             `json:"action"`
	Details   []byte             `json:"details"`
	IpAddress pgtype.Text        `json:"ip_address"`
	UserAgent pgtype.Text        `json:"user_agent"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

// ToModel converts a row into the public user view, dropping credentials
// and lockout bookkeeping.
func (u User) ToModel() *models.User {
	out := &models.User{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Role:             rbac.Role(u.Role),
		Status:           models.Status(u.Status),
		Organization:     u.Organization.String,
		Position:         u.Position.String,
		Phone:            u.Phone.String,
		LicenseNumber:    u.LicenseNumber.String,
		FacilitiesAccess: u.FacilitiesAccess,
		CreatedAt:        u.CreatedAt.Time,
	}
	if u.LastLogin.Valid {
		t := u.LastLogin.Time
		out.LastLogin = &t
	}
	return out
}

// Text maps "" to NULL.
func Text(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// OptionalText maps nil to NULL, for partial updates.
func OptionalText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// Int8 maps 0 to NULL.
func Int8(n int64) pgtype.Int8 {
	return pgtype.Int8{Int64: n, Valid: n != 0}
}

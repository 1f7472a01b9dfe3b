package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, role, status,
    organization, position, phone, license_number, facilities_access,
    failed_login_attempts, locked_until, last_login, password_changed_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.Email,
		&i.PasswordHash,
		&i.FirstName,
		&i.LastName,
		&i.Role,
		&i.Status,
		&i.Organization,
		&i.Position,
		&i.Phone,
		&i.LicenseNumber,
		&i.FacilitiesAccess,
		&i.FailedLoginAttempts,
		&i.LockedUntil,
		&i.LastLogin,
		&i.PasswordChangedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const getUserByUsername = `-- name: GetUserByUsername :one
SELECT ` + userColumns + ` FROM users WHERE username = $1`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByUsername, username))
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByEmail, email))
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (
    username, email, password_hash, first_name, last_name, role, status,
    organization, position, phone, license_number, facilities_access
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + userColumns

type CreateUserParams struct {
	Username         string      `json:"username"`
	Email            string      `json:"email"`
	PasswordHash     string      `json:"password_hash"`
	FirstName        string      `json:"first_name"`
	LastName         string      `json:"last_name"`
	Role             string      `json:"role"`
	Status           string      `json:"status"`
	Organization     pgtype.Text `json:"organization"`
	Position         pgtype.Text `json:"position"`
	Phone            pgtype.Text `json:"phone"`
	LicenseNumber    pgtype.Text `json:"license_number"`
	FacilitiesAccess []string    `json:"facilities_access"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, createUser,
		arg.Username,
		arg.Email,
		arg.PasswordHash,
		arg.FirstName,
		arg.LastName,
		arg.Role,
		arg.Status,
		arg.Organization,
		arg.Position,
		arg.Phone,
		arg.LicenseNumber,
		arg.FacilitiesAccess,
	))
}

const listUsers = `-- name: ListUsers :many
SELECT ` + userColumns + ` FROM users
WHERE ($1::text IS NULL OR role = $1)
  AND ($2::text IS NULL OR status = $2)
  AND ($3::text IS NULL OR organization = $3)
ORDER BY id
LIMIT $4 OFFSET $5`

type ListUsersParams struct {
	Role         pgtype.Text `json:"role"`
	Status       pgtype.Text `json:"status"`
	Organization pgtype.Text `json:"organization"`
	Limit        int64       `json:"limit"`
	Offset       int64       `json:"offset"`
}

func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers,
		arg.Role,
		arg.Status,
		arg.Organization,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []User{}
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countUsersByRole = `-- name: CountUsersByRole :one
SELECT count(*) FROM users WHERE role = $1`

func (q *Queries) CountUsersByRole(ctx context.Context, role string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countUsersByRole, role).Scan(&count)
	return count, err
}

const updateUser = `-- name: UpdateUser :one
UPDATE users SET
    email             = COALESCE($2, email),
    first_name        = COALESCE($3, first_name),
    last_name         = COALESCE($4, last_name),
    organization      = COALESCE($5, organization),
    position          = COALESCE($6, position),
    phone             = COALESCE($7, phone),
    license_number    = COALESCE($8, license_number),
    role              = COALESCE($9, role),
    status            = COALESCE($10, status),
    facilities_access = CASE WHEN $11::bool THEN $12::text[] ELSE facilities_access END,
    updated_at        = now()
WHERE id = $1
RETURNING ` + userColumns

// UpdateUserParams leaves NULL fields unchanged. FacilitiesAccess is only
// written when SetFacilities is true, so it can be cleared back to NULL.
type UpdateUserParams struct {
	ID               int64       `json:"id"`
	Email            pgtype.Text `json:"email"`
	FirstName        pgtype.Text `json:"first_name"`
	LastName         pgtype.Text `json:"last_name"`
	Organization     pgtype.Text `json:"organization"`
	Position         pgtype.Text `json:"position"`
	Phone            pgtype.Text `json:"phone"`
	LicenseNumber    pgtype.Text `json:"license_number"`
	Role             pgtype.Text `json:"role"`
	Status           pgtype.Text `json:"status"`
	SetFacilities    bool        `json:"set_facilities"`
	FacilitiesAccess []string    `json:"facilities_access"`
}

func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, updateUser,
		arg.ID,
		arg.Email,
		arg.FirstName,
		arg.LastName,
		arg.Organization,
		arg.Position,
		arg.Phone,
		arg.LicenseNumber,
		arg.Role,
		arg.Status,
		arg.SetFacilities,
		arg.FacilitiesAccess,
	))
}

const updateUserStatus = `-- name: UpdateUserStatus :exec
UPDATE users SET status = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateUserStatus(ctx context.Context, id int64, status string) error {
	_, err := q.db.Exec(ctx, updateUserStatus, id, status)
	return err
}

const updatePassword = `-- name: UpdatePassword :exec
UPDATE users SET
    password_hash = $2,
    password_changed_at = now(),
    failed_login_attempts = 0,
    locked_until = NULL,
    updated_at = now()
WHERE id = $1`

func (q *Queries) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := q.db.Exec(ctx, updatePassword, id, passwordHash)
	return err
}

const recordLoginSuccess = `-- name: RecordLoginSuccess :exec
UPDATE users SET last_login = now(), failed_login_attempts = 0, locked_until = NULL WHERE id = $1`

func (q *Queries) RecordLoginSuccess(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, recordLoginSuccess, id)
	return err
}

const recordLoginFailure = `-- name: RecordLoginFailure :one
UPDATE users SET
    failed_login_attempts = failed_login_attempts + 1,
    locked_until = CASE
        WHEN failed_login_attempts + 1 >= $2::int THEN now() + make_interval(secs => $3::float8)
        ELSE locked_until
    END
WHERE id = $1
RETURNING failed_login_attempts, locked_until`

type RecordLoginFailureParams struct {
	ID          int64         `json:"id"`
	MaxAttempts int32         `json:"max_attempts"`
	Lockout     time.Duration `json:"lockout"`
}

type RecordLoginFailureRow struct {
	FailedLoginAttempts int32              `json:"failed_login_attempts"`
	LockedUntil         pgtype.Timestamptz `json:"locked_until"`
}

func (q *Queries) RecordLoginFailure(ctx context.Context, arg RecordLoginFailureParams) (RecordLoginFailureRow, error) {
	var i RecordLoginFailureRow
	err := q.db.QueryRow(ctx, recordLoginFailure, arg.ID, arg.MaxAttempts, arg.Lockout.Seconds()).
		Scan(&i.FailedLoginAttempts, &i.LockedUntil)
	return i, err
}

// IsNotFound reports whether err is the no-rows result of a :one query.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// UniqueViolation returns the violated constraint name when err is a
// unique constraint failure.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

package models

import (
	"time"

	"github.com/tailingsiq/tailingsiq/internal/rbac"
)

// Status is the account lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPending:
		return true
	}
	return false
}

// User is the public view of an account, as returned by /auth/me and the admin API.
// FacilitiesAccess is nil when the user is not restricted to specific facilities.
type User struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Role             rbac.Role  `json:"role"`
	Status           Status     `json:"status"`
	Organization     string     `json:"organization,omitempty"`
	Position         string     `json:"position,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	LicenseNumber    string     `json:"license_number,omitempty"`
	FacilitiesAccess []string   `json:"facilities_access"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Principal projects the user onto the fields authorization depends on.
// A nil user maps to the empty principal.
func (u *User) Principal() rbac.Principal {
	if u == nil {
		return rbac.Principal{}
	}
	var facilities []string
	if u.FacilitiesAccess != nil {
		facilities = append([]string{}, u.FacilitiesAccess...)
	}
	return rbac.Principal{Role: u.Role, Facilities: facilities}
}

// Clone returns a deep copy so snapshots can be handed out without sharing slices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.FacilitiesAccess != nil {
		c.FacilitiesAccess = append([]string{}, u.FacilitiesAccess...)
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// ProfileUpdate carries the fields a user may change about themselves.
// Nil fields are left untouched.
type ProfileUpdate struct {
	Email         *string `json:"email,omitempty"`
	FirstName     *string `json:"first_name,omitempty"`
	LastName      *string `json:"last_name,omitempty"`
	Organization  *string `json:"organization,omitempty"`
	Position      *string `json:"position,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	LicenseNumber *string `json:"license_number,omitempty"`
}

// UserCreate is the admin payload for a new account.
type UserCreate struct {
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Password         string    `json:"password"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Role             rbac.Role `json:"role"`
	Organization     string    `json:"organization,omitempty"`
	Position         string    `json:"position,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	LicenseNumber    string    `json:"license_number,omitempty"`
	FacilitiesAccess []string  `json:"facilities_access,omitempty"`
}

// UserUpdate is the admin payload for changing an account. Nil fields are left untouched.
type UserUpdate struct {
	ProfileUpdate
	Role             *rbac.Role `json:"role,omitempty"`
	Status           *Status    `json:"status,omitempty"`
	FacilitiesAccess *[]string  `json:"facilities_access,omitempty"`
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Role         rbac.Role
	Status       Status
	Organization string
	Limit        int
	Offset       int
}

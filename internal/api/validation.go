package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

var errInvalidEmail = errors.New("invalid email address")

func decodeEmail(r *http.Request, dst *passwordResetRequest) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	if !looksLikeEmail(string(dst.Email)) {
		return errInvalidEmail
	}
	return nil
}

func looksLikeEmail(s string) bool {
	at := strings.Index(s, "@")
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\r\n")
}

// validEmail runs s through the OpenAPI email type so profile and admin
// payloads follow the same rules as password reset requests.
func validEmail(s string) bool {
	raw, err := json.Marshal(s)
	if err != nil {
		return false
	}
	var e openapi_types.Email
	if err := json.Unmarshal(raw, &e); err != nil {
		return false
	}
	return looksLikeEmail(s)
}

func validateProfile(p models.ProfileUpdate) []ErrorDetail {
	var details []ErrorDetail
	if p.Email != nil && !validEmail(*p.Email) {
		details = append(details, ErrorDetail{Field: "email", Message: "must be a valid email address"})
	}
	if p.FirstName != nil && strings.TrimSpace(*p.FirstName) == "" {
		details = append(details, ErrorDetail{Field: "first_name", Message: "cannot be empty"})
	}
	if p.LastName != nil && strings.TrimSpace(*p.LastName) == "" {
		details = append(details, ErrorDetail{Field: "last_name", Message: "cannot be empty"})
	}
	return details
}

func profileParams(id int64, p models.ProfileUpdate) store.UpdateUserParams {
	var email *string
	if p.Email != nil {
		lower := strings.ToLower(strings.TrimSpace(*p.Email))
		email = &lower
	}
	return store.UpdateUserParams{
		ID:            id,
		Email:         store.OptionalText(email),
		FirstName:     store.OptionalText(p.FirstName),
		LastName:      store.OptionalText(p.LastName),
		Organization:  store.OptionalText(p.Organization),
		Position:      store.OptionalText(p.Position),
		Phone:         store.OptionalText(p.Phone),
		LicenseNumber: store.OptionalText(p.LicenseNumber),
	}
}

// profileFields names the fields present in p, for the audit trail.
func profileFields(p models.ProfileUpdate) []string {
	var out []string
	add := func(name string, v *string) {
		if v != nil {
			out = append(out, name)
		}
	}
	add("email", p.Email)
	add("first_name", p.FirstName)
	add("last_name", p.LastName)
	add("organization", p.Organization)
	add("position", p.Position)
	add("phone", p.Phone)
	add("license_number", p.LicenseNumber)
	return out
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

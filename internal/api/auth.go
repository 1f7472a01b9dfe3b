package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/middleware"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        *models.User `json:"user"`
}

type permissionSetResponse struct {
	Role            rbac.Role         `json:"role"`
	RoleDisplayName string            `json:"role_display_name"`
	Level           int               `json:"level"`
	Permissions     []rbac.Permission `json:"permissions"`
	AssignableRoles []rbac.RoleOption `json:"assignable_roles"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type passwordResetRequest struct {
	Email openapi_types.Email `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

const msgIncorrectCredentials = "Incorrect username or password"

func requestMeta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		IPAddress: middleware.GetClientIP(r.Context()),
		UserAgent: r.UserAgent(),
	}
}

func newTokenResponse(sess *auth.Session) tokenResponse {
	return tokenResponse{
		AccessToken: sess.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(time.Until(sess.Claims.ExpiresAt).Seconds()),
		User:        sess.User.ToModel(),
	}
}

func (s *Server) LoginUser(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, ValidationErr("Username and password are required", nil))
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Username, req.Password, requestMeta(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) ||
			errors.Is(err, auth.ErrAccountLocked) ||
			errors.Is(err, auth.ErrAccountInactive) {
			writeError(w, http.StatusUnauthorized, Unauthorized(msgIncorrectCredentials))
			return
		}
		logger.Error("Login failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(sess))
}

func (s *Server) LogoutUser(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	if err := s.auth.Logout(r.Context(), user.Claims, requestMeta(r)); err != nil {
		logger.Error("Failed to revoke token", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	writeMessage(w, "Successfully logged out")
}

func (s *Server) RefreshToken(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	sess, err := s.auth.Refresh(r.Context(), user.Claims, requestMeta(r))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) || errors.Is(err, auth.ErrAccountInactive) {
			writeError(w, http.StatusUnauthorized, Unauthorized("Could not validate credentials"))
			return
		}
		logger.Error("Failed to refresh token", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	writeJSON(w, http.StatusOK, newTokenResponse(sess))
}

func (s *Server) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, user.User)
}

func (s *Server) GetCurrentPermissions(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	e := user.Evaluator()
	perms := e.GrantedPermissions()
	if perms == nil {
		perms = []rbac.Permission{}
	}
	writeJSON(w, http.StatusOK, permissionSetResponse{
		Role:            e.Role(),
		RoleDisplayName: e.RoleDisplayName(),
		Level:           e.Level(),
		Permissions:     perms,
		AssignableRoles: e.AvailableRoles(),
	})
}

// UpdateProfile lets users edit their own contact details. Role, status
// and facility access are admin-only and are not part of the body.
func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	var req models.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	if details := validateProfile(req); len(details) > 0 {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid profile", details))
		return
	}

	updated, err := s.users.UpdateUser(r.Context(), profileParams(user.User.ID, req))
	if err != nil {
		if _, dup := store.UniqueViolation(err); dup {
			writeError(w, http.StatusConflict, ConflictErr("Email already registered"))
			return
		}
		logger.Error("Failed to update profile", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	s.auth.Audit(r.Context(), user.User.ID, "profile_updated", map[string]any{"fields": profileFields(req)}, requestMeta(r))
	writeJSON(w, http.StatusOK, updated.ToModel())
}

func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, ValidationErr("Current and new password are required", nil))
		return
	}
	if req.CurrentPassword == req.NewPassword {
		writeError(w, http.StatusBadRequest, ValidationErr("New password must differ from the current password", nil))
		return
	}

	err := s.auth.ChangePassword(r.Context(), user.User.ID, req.CurrentPassword, req.NewPassword, requestMeta(r))
	switch {
	case err == nil:
		writeMessage(w, "Password updated successfully")
	case errors.Is(err, auth.ErrCurrentPasswordIncorrect):
		writeError(w, http.StatusBadRequest, ValidationErr("Current password is incorrect", nil))
	case errors.Is(err, models.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, ValidationErr(err.Error(), []ErrorDetail{{Field: "new_password", Message: err.Error()}}))
	default:
		logger.Error("Failed to change password", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
	}
}

func (s *Server) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	var req passwordResetRequest
	if err := decodeEmail(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("A valid email address is required", []ErrorDetail{{Field: "email", Message: err.Error()}}))
		return
	}

	if err := s.auth.RequestPasswordReset(r.Context(), strings.ToLower(string(req.Email)), requestMeta(r)); err != nil {
		logger.Error("Failed to process password reset request", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	writeMessage(w, "If the email exists, a password reset link has been sent")
}

func (s *Server) ResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, ValidationErr("Token and new password are required", nil))
		return
	}

	err := s.auth.ResetPassword(r.Context(), req.Token, req.NewPassword, requestMeta(r))
	switch {
	case err == nil:
		writeMessage(w, "Password has been reset successfully")
	case errors.Is(err, auth.ErrResetTokenInvalid):
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid or expired reset token", nil))
	case errors.Is(err, models.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, ValidationErr(err.Error(), []ErrorDetail{{Field: "new_password", Message: err.Error()}}))
	default:
		logger.Error("Failed to reset password", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
	}
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/middleware"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

// Audit actions for user administration
const (
	actionUserCreated = "user_created"
	actionUserUpdated = "user_updated"
	actionUserDeleted = "user_deleted"
)

type temporaryPasswordResponse struct {
	TemporaryPassword string `json:"temporary_password"`
}

// requirePermission resolves the caller and checks perm, answering 401/403
// itself when the check fails.
func requirePermission(w http.ResponseWriter, r *http.Request, perm rbac.Permission) (*auth.AuthenticatedUser, bool) {
	user, ok := auth.GetAuthenticatedUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, Unauthorized("Authentication required"))
		return nil, false
	}
	if !user.Evaluator().HasPermission(perm) {
		middleware.GetLoggerFromContext(r.Context()).Warn("Permission denied", "permission", perm, "role", user.User.Role)
		writeError(w, http.StatusForbidden, PermissionDenied("Insufficient permissions"))
		return nil, false
	}
	return user, true
}

// canModify reports whether actor may change target. Only super admins
// may touch super admin accounts.
func canModify(actor *auth.AuthenticatedUser, target store.User) bool {
	if rbac.Role(target.Role) != rbac.RoleSuperAdmin {
		return true
	}
	return actor.User.Role == rbac.RoleSuperAdmin
}

func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	if _, ok := requirePermission(w, r, rbac.CanAccessAdminPanel); !ok {
		return
	}

	q := r.URL.Query()
	role := q.Get("role")
	if role != "" && !rbac.IsValidRole(rbac.Role(role)) {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid role", []ErrorDetail{{Field: "role", Message: "unknown role " + role}}))
		return
	}
	status := q.Get("status")
	if status != "" && !models.Status(status).Valid() {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid status", []ErrorDetail{{Field: "status", Message: "unknown status " + status}}))
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid pagination parameters", nil))
		return
	}

	rows, err := s.users.ListUsers(r.Context(), store.ListUsersParams{
		Role:         store.Text(role),
		Status:       store.Text(status),
		Organization: store.Text(q.Get("organization")),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		logger.Error("Failed to list users", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	out := make([]*models.User, 0, len(rows))
	for _, u := range rows {
		out = append(out, u.ToModel())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	actor, ok := requirePermission(w, r, rbac.CanManageUsers)
	if !ok {
		return
	}

	var req models.UserCreate
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if details := validateUserCreate(req); len(details) > 0 {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid user", details))
		return
	}
	if !actor.Evaluator().CanAssignRole(req.Role) {
		writeError(w, http.StatusForbidden, PermissionDenied("Cannot create user with role higher than your own"))
		return
	}
	if err := models.DefaultPasswordPolicy.Validate(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, ValidationErr(err.Error(), []ErrorDetail{{Field: "password", Message: err.Error()}}))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Error("Failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	created, err := s.users.CreateUser(r.Context(), store.CreateUserParams{
		Username:         req.Username,
		Email:            req.Email,
		PasswordHash:     hash,
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Role:             string(req.Role),
		Status:           string(models.StatusActive),
		Organization:     store.Text(req.Organization),
		Position:         store.Text(req.Position),
		Phone:            store.Text(req.Phone),
		LicenseNumber:    store.Text(req.LicenseNumber),
		FacilitiesAccess: req.FacilitiesAccess,
	})
	if err != nil {
		if constraint, dup := store.UniqueViolation(err); dup {
			writeError(w, http.StatusConflict, ConflictErr(duplicateMessage(constraint)))
			return
		}
		logger.Error("Failed to create user", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	s.auth.Audit(r.Context(), actor.User.ID, actionUserCreated, map[string]any{
		"target_user_id": created.ID,
		"username":       created.Username,
		"role":           created.Role,
	}, requestMeta(r))
	s.auth.WelcomeUser(r.Context(), created)
	logger.Info("User created", "target_user_id", created.ID, "role", created.Role)

	writeJSON(w, http.StatusCreated, created.ToModel())
}

func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	if _, ok := requirePermission(w, r, rbac.CanManageUsers); !ok {
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid user id", nil))
		return
	}

	user, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, NotFound("User"))
			return
		}
		logger.Error("Failed to get user", "target_user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	writeJSON(w, http.StatusOK, user.ToModel())
}

func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	actor, ok := requirePermission(w, r, rbac.CanManageUsers)
	if !ok {
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid user id", nil))
		return
	}

	var req models.UserUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	if details := validateUserUpdate(req); len(details) > 0 {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid user", details))
		return
	}

	target, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, NotFound("User"))
			return
		}
		logger.Error("Failed to get user", "target_user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	if !canModify(actor, target) {
		writeError(w, http.StatusForbidden, PermissionDenied("Cannot modify a super admin account"))
		return
	}
	if req.Role != nil && !actor.Evaluator().CanAssignRole(*req.Role) {
		writeError(w, http.StatusForbidden, PermissionDenied("Cannot assign role higher than your own"))
		return
	}
	if id == actor.User.ID && req.Status != nil && *req.Status != models.StatusActive {
		writeError(w, http.StatusBadRequest, ValidationErr("You cannot deactivate your own account", nil))
		return
	}

	params := profileParams(id, req.ProfileUpdate)
	fields := profileFields(req.ProfileUpdate)
	if req.Role != nil {
		params.Role = store.Text(string(*req.Role))
		fields = append(fields, "role")
	}
	if req.Status != nil {
		params.Status = store.Text(string(*req.Status))
		fields = append(fields, "status")
	}
	if req.FacilitiesAccess != nil {
		params.SetFacilities = true
		params.FacilitiesAccess = *req.FacilitiesAccess
		fields = append(fields, "facilities_access")
	}

	updated, err := s.users.UpdateUser(r.Context(), params)
	if err != nil {
		if constraint, dup := store.UniqueViolation(err); dup {
			writeError(w, http.StatusConflict, ConflictErr(duplicateMessage(constraint)))
			return
		}
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, NotFound("User"))
			return
		}
		logger.Error("Failed to update user", "target_user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	s.auth.Audit(r.Context(), actor.User.ID, actionUserUpdated, map[string]any{
		"target_user_id": id,
		"fields":         fields,
	}, requestMeta(r))

	writeJSON(w, http.StatusOK, updated.ToModel())
}

// DeleteUser deactivates the account. Rows are kept so the audit trail
// still resolves.
func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	actor, ok := requirePermission(w, r, rbac.CanDeleteUsers)
	if !ok {
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid user id", nil))
		return
	}
	if id == actor.User.ID {
		writeError(w, http.StatusBadRequest, ValidationErr("You cannot delete your own account", nil))
		return
	}

	target, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, NotFound("User"))
			return
		}
		logger.Error("Failed to get user", "target_user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}
	if rbac.Role(target.Role) == rbac.RoleSuperAdmin {
		writeError(w, http.StatusForbidden, PermissionDenied("Super admin accounts cannot be deleted"))
		return
	}

	if err := s.users.UpdateUserStatus(r.Context(), id, string(models.StatusInactive)); err != nil {
		logger.Error("Failed to deactivate user", "target_user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	s.auth.Audit(r.Context(), actor.User.ID, actionUserDeleted, map[string]any{
		"target_user_id": id,
		"username":       target.Username,
	}, requestMeta(r))

	writeMessage(w, "User deleted successfully")
}

func (s *Server) AdminResetPassword(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	actor, ok := requirePermission(w, r, rbac.CanManageUsers)
	if !ok {
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, ValidationErr("Invalid user id", nil))
		return
	}

	target, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, NotFound("User"))
			return
		}
		logger.Error("Failed to get user", "target_user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}
	if !canModify(actor, target) {
		writeError(w, http.StatusForbidden, PermissionDenied("Cannot modify a super admin account"))
		return
	}

	temp, err := s.auth.AdminResetPassword(r.Context(), actor.User.ID, id, requestMeta(r))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, NotFound("User"))
			return
		}
		logger.Error("Failed to reset password", "target_user_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, InternalError("An unexpected error occurred."))
		return
	}

	writeJSON(w, http.StatusOK, temporaryPasswordResponse{TemporaryPassword: temp})
}

func validateUserCreate(u models.UserCreate) []ErrorDetail {
	var details []ErrorDetail
	if u.Username == "" {
		details = append(details, ErrorDetail{Field: "username", Message: "is required"})
	}
	if !validEmail(u.Email) {
		details = append(details, ErrorDetail{Field: "email", Message: "must be a valid email address"})
	}
	if strings.TrimSpace(u.FirstName) == "" {
		details = append(details, ErrorDetail{Field: "first_name", Message: "is required"})
	}
	if strings.TrimSpace(u.LastName) == "" {
		details = append(details, ErrorDetail{Field: "last_name", Message: "is required"})
	}
	if !rbac.IsValidRole(u.Role) {
		details = append(details, ErrorDetail{Field: "role", Message: "unknown role"})
	}
	return details
}

func validateUserUpdate(u models.UserUpdate) []ErrorDetail {
	details := validateProfile(u.ProfileUpdate)
	if u.Role != nil && !rbac.IsValidRole(*u.Role) {
		details = append(details, ErrorDetail{Field: "role", Message: "unknown role"})
	}
	if u.Status != nil && !u.Status.Valid() {
		details = append(details, ErrorDetail{Field: "status", Message: "unknown status"})
	}
	return details
}

func duplicateMessage(constraint string) string {
	switch {
	case strings.Contains(constraint, "username"):
		return "Username already registered"
	case strings.Contains(constraint, "email"):
		return "Email already registered"
	default:
		return "Username or email already registered"
	}
}

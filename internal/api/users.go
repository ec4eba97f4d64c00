package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
)

// minPasswordLength applies to accounts created through the API.
const minPasswordLength = 8

type createUserRequest struct {
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Password    string    `json:"password"`
	Role        auth.Role `json:"role"`
}

type updateUserRequest struct {
	DisplayName *string    `json:"display_name,omitempty"`
	Email       *string    `json:"email,omitempty"`
	Role        *auth.Role `json:"role,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type biometricRequest struct {
	// Template is the raw template, base64 (standard alphabet) encoded.
	Template string `json:"template"`
}

// handleListUsers returns all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser creates an account. Only an owner may create another
// owner.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	switch {
	case !auth.IsValidEmail(req.Email):
		writeBadRequest(w, "a valid email is required")
		return
	case req.DisplayName == "":
		writeBadRequest(w, "display_name is required")
		return
	case len(req.Password) < minPasswordLength:
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleUser
	}
	if !auth.IsValidRole(req.Role) {
		writeBadRequest(w, "invalid role: must be user, admin, or owner")
		return
	}

	claims := claimsFromContext(r.Context())
	if req.Role == auth.RoleOwner && claims.Role != auth.RoleOwner {
		writeForbidden(w, "only an owner can create owner accounts")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	user := &auth.User{
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.auditLog(audit.ActionCreate, "user", user.ID, claims.Principal().ID, map[string]any{"role": string(user.Role)})
	writeJSON(w, http.StatusCreated, user)
}

// handleGetUser returns a single user by ID.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser patches display name, email, role or active state.
// Deactivating an account also revokes its refresh token, so the user is
// signed out once the current access token expires.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) { //nolint:gocognit,gocyclo // field patching plus self and owner guards
	id := chi.URLParam(r, "id")
	caller := claimsFromContext(r.Context())
	callerID := caller.Principal().ID

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email != nil && !auth.IsValidEmail(*req.Email) {
		writeBadRequest(w, "invalid email")
		return
	}
	if req.DisplayName != nil && *req.DisplayName == "" {
		writeBadRequest(w, "display_name cannot be empty")
		return
	}
	if req.Role != nil && !auth.IsValidRole(*req.Role) {
		writeBadRequest(w, "invalid role: must be user, admin, or owner")
		return
	}

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	if id == callerID {
		if req.IsActive != nil && !*req.IsActive {
			writeForbidden(w, "cannot deactivate your own account")
			return
		}
		if req.Role != nil && *req.Role != caller.Role {
			writeForbidden(w, "cannot change your own role")
			return
		}
	}
	if caller.Role != auth.RoleOwner {
		if user.Role == auth.RoleOwner {
			writeForbidden(w, "only owners can modify owner accounts")
			return
		}
		if req.Role != nil && *req.Role == auth.RoleOwner {
			writeForbidden(w, "only owners can promote users to owner")
			return
		}
	}

	deactivated := req.IsActive != nil && !*req.IsActive && user.IsActive
	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.users.Update(r.Context(), user); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if deactivated {
		if err := s.auth.Revoke(r.Context(), id); err != nil {
			s.logger.Error("revoke after deactivation failed", "user_id", id, "error", err)
		}
	}

	s.logger.Info("user updated", "user_id", id, "updated_by", callerID)
	s.auditLog(audit.ActionUpdate, "user", id, callerID, map[string]any{
		"role":      string(user.Role),
		"is_active": user.IsActive,
	})
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes an account. The stored refresh hash goes with
// the row, so outstanding refresh tokens stop working at once.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	callerID := claimsFromContext(r.Context()).Principal().ID
	callerRole := claimsFromContext(r.Context()).Role

	if id == callerID {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if user.Role == auth.RoleOwner && callerRole != auth.RoleOwner {
		writeForbidden(w, "only owners can delete owner accounts")
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("user deleted", "user_id", id, "deleted_by", callerID)
	s.auditLog(audit.ActionDelete, "user", id, callerID, map[string]any{"email": user.Email})
	w.WriteHeader(http.StatusNoContent)
}

// handleRevokeUserSessions invalidates a user's refresh token.
func (s *Server) handleRevokeUserSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	callerID := claimsFromContext(r.Context()).Principal().ID

	if _, err := s.users.GetByID(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.auth.Revoke(r.Context(), id); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("user sessions revoked", "user_id", id, "revoked_by", callerID)
	s.auditLog(audit.ActionRevokeSessions, "user", id, callerID, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "sessions_revoked"})
}

// handleChangePassword replaces the caller's password after checking the
// current one, then revokes the caller's refresh token.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeBadRequest(w, "new_password must be at least 8 characters")
		return
	}

	userID := claimsFromContext(r.Context()).Principal().ID
	user, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	// 403 rather than 401 so a client does not take it for an expired token.
	if ok, verr := auth.VerifyPassword(req.CurrentPassword, user.PasswordHash); verr != nil || !ok {
		writeForbidden(w, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.users.UpdatePassword(r.Context(), userID, hash); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := s.auth.Revoke(r.Context(), userID); err != nil {
		s.logger.Error("revoke after password change failed", "user_id", userID, "error", err)
	}

	s.auditLog(audit.ActionPasswordChanged, "user", userID, userID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetBiometric enrols the caller's biometric template. The template
// is sealed before it is stored; if no encryption key is configured the
// write is refused with 503 and nothing is stored.
func (s *Server) handleSetBiometric(w http.ResponseWriter, r *http.Request) {
	var req biometricRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	template, err := base64.StdEncoding.DecodeString(req.Template)
	if err != nil || len(template) == 0 {
		writeBadRequest(w, "template must be non-empty base64")
		return
	}

	userID := claimsFromContext(r.Context()).Principal().ID
	if err := s.users.SetBiometricTemplate(r.Context(), userID, template); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.auditLog(audit.ActionBiometricEnrolled, "user", userID, userID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleClearBiometric removes the caller's template.
func (s *Server) handleClearBiometric(w http.ResponseWriter, r *http.Request) {
	userID := claimsFromContext(r.Context()).Principal().ID
	if err := s.users.SetBiometricTemplate(r.Context(), userID, nil); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package http

import (
	"net/http"

	"github.com/pelorus/orgauth/internal/auth/actor"
	"github.com/pelorus/orgauth/internal/auth/service"
	"github.com/pelorus/orgauth/pkg/httpx"
)

// ChangePasswordHandler serves POST /v1/auth/password/change for the
// authenticated user's own account.
type ChangePasswordHandler struct {
	AuthService *service.AuthService
}

type changePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *ChangePasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "old_password and new_password are required.")
		return
	}

	act := actor.FromContext(r.Context())
	err := h.AuthService.ChangePassword(r.Context(), act.UserID, req.OldPassword, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// ResetPasswordHandler serves POST /v1/auth/password/reset. Admin only: the
// temporary password is returned once, to be handed to the user out of band.
type ResetPasswordHandler struct {
	AuthService *service.AuthService
}

type resetPasswordRequest struct {
	UserID string `json:"user_id"`
}

type resetPasswordResponse struct {
	TempPassword string `json:"temp_password"`
}

func (h *ResetPasswordHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "user_id is required.")
		return
	}

	temp, err := h.AuthService.ResetPassword(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resetPasswordResponse{TempPassword: temp})
}

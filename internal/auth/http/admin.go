package http

import (
	"net/http"
	"time"

	"github.com/pelorus/orgauth/internal/auth/actor"
	"github.com/pelorus/orgauth/internal/auth/service"
	"github.com/pelorus/orgauth/pkg/httpx"
)

// LockHandler serves POST /v1/auth/lock. Omitting duration_minutes locks
// the account permanently.
type LockHandler struct {
	AuthService *service.AuthService
}

type lockRequest struct {
	UserID          string `json:"user_id"`
	DurationMinutes *int   `json:"duration_minutes,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type lockResponse struct {
	LockedUntil time.Time `json:"locked_until"`
	Reason      string    `json:"reason,omitempty"`
}

func (h *LockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "user_id is required.")
		return
	}

	var duration *time.Duration
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "duration_minutes must be positive.")
			return
		}
		d := time.Duration(*req.DurationMinutes) * time.Minute
		duration = &d
	}

	res, err := h.AuthService.LockUser(r.Context(), req.UserID, duration, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, lockResponse{LockedUntil: res.LockedUntil, Reason: res.Reason})
}

// UnlockHandler serves POST /v1/auth/unlock.
type UnlockHandler struct {
	AuthService *service.AuthService
}

type unlockRequest struct {
	UserID string `json:"user_id"`
}

func (h *UnlockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "user_id is required.")
		return
	}

	if err := h.AuthService.UnlockUser(r.Context(), req.UserID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "account unlocked"})
}

// AccessCheckHandler serves GET /v1/access/check. It answers whether the
// acting user holds a permission, optionally scoped to an org unit.
type AccessCheckHandler struct {
	Resolver *service.PermissionResolver
}

type accessCheckResponse struct {
	Allowed bool `json:"allowed"`
}

func (h *AccessCheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	permission := r.URL.Query().Get("permission")
	if permission == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "permission query parameter is required.")
		return
	}

	var orgUnitID *string
	if v := r.URL.Query().Get("org_unit_id"); v != "" {
		orgUnitID = &v
	}

	act := actor.FromContext(r.Context())
	allowed, err := h.Resolver.CanAccess(r.Context(), act.UserID, permission, orgUnitID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, accessCheckResponse{Allowed: allowed})
}

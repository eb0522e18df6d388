package http

import (
	"errors"
	"net/http"

	"github.com/pelorus/orgauth/internal/auth/service"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/pkg/cryptox"
	"github.com/pelorus/orgauth/pkg/httpx"
	"github.com/pelorus/orgauth/pkg/slogx"
)

type errorMapping struct {
	status      int
	kind        string
	description string
}

// Fixed per-kind responses. Descriptions never vary with internal state, so
// the payload can't leak which check failed beyond the kind itself.
var errorMappings = []struct {
	err     error
	mapping errorMapping
}{
	{service.ErrInvalidCredentials, errorMapping{http.StatusUnauthorized, "invalid_credentials", "Invalid login or password."}},
	{service.ErrAccountLocked, errorMapping{http.StatusForbidden, "account_locked", "Account is locked."}},
	{service.ErrAccountInactive, errorMapping{http.StatusForbidden, "account_inactive", "Account is inactive."}},
	{service.ErrPasswordChangeRequired, errorMapping{http.StatusForbidden, "password_change_required", "Password must be changed before logging in."}},
	{service.ErrPasswordMismatch, errorMapping{http.StatusBadRequest, "password_mismatch", "Password confirmation does not match."}},
	{service.ErrPasswordReused, errorMapping{http.StatusBadRequest, "password_reused", "Password was used recently."}},
	{service.ErrTokenRevoked, errorMapping{http.StatusUnauthorized, "token_revoked", "Token has been revoked."}},
	{service.ErrInvalidOrExpiredToken, errorMapping{http.StatusUnauthorized, "invalid_or_expired_token", "Token is invalid or expired."}},
	{service.ErrNoActiveTokens, errorMapping{http.StatusBadRequest, "no_active_tokens", "No active sessions."}},
	{store.ErrNotFound, errorMapping{http.StatusNotFound, "not_found", "Resource not found."}},
	{store.ErrAlreadyExists, errorMapping{http.StatusConflict, "conflict", "Resource already exists."}},
	{cryptox.ErrCrypto, errorMapping{http.StatusInternalServerError, "server_error", "An internal error occurred."}},
}

// writeServiceError maps a service failure onto its fixed boundary
// response. Anything unmapped is an unexpected internal error: logged in
// full, reported generically.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			httpx.WriteError(w, m.mapping.status, m.mapping.kind, m.mapping.description)
			return
		}
	}

	slogx.FromContext(r.Context()).Error("unhandled service error", "error", err)
	httpx.WriteError(w, http.StatusInternalServerError, "server_error", "An internal error occurred.")
}

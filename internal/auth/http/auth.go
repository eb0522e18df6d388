package http

import (
	"encoding/json"
	"net/http"

	"github.com/pelorus/orgauth/internal/auth/domain"
	"github.com/pelorus/orgauth/internal/auth/service"
	"github.com/pelorus/orgauth/pkg/httpx"
)

// decodeJSON parses a JSON request body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Request body is not valid JSON.")
		return false
	}
	return true
}

// RegisterHandler serves POST /v1/auth/register.
type RegisterHandler struct {
	AuthService *service.AuthService
}

type registerRequest struct {
	GivenName string  `json:"given_name"`
	Surname   string  `json:"surname"`
	Password  string  `json:"password"`
	OrgUnitID *string `json:"org_unit_id,omitempty"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
	Login  string `json:"login"`
}

func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.GivenName == "" || req.Surname == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "given_name, surname and password are required.")
		return
	}

	res, err := h.AuthService.Register(r.Context(), req.GivenName, req.Surname, req.Password, req.OrgUnitID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, registerResponse{UserID: res.UserID, Login: res.Login})
}

// tokenResponse is the boundary shape of a token pair. ExpiresIn is whole
// seconds, matching what clients expect from an OAuth-style endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func newTokenResponse(pair domain.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	}
}

// LoginHandler serves POST /v1/auth/login.
type LoginHandler struct {
	AuthService *service.AuthService
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Login == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "login and password are required.")
		return
	}

	pair, err := h.AuthService.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(pair))
}

// RefreshHandler serves POST /v1/auth/refresh.
type RefreshHandler struct {
	AuthService *service.AuthService
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required.")
		return
	}

	pair, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newTokenResponse(pair))
}

// LogoutHandler serves POST /v1/auth/logout. Requires authentication; the
// subject is taken from the access token, never from the body.
type LogoutHandler struct {
	AuthService *service.AuthService
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.AuthService.Logout(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

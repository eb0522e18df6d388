package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pelorus/orgauth/internal/auth/domain"
	"github.com/pelorus/orgauth/internal/auth/service"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/internal/auth/store/drivers/sqlite"
	"github.com/pelorus/orgauth/internal/obs"
	"github.com/pelorus/orgauth/pkg/cryptox"
	"github.com/pelorus/orgauth/pkg/idx"
	"github.com/pelorus/orgauth/pkg/jwtx"
	"github.com/pelorus/orgauth/pkg/slogx"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "orgauth-http-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

type testServer struct {
	srv      *httptest.Server
	store    store.Store
	auth     *service.AuthService
	resolver *service.PermissionResolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	keyring, err := cryptox.NewKeyring(map[int][]byte{1: []byte("http-test-secret")}, 1)
	require.NoError(t, err)

	pemKey, err := jwtx.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA(pemKey)
	require.NoError(t, err)
	verifier := jwtx.NewVerifierEdDSA(signer.PublicKey(), "orgauth-test")

	metrics := obs.NewMetrics()
	audit := &service.AuditRecorder{Metrics: metrics}
	tokens := &service.TokenService{
		Store:      st,
		Signer:     signer,
		Verifier:   verifier,
		Audit:      audit,
		Metrics:    metrics,
		Issuer:     "orgauth-test",
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
	}
	auth := &service.AuthService{
		Store:       st,
		Keyring:     keyring,
		Credentials: service.NewCredentialVerifier(metrics),
		Tokens:      tokens,
		Audit:       audit,
		Metrics:     metrics,
		EmailDomain: "corp.test",
	}
	resolver := service.NewPermissionResolver(st, metrics)

	router := NewRouter(verifier, "test", st, slogx.New(slogx.Config{Level: "error"}))
	router.AuthService = auth
	router.Resolver = resolver
	router.Metrics = metrics
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: st, auth: auth, resolver: resolver}
}

// call sends a request and decodes the JSON response body into a map. The ip
// becomes the X-Forwarded-For header so tests can spread requests across
// rate limit buckets.
func (ts *testServer) call(t *testing.T, method, path, token, ip string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

// seedUser registers directly through the service and clears the initial
// must-change-password gate.
func (ts *testServer) seedUser(t *testing.T, given, surname, password string) (userID, login string) {
	t.Helper()
	ctx := context.Background()

	res, err := ts.auth.Register(ctx, given, surname, "Initial#Pw1234", nil)
	require.NoError(t, err)
	require.NoError(t, ts.auth.ChangePassword(ctx, res.UserID, "Initial#Pw1234", password, password))
	return res.UserID, res.Login
}

// seedManager creates a user holding the users.manage permission.
func (ts *testServer) seedManager(t *testing.T, password string) (userID, login string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	userID, login = ts.seedUser(t, "Morgan", "Manager", password)

	role := domain.Role{ID: idx.New().String(), Name: "user-admin", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, ts.store.Permissions().CreateRole(ctx, role))
	require.NoError(t, ts.store.Permissions().AddRolePermission(ctx, role.ID, PermUsersManage))
	require.NoError(t, ts.store.Permissions().AssignRole(ctx, domain.UserRole{
		UserID: userID, RoleID: role.ID, AssignedBy: userID, CreatedAt: now,
	}))
	return userID, login
}

// login performs an HTTP login and returns the token pair fields.
func (ts *testServer) login(t *testing.T, login, password, ip string) (access, refresh string) {
	t.Helper()

	code, body := ts.call(t, http.MethodPost, "/v1/auth/login", "", ip,
		map[string]string{"login": login, "password": password})
	require.Equal(t, http.StatusOK, code, "login body: %v", body)
	require.Equal(t, "Bearer", body["token_type"])
	return body["access_token"].(string), body["refresh_token"].(string)
}

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t)

	t.Run("creates user and derives login", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/register", "", "198.51.100.1",
			map[string]string{"given_name": "Ada", "surname": "Lovelace", "password": "Str0ng#Password1"})
		require.Equal(t, http.StatusCreated, code)
		require.Equal(t, "alovelace", body["login"])
		require.NotEmpty(t, body["user_id"])
	})

	t.Run("missing fields", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/register", "", "198.51.100.2",
			map[string]string{"given_name": "Ada"})
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "invalid_request", body["error"])
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/register", "", "198.51.100.3",
			map[string]string{"given_name": "Ada", "surname": "Lovelace", "password": "Str0ng#Password1", "role": "admin"})
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "invalid_request", body["error"])
	})
}

func TestLoginEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_, login := ts.seedUser(t, "John", "Smith", "Correct#Horse1!")

	t.Run("success returns token pair", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/login", "", "198.51.100.10",
			map[string]string{"login": login, "password": "Correct#Horse1!"})
		require.Equal(t, http.StatusOK, code)
		require.NotEmpty(t, body["access_token"])
		require.NotEmpty(t, body["refresh_token"])
		require.Equal(t, "Bearer", body["token_type"])
		require.InDelta(t, jwtx.DefaultAccessTokenTTL.Seconds(), body["expires_in"], 1)
	})

	t.Run("wrong password", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/login", "", "198.51.100.11",
			map[string]string{"login": login, "password": "Wrong#Horse1!"})
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, "invalid_credentials", body["error"])
	})

	t.Run("unknown login gets the same error", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/login", "", "198.51.100.12",
			map[string]string{"login": "ghost", "password": "Wrong#Horse1!"})
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, "invalid_credentials", body["error"])
	})

	t.Run("lockout after repeated failures", func(t *testing.T) {
		_, victim := ts.seedUser(t, "Locked", "Out", "Correct#Horse1!")

		for i := 0; i < 4; i++ {
			code, _ := ts.call(t, http.MethodPost, "/v1/auth/login", "", fmt.Sprintf("203.0.113.%d", i+1),
				map[string]string{"login": victim, "password": "Wrong#Horse1!"})
			require.Equal(t, http.StatusUnauthorized, code)
		}

		code, body := ts.call(t, http.MethodPost, "/v1/auth/login", "", "203.0.113.5",
			map[string]string{"login": victim, "password": "Wrong#Horse1!"})
		require.Equal(t, http.StatusForbidden, code)
		require.Equal(t, "account_locked", body["error"])

		// Correct password while locked is still refused.
		code, body = ts.call(t, http.MethodPost, "/v1/auth/login", "", "203.0.113.6",
			map[string]string{"login": victim, "password": "Correct#Horse1!"})
		require.Equal(t, http.StatusForbidden, code)
		require.Equal(t, "account_locked", body["error"])
	})
}

func TestAuthnGate(t *testing.T) {
	ts := newTestServer(t)
	_, login := ts.seedUser(t, "Gate", "Keeper", "Correct#Horse1!")

	t.Run("missing token", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/logout", "", "198.51.100.20", nil)
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, "invalid_or_expired_token", body["error"])
	})

	t.Run("garbage token", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/logout", "not-a-jwt", "198.51.100.21", nil)
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, "invalid_or_expired_token", body["error"])
	})

	t.Run("refresh token rejected as access token", func(t *testing.T) {
		_, refresh := ts.login(t, login, "Correct#Horse1!", "198.51.100.22")
		code, body := ts.call(t, http.MethodGet, "/v1/access/check?permission=docs.read", refresh, "198.51.100.22", nil)
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, "invalid_or_expired_token", body["error"])
	})
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	userID, login := ts.seedUser(t, "Sess", "Holder", "Correct#Horse1!")

	ctx := context.Background()
	now := time.Now().UTC()
	role := domain.Role{ID: idx.New().String(), Name: "reader", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, ts.store.Permissions().CreateRole(ctx, role))
	require.NoError(t, ts.store.Permissions().AddRolePermission(ctx, role.ID, "docs.read"))
	require.NoError(t, ts.store.Permissions().AssignRole(ctx, domain.UserRole{
		UserID: userID, RoleID: role.ID, AssignedBy: userID, CreatedAt: now,
	}))

	access, refresh := ts.login(t, login, "Correct#Horse1!", "198.51.100.30")

	t.Run("access check reflects role grants", func(t *testing.T) {
		code, body := ts.call(t, http.MethodGet, "/v1/access/check?permission=docs.read", access, "198.51.100.30", nil)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, true, body["allowed"])

		code, body = ts.call(t, http.MethodGet, "/v1/access/check?permission=docs.write", access, "198.51.100.30", nil)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, false, body["allowed"])
	})

	t.Run("refresh rotates the pair", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/refresh", "", "198.51.100.31",
			map[string]string{"refresh_token": refresh})
		require.Equal(t, http.StatusOK, code)
		require.NotEqual(t, refresh, body["refresh_token"])

		// The superseded token is now a replay.
		code, replay := ts.call(t, http.MethodPost, "/v1/auth/refresh", "", "198.51.100.32",
			map[string]string{"refresh_token": refresh})
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, "token_revoked", replay["error"])

		refresh = body["refresh_token"].(string)
	})

	t.Run("logout revokes outstanding sessions", func(t *testing.T) {
		code, _ := ts.call(t, http.MethodPost, "/v1/auth/logout", access, "198.51.100.33", nil)
		require.Equal(t, http.StatusOK, code)

		code, body := ts.call(t, http.MethodPost, "/v1/auth/refresh", "", "198.51.100.34",
			map[string]string{"refresh_token": refresh})
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, "token_revoked", body["error"])
	})
}

func TestPasswordEndpoints(t *testing.T) {
	ts := newTestServer(t)

	t.Run("change own password", func(t *testing.T) {
		_, login := ts.seedUser(t, "Pass", "Changer", "Old#Password12")
		access, _ := ts.login(t, login, "Old#Password12", "198.51.100.40")

		code, _ := ts.call(t, http.MethodPost, "/v1/auth/password/change", access, "198.51.100.40",
			map[string]string{
				"old_password":     "Old#Password12",
				"new_password":     "New#Password34",
				"confirm_password": "New#Password34",
			})
		require.Equal(t, http.StatusOK, code)

		ts.login(t, login, "New#Password34", "198.51.100.41")

		code, body := ts.call(t, http.MethodPost, "/v1/auth/login", "", "198.51.100.42",
			map[string]string{"login": login, "password": "Old#Password12"})
		require.Equal(t, http.StatusUnauthorized, code)
		require.Equal(t, "invalid_credentials", body["error"])
	})

	t.Run("confirmation mismatch", func(t *testing.T) {
		_, login := ts.seedUser(t, "Mis", "Match", "Old#Password12")
		access, _ := ts.login(t, login, "Old#Password12", "198.51.100.43")

		code, body := ts.call(t, http.MethodPost, "/v1/auth/password/change", access, "198.51.100.43",
			map[string]string{
				"old_password":     "Old#Password12",
				"new_password":     "New#Password34",
				"confirm_password": "Different#Pw56",
			})
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "password_mismatch", body["error"])
	})

	t.Run("admin reset issues temporary password", func(t *testing.T) {
		_, adminLogin := ts.seedManager(t, "Admin#Password1")
		adminAccess, _ := ts.login(t, adminLogin, "Admin#Password1", "198.51.100.44")
		targetID, targetLogin := ts.seedUser(t, "Reset", "Target", "Old#Password12")

		code, body := ts.call(t, http.MethodPost, "/v1/auth/password/reset", adminAccess, "198.51.100.44",
			map[string]string{"user_id": targetID})
		require.Equal(t, http.StatusOK, code)
		temp := body["temp_password"].(string)
		require.GreaterOrEqual(t, len(temp), 12)

		// The temporary password authenticates but forces a change.
		code, body = ts.call(t, http.MethodPost, "/v1/auth/login", "", "198.51.100.45",
			map[string]string{"login": targetLogin, "password": temp})
		require.Equal(t, http.StatusForbidden, code)
		require.Equal(t, "password_change_required", body["error"])
	})

	t.Run("reset requires users.manage", func(t *testing.T) {
		_, login := ts.seedUser(t, "Plain", "User", "Correct#Horse1!")
		access, _ := ts.login(t, login, "Correct#Horse1!", "198.51.100.46")

		code, body := ts.call(t, http.MethodPost, "/v1/auth/password/reset", access, "198.51.100.46",
			map[string]string{"user_id": "someone"})
		require.Equal(t, http.StatusForbidden, code)
		require.Equal(t, "forbidden", body["error"])
	})
}

func TestAdminLockUnlock(t *testing.T) {
	ts := newTestServer(t)
	_, adminLogin := ts.seedManager(t, "Admin#Password1")
	adminAccess, _ := ts.login(t, adminLogin, "Admin#Password1", "198.51.100.50")
	targetID, targetLogin := ts.seedUser(t, "Lock", "Target", "Correct#Horse1!")

	t.Run("timed lock blocks login", func(t *testing.T) {
		minutes := 30
		code, body := ts.call(t, http.MethodPost, "/v1/auth/lock", adminAccess, "198.51.100.50",
			map[string]any{"user_id": targetID, "duration_minutes": minutes, "reason": "suspicious activity"})
		require.Equal(t, http.StatusOK, code)
		require.NotEmpty(t, body["locked_until"])
		require.Equal(t, "suspicious activity", body["reason"])

		code, body = ts.call(t, http.MethodPost, "/v1/auth/login", "", "198.51.100.51",
			map[string]string{"login": targetLogin, "password": "Correct#Horse1!"})
		require.Equal(t, http.StatusForbidden, code)
		require.Equal(t, "account_locked", body["error"])
	})

	t.Run("unlock restores access", func(t *testing.T) {
		code, _ := ts.call(t, http.MethodPost, "/v1/auth/unlock", adminAccess, "198.51.100.52",
			map[string]string{"user_id": targetID})
		require.Equal(t, http.StatusOK, code)

		ts.login(t, targetLogin, "Correct#Horse1!", "198.51.100.53")
	})

	t.Run("zero duration rejected", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/lock", adminAccess, "198.51.100.54",
			map[string]any{"user_id": targetID, "duration_minutes": 0})
		require.Equal(t, http.StatusBadRequest, code)
		require.Equal(t, "invalid_request", body["error"])
	})

	t.Run("unknown user", func(t *testing.T) {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/lock", adminAccess, "198.51.100.55",
			map[string]any{"user_id": "no-such-user", "duration_minutes": 5})
		require.Equal(t, http.StatusNotFound, code)
		require.Equal(t, "not_found", body["error"])
	})

	t.Run("lock requires users.manage", func(t *testing.T) {
		_, plainLogin := ts.seedUser(t, "No", "Perms", "Correct#Horse1!")
		plainAccess, _ := ts.login(t, plainLogin, "Correct#Horse1!", "198.51.100.56")

		code, body := ts.call(t, http.MethodPost, "/v1/auth/lock", plainAccess, "198.51.100.56",
			map[string]any{"user_id": targetID, "duration_minutes": 5})
		require.Equal(t, http.StatusForbidden, code)
		require.Equal(t, "forbidden", body["error"])
	})
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)

	t.Run("livez", func(t *testing.T) {
		code, body := ts.call(t, http.MethodGet, "/livez", "", "198.51.100.60", nil)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "ok", body["status"])
		require.Equal(t, "test", body["version"])
	})

	t.Run("readyz checks the database", func(t *testing.T) {
		code, body := ts.call(t, http.MethodGet, "/readyz", "", "198.51.100.61", nil)
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "ok", body["status"])
		checks := body["checks"].(map[string]any)
		require.Equal(t, "ok", checks["database"])
	})

	t.Run("metrics exposition", func(t *testing.T) {
		resp, err := ts.srv.Client().Get(ts.srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(raw), "orgauth_account_lockouts_total")
	})
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t)

	// An unknown login never trips the account lockout, so every response
	// below the limit is a plain 401.
	var limited bool
	for i := 0; i < 10; i++ {
		code, body := ts.call(t, http.MethodPost, "/v1/auth/login", "", "192.0.2.200",
			map[string]string{"login": "nobody", "password": "Wrong#Horse1!"})
		if code == http.StatusTooManyRequests {
			require.Equal(t, "rate_limit_exceeded", body["error"])
			limited = true
			break
		}
		require.Equal(t, http.StatusUnauthorized, code)
	}
	require.True(t, limited, "expected the strict limit to trip within ten attempts")
}

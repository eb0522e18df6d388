package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pelorus/orgauth/internal/auth/actor"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/internal/auth/store/drivers/sqlite"
	"github.com/pelorus/orgauth/internal/obs"
	"github.com/pelorus/orgauth/pkg/cryptox"
	"github.com/pelorus/orgauth/pkg/jwtx"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "orgauth-service-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

type testEnv struct {
	store    store.Store
	keyring  *cryptox.Keyring
	metrics  *obs.Metrics
	audit    *AuditRecorder
	creds    *CredentialVerifier
	tokens   *TokenService
	auth     *AuthService
	resolver *PermissionResolver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	keyring, err := cryptox.NewKeyring(map[int][]byte{1: []byte("service-test-secret")}, 1)
	require.NoError(t, err)

	pemKey, err := jwtx.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA(pemKey)
	require.NoError(t, err)
	verifier := jwtx.NewVerifierEdDSA(signer.PublicKey(), "orgauth-test")

	metrics := obs.NewMetrics()
	audit := &AuditRecorder{Metrics: metrics}
	creds := NewCredentialVerifier(metrics)
	tokens := &TokenService{
		Store:      st,
		Signer:     signer,
		Verifier:   verifier,
		Audit:      audit,
		Metrics:    metrics,
		Issuer:     "orgauth-test",
		AccessTTL:  jwtx.DefaultAccessTokenTTL,
		RefreshTTL: jwtx.DefaultRefreshTokenTTL,
	}
	auth := &AuthService{
		Store:       st,
		Keyring:     keyring,
		Credentials: creds,
		Tokens:      tokens,
		Audit:       audit,
		Metrics:     metrics,
		EmailDomain: "corp.test",
	}

	return &testEnv{
		store:    st,
		keyring:  keyring,
		metrics:  metrics,
		audit:    audit,
		creds:    creds,
		tokens:   tokens,
		auth:     auth,
		resolver: NewPermissionResolver(st, metrics),
	}
}

// seedUser registers a user and clears the initial must-change-password
// gate, leaving a user that can log in with the returned password.
func (e *testEnv) seedUser(t *testing.T, given, surname, password string) (userID, login string) {
	t.Helper()
	ctx := context.Background()

	res, err := e.auth.Register(ctx, given, surname, "Initial#Pw1234", nil)
	require.NoError(t, err)
	require.NoError(t, e.auth.ChangePassword(ctx, res.UserID, "Initial#Pw1234", password, password))
	return res.UserID, res.Login
}

func actorCtx(userID string) context.Context {
	return actor.WithActor(context.Background(), actor.Actor{UserID: userID, IP: "192.0.2.9"})
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pelorus/orgauth/internal/auth/domain"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/pkg/jwtx"
)

func TestRefreshRotation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, login := env.seedUser(t, "Token", "Holder", "Correct#Horse1!")

	pair, err := env.auth.Login(ctx, login, "Correct#Horse1!")
	require.NoError(t, err)

	t.Run("rotation succeeds exactly once", func(t *testing.T) {
		rotated, err := env.auth.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
		require.NotEqual(t, pair.AccessToken, rotated.AccessToken)

		// Replaying the consumed token is reported as revocation.
		_, err = env.auth.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrTokenRevoked)

		// The rotated token remains usable.
		_, err = env.auth.Refresh(ctx, rotated.RefreshToken)
		require.NoError(t, err)
	})

	t.Run("rotation tombstones before deleting", func(t *testing.T) {
		p, err := env.auth.Login(ctx, login, "Correct#Horse1!")
		require.NoError(t, err)

		claims, err := env.tokens.Verifier.Verify(p.RefreshToken, jwtx.UseRefresh)
		require.NoError(t, err)

		_, err = env.auth.Refresh(ctx, p.RefreshToken)
		require.NoError(t, err)

		revoked, err := env.store.Blacklist().IsBlacklisted(ctx, claims.ID)
		require.NoError(t, err)
		require.True(t, revoked)
	})
}

func TestRefreshRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, login := env.seedUser(t, "Reject", "Case", "Correct#Horse1!")

	t.Run("garbage token", func(t *testing.T) {
		_, err := env.auth.Refresh(ctx, "not-a-jwt")
		require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		pair, err := env.auth.Login(ctx, login, "Correct#Horse1!")
		require.NoError(t, err)

		_, err = env.auth.Refresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})

	t.Run("foreign signature", func(t *testing.T) {
		otherKey, err := jwtx.GenerateEd25519Key()
		require.NoError(t, err)
		otherSigner, err := jwtx.NewSignerEdDSA(otherKey)
		require.NoError(t, err)

		forged, err := otherSigner.Sign(jwtx.NewRefreshClaims(
			"someone", "s*****e", "orgauth-test", time.Hour, time.Now().UTC(),
		))
		require.NoError(t, err)

		_, err = env.auth.Refresh(ctx, forged)
		require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})

	t.Run("well-signed token with no stored row", func(t *testing.T) {
		userID2, login2 := env.seedUser(t, "No", "Row", "Correct#Horse1!")
		pair, err := env.auth.Login(ctx, login2, "Correct#Horse1!")
		require.NoError(t, err)

		// Wipe the stored fingerprints out from under the token.
		now := time.Now().UTC()
		live, err := env.store.RefreshTokens().ListValidRefreshTokens(ctx, userID2, now)
		require.NoError(t, err)
		for _, rt := range live {
			require.NoError(t, env.store.RefreshTokens().DeleteRefreshToken(ctx, rt.ID))
		}

		_, err = env.auth.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	})
}

func TestRevokeAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID, login := env.seedUser(t, "Multi", "Session", "Correct#Horse1!")

	t.Run("nothing to revoke", func(t *testing.T) {
		err := env.tokens.RevokeAll(ctx, env.store, userID)
		require.ErrorIs(t, err, ErrNoActiveTokens)
	})

	t.Run("revokes every live session", func(t *testing.T) {
		first, err := env.auth.Login(ctx, login, "Correct#Horse1!")
		require.NoError(t, err)
		second, err := env.auth.Login(ctx, login, "Correct#Horse1!")
		require.NoError(t, err)

		require.NoError(t, env.tokens.RevokeAll(ctx, env.store, userID))

		_, err = env.auth.Refresh(ctx, first.RefreshToken)
		require.ErrorIs(t, err, ErrTokenRevoked)
		_, err = env.auth.Refresh(ctx, second.RefreshToken)
		require.ErrorIs(t, err, ErrTokenRevoked)

		live, err := env.store.RefreshTokens().ListValidRefreshTokens(ctx, userID, time.Now().UTC())
		require.NoError(t, err)
		require.Empty(t, live)
	})
}

func TestIssueClaims(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := domain.User{ID: "user-claims", EmailMasked: "j*******t"}
	pair, err := env.tokens.Issue(ctx, discardTokens{}, u)
	require.NoError(t, err)

	access, err := env.tokens.Verifier.Verify(pair.AccessToken, jwtx.UseAccess)
	require.NoError(t, err)
	require.Equal(t, "user-claims", access.Subject)
	require.Equal(t, "j*******t", access.MaskedEmail)

	refresh, err := env.tokens.Verifier.Verify(pair.RefreshToken, jwtx.UseRefresh)
	require.NoError(t, err)
	require.NotEqual(t, access.ID, refresh.ID)
}

// discardTokens satisfies store.RefreshTokens for claim-shape tests that
// don't care about persistence.
type discardTokens struct{}

func (discardTokens) CreateRefreshToken(context.Context, domain.RefreshToken) error { return nil }
func (discardTokens) ListValidRefreshTokens(context.Context, string, time.Time) ([]domain.RefreshToken, error) {
	return nil, nil
}
func (discardTokens) DeleteRefreshToken(context.Context, string) error { return nil }
func (discardTokens) DeleteExpiredRefreshTokens(context.Context, time.Time) error {
	return nil
}

var _ store.RefreshTokens = discardTokens{}

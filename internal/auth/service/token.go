package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/pelorus/orgauth/internal/auth/domain"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/internal/obs"
	"github.com/pelorus/orgauth/pkg/cryptox"
	"github.com/pelorus/orgauth/pkg/jwtx"
)

// TokenService issues, rotates and revokes the access/refresh token pair.
// Refresh tokens are one-time-use: rotation tombstones the old jti before
// the row is deleted, so a crash mid-rotation leaves the token revoked
// rather than reusable.
type TokenService struct {
	Store    store.Store
	Signer   jwtx.Signer
	Verifier jwtx.Verifier
	Audit    *AuditRecorder
	Metrics  *obs.Metrics

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issue signs a fresh access/refresh pair for the user and persists the
// refresh token's fingerprint. Tokens carry the masked email claim only;
// plaintext identifiers never enter a token. The repo is a parameter so
// login can issue inside its own transaction.
func (s *TokenService) Issue(ctx context.Context, tokens store.RefreshTokens, u domain.User) (domain.TokenPair, error) {
	now := time.Now().UTC()

	access, err := s.Signer.Sign(jwtx.NewAccessClaims(u.ID, u.EmailMasked, s.Issuer, s.AccessTTL, now))
	if err != nil {
		return domain.TokenPair{}, err
	}

	refreshClaims := jwtx.NewRefreshClaims(u.ID, u.EmailMasked, s.Issuer, s.RefreshTTL, now)
	refresh, err := s.Signer.Sign(refreshClaims)
	if err != nil {
		return domain.TokenPair{}, err
	}

	record := domain.RefreshToken{
		ID:        refreshClaims.ID,
		UserID:    u.ID,
		TokenHash: cryptox.FingerprintToken(refresh),
		ExpiresAt: now.Add(s.RefreshTTL),
		CreatedAt: now,
	}
	if err := tokens.CreateRefreshToken(ctx, record); err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    s.AccessTTL,
	}, nil
}

// Refresh rotates a presented refresh token for a new pair. Every
// verification failure collapses to ErrInvalidOrExpiredToken so a caller
// cannot distinguish a bad signature from an expired or unknown token; only
// explicit revocation is reported distinctly.
func (s *TokenService) Refresh(ctx context.Context, presented string) (domain.TokenPair, error) {
	claims, err := s.Verifier.Verify(presented, jwtx.UseRefresh)
	if err != nil {
		return domain.TokenPair{}, ErrInvalidOrExpiredToken
	}

	revoked, err := s.Store.Blacklist().IsBlacklisted(ctx, claims.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	if revoked {
		return domain.TokenPair{}, ErrTokenRevoked
	}

	now := time.Now().UTC()
	fingerprint := cryptox.FingerprintToken(presented)

	var pair domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		candidates, err := tx.RefreshTokens().ListValidRefreshTokens(ctx, claims.Subject, now)
		if err != nil {
			return err
		}

		var matched *domain.RefreshToken
		for i := range candidates {
			if subtle.ConstantTimeCompare([]byte(candidates[i].TokenHash), []byte(fingerprint)) == 1 {
				matched = &candidates[i]
				break
			}
		}
		if matched == nil {
			return ErrInvalidOrExpiredToken
		}

		u, err := tx.Users().GetUserByID(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}

		// Tombstone before delete: if the transaction had no atomicity the
		// old token would come back revoked, never silently valid.
		tomb := domain.BlacklistedToken{
			JTI:       matched.ID,
			UserID:    matched.UserID,
			ExpiresAt: matched.ExpiresAt,
			CreatedAt: now,
		}
		if err := tx.Blacklist().CreateBlacklistedToken(ctx, tomb); err != nil {
			return err
		}
		if err := tx.RefreshTokens().DeleteRefreshToken(ctx, matched.ID); err != nil {
			return err
		}

		pair, err = s.Issue(ctx, tx.RefreshTokens(), u)
		if err != nil {
			return err
		}

		s.Audit.Record(ctx, tx.OperationLogs(), AuditEntry{
			Action:     domain.AuditActionTokenRefresh,
			Detail:     "refresh token rotated",
			EntityType: domain.EntityUser,
			EntityID:   u.ID,
		})
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Metrics.TokenRotations.Inc()
	return pair, nil
}

// RevokeAll blacklists and deletes every live refresh token for the user.
// The repo set is a parameter so logout can revoke inside its audit
// transaction. Returns ErrNoActiveTokens when there is nothing to revoke.
func (s *TokenService) RevokeAll(ctx context.Context, st store.Store, userID string) error {
	now := time.Now().UTC()

	live, err := st.RefreshTokens().ListValidRefreshTokens(ctx, userID, now)
	if err != nil {
		return err
	}
	if len(live) == 0 {
		return ErrNoActiveTokens
	}

	tombs := make([]domain.BlacklistedToken, 0, len(live))
	for _, t := range live {
		tombs = append(tombs, domain.BlacklistedToken{
			JTI:       t.ID,
			UserID:    t.UserID,
			ExpiresAt: t.ExpiresAt,
			CreatedAt: now,
		})
	}
	if err := st.Blacklist().CreateBlacklistedTokens(ctx, tombs); err != nil {
		return err
	}
	for _, t := range live {
		if err := st.RefreshTokens().DeleteRefreshToken(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

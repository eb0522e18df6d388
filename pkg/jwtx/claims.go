package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token TTLs. Access tokens stay short-lived so a compromised token
// is only briefly useful; refresh tokens carry the session.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenUse distinguishes access tokens from refresh tokens so one can never
// be presented where the other is expected.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims are the token claims shared by access and refresh tokens.
//
// MaskedEmail is a display-redacted form of the subject's email. The
// plaintext email is never embedded in a token.
type Claims struct {
	jwt.RegisteredClaims

	Use         string `json:"use"`
	MaskedEmail string `json:"masked_email,omitempty"`
}

// NewAccessClaims builds claims for a short-lived access token.
func NewAccessClaims(subject, maskedEmail, issuer string, ttl time.Duration, now time.Time) Claims {
	return newClaims(subject, maskedEmail, issuer, UseAccess, ttl, now)
}

// NewRefreshClaims builds claims for a long-lived refresh token. The jti is
// what the blacklist keys revocations on, so every refresh token gets a
// unique one.
func NewRefreshClaims(subject, maskedEmail, issuer string, ttl time.Duration, now time.Time) Claims {
	return newClaims(subject, maskedEmail, issuer, UseRefresh, ttl, now)
}

func newClaims(subject, maskedEmail, issuer, use string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Use:         use,
		MaskedEmail: maskedEmail,
	}
}

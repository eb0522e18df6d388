package domain

import "time"

// TokenPair is what a successful login or refresh returns: a short-lived
// access JWT and a long-lived refresh JWT.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until access expiry
}

// RefreshToken models the stored refresh token record. Only a one-way
// fingerprint of the token is persisted, never the token itself. ID doubles
// as the token's jti claim so revocations key cleanly into the blacklist.
type RefreshToken struct {
	ID        string // jti of the issued refresh JWT
	UserID    string
	TokenHash string // deterministic fingerprint (base64url SHA-256)
	ExpiresAt time.Time
	CreatedAt time.Time
}

// BlacklistedToken is the tombstone of a superseded or revoked refresh
// token. Once a jti appears here any presentation of the original secret is
// rejected, even if its RefreshToken row briefly survives. Rows become
// garbage-collectable after ExpiresAt.
type BlacklistedToken struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time // expiry of the original token
	CreatedAt time.Time
}

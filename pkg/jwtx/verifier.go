package jwtx

import (
	"crypto/ed25519"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("jwtx: invalid token")
	ErrWrongUse     = errors.New("jwtx: wrong token use")
)

// Verifier validates a JWT and gives back the claims if it's legit.
type Verifier interface {
	// Verify checks the signature, standard time claims and issuer, and
	// that the token carries the expected use ("access" or "refresh").
	Verify(token, expectedUse string) (Claims, error)
}

// EdDSAVerifier validates JWTs signed using EdDSA (Ed25519).
type EdDSAVerifier struct {
	pub    ed25519.PublicKey
	issuer string
}

// NewVerifierEdDSA creates a verifier for tokens signed by the matching
// Ed25519 private key.
func NewVerifierEdDSA(pub ed25519.PublicKey, issuer string) *EdDSAVerifier {
	return &EdDSAVerifier{pub: pub, issuer: issuer}
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *EdDSAVerifier) Verify(tokenStr, expectedUse string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.pub, nil
	})
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Use != expectedUse {
		return Claims{}, ErrWrongUse
	}
	return *claims, nil
}

package service

import (
	"errors"
	"time"
)

// Error kinds surfaced to the boundary. Each maps to a fixed user-visible
// message there; nothing internal leaks through them.
var (
	ErrInvalidCredentials     = errors.New("invalid_credentials")
	ErrAccountLocked          = errors.New("account_locked")
	ErrAccountInactive        = errors.New("account_inactive")
	ErrPasswordChangeRequired = errors.New("password_change_required")
	ErrPasswordMismatch       = errors.New("password_mismatch")
	ErrPasswordReused         = errors.New("password_reused")
	ErrInvalidOrExpiredToken  = errors.New("invalid_or_expired_token")
	ErrTokenRevoked           = errors.New("token_revoked")
	ErrNoActiveTokens         = errors.New("no_active_tokens")
)

// AccountLockedError carries the unlock time when one is known. Until is nil
// for permanent locks. It unwraps to ErrAccountLocked so callers can match
// the kind without caring about the payload.
type AccountLockedError struct {
	Until *time.Time
}

func (e *AccountLockedError) Error() string { return ErrAccountLocked.Error() }

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

func lockedErr(until *time.Time) error {
	return &AccountLockedError{Until: until}
}

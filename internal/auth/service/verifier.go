package service

import (
	"context"
	"time"

	"github.com/pelorus/orgauth/internal/auth/domain"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/internal/obs"
	"github.com/pelorus/orgauth/pkg/cryptox"
)

// Lockout defaults. Reaching MaxAttempts consecutive failures locks the
// account for LockDuration.
const (
	DefaultMaxAttempts  = 5
	DefaultLockDuration = 15 * time.Minute
)

// CredentialVerifier checks a presented password against a user's stored
// hash and drives the failed-attempt counter and lock state machine. It
// takes the Users repository per call so orchestration can hand it a
// transaction-scoped repo.
type CredentialVerifier struct {
	MaxAttempts  int
	LockDuration time.Duration
	Metrics      *obs.Metrics
}

func NewCredentialVerifier(metrics *obs.Metrics) *CredentialVerifier {
	return &CredentialVerifier{
		MaxAttempts:  DefaultMaxAttempts,
		LockDuration: DefaultLockDuration,
		Metrics:      metrics,
	}
}

// Verify checks the password. On mismatch it atomically bumps the user's
// failed-attempt counter; hitting the threshold locks the account and
// returns AccountLockedError, otherwise ErrInvalidCredentials. A correct
// password mutates nothing here; callers reset state via ResetSuccess.
func (v *CredentialVerifier) Verify(ctx context.Context, users store.Users, u domain.User, password string) error {
	if cryptox.VerifyPassword(password, u.PasswordHash) == nil {
		return nil
	}

	now := time.Now().UTC()
	count, err := users.IncrementFailedLogins(ctx, u.ID, now)
	if err != nil {
		return err
	}

	if count >= v.MaxAttempts {
		until := now.Add(v.LockDuration)
		if err := users.SetLock(ctx, u.ID, &until); err != nil {
			return err
		}
		v.Metrics.Lockouts.Inc()
		return lockedErr(&until)
	}
	return ErrInvalidCredentials
}

// CheckRestrictions enforces account-level gates after the password has
// verified: inactive accounts, live locks and forced password changes. A
// lock whose unlock time has passed no longer blocks, but the failure
// counter stays until a successful login resets it.
func (v *CredentialVerifier) CheckRestrictions(u domain.User, now time.Time) error {
	if !u.IsActive {
		return ErrAccountInactive
	}
	if u.IsLocked && !u.LockExpired(now) {
		return lockedErr(u.LockedUntil)
	}
	if u.MustChangePassword {
		return ErrPasswordChangeRequired
	}
	return nil
}

// ResetSuccess clears the failure counter and lock state and stamps
// last_login_at. Called only after a fully successful login.
func (v *CredentialVerifier) ResetSuccess(ctx context.Context, users store.Users, userID string, now time.Time) error {
	return users.ResetLoginState(ctx, userID, now)
}

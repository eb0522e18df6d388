package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/pelorus/orgauth/internal/auth/actor"
	"github.com/pelorus/orgauth/internal/auth/domain"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/internal/obs"
	"github.com/pelorus/orgauth/pkg/cryptox"
	"github.com/pelorus/orgauth/pkg/idx"
)

// DefaultEmailDomain is used for synthetic addresses derived from generated
// logins when no domain is configured.
const DefaultEmailDomain = "example.org"

// AuthService orchestrates the use cases: registration, login, logout,
// password maintenance and account locking. It owns no policy of its own;
// it sequences the collaborators and makes sure every mutation is audited
// inside the transaction that performs it.
type AuthService struct {
	Store       store.Store
	Keyring     *cryptox.Keyring
	Credentials *CredentialVerifier
	Tokens      *TokenService
	Audit       *AuditRecorder
	Metrics     *obs.Metrics

	EmailDomain string
}

// RegisterResult is returned to the caller so the new user can be told
// their generated login. The plaintext login exists only here; storage and
// audit both see the hmac/encrypted/masked triple.
type RegisterResult struct {
	UserID string
	Login  string
}

// LockResult reports the lock state applied by LockUser.
type LockResult struct {
	LockedUntil time.Time
	Reason      string
}

// Register creates a user. Name parts are deduplicated case-insensitively
// per dimension, the login is derived as first-initial plus surname with a
// numeric suffix probed until its digest is free, and the synthetic email
// follows the login. New accounts must change their password on first use.
func (s *AuthService) Register(ctx context.Context, givenName, surname, password string, orgUnitID *string) (RegisterResult, error) {
	givenName = strings.TrimSpace(givenName)
	surname = strings.TrimSpace(surname)
	if givenName == "" || surname == "" {
		return RegisterResult{}, errors.New("given name and surname are required")
	}

	now := time.Now().UTC()
	var result RegisterResult

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.reuseOrCreateNamePart(ctx, tx, store.NameDimensionGiven, givenName, now); err != nil {
			return err
		}
		if err := s.reuseOrCreateNamePart(ctx, tx, store.NameDimensionSurname, surname, now); err != nil {
			return err
		}

		login, loginHmac, err := s.deriveLogin(ctx, tx, givenName, surname)
		if err != nil {
			return err
		}
		email := login + "@" + s.emailDomain()

		loginEncrypted, loginMasked, err := s.sealIdentifier(login)
		if err != nil {
			return err
		}
		emailHmac, err := s.Keyring.HMAC(email, s.Keyring.ActiveVersion())
		if err != nil {
			return err
		}
		emailEncrypted, emailMasked, err := s.sealIdentifier(email)
		if err != nil {
			return err
		}

		hash, err := cryptox.HashPassword(password)
		if err != nil {
			return err
		}

		u := domain.User{
			ID:                 idx.New().String(),
			LoginHmac:          loginHmac,
			LoginEncrypted:     loginEncrypted,
			LoginMasked:        loginMasked,
			EmailHmac:          emailHmac,
			EmailEncrypted:     emailEncrypted,
			EmailMasked:        emailMasked,
			PasswordHash:       hash,
			IsActive:           true,
			MustChangePassword: true,
			OrgUnitID:          orgUnitID,
			KeyVersion:         s.Keyring.ActiveVersion(),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Users().CreateUser(ctx, u); err != nil {
			return err
		}

		s.Audit.Record(ctx, tx.OperationLogs(), AuditEntry{
			Action:     domain.AuditActionRegister,
			Detail:     "user registered",
			EntityType: domain.EntityUser,
			EntityID:   u.ID,
			New: map[string]any{
				"login_masked":         u.LoginMasked,
				"email_masked":         u.EmailMasked,
				"org_unit_id":          orgUnitID,
				"must_change_password": true,
			},
		})

		result = RegisterResult{UserID: u.ID, Login: login}
		return nil
	})
	if err != nil {
		return RegisterResult{}, err
	}
	return result, nil
}

// Login authenticates a login/password pair and issues a token pair. An
// unknown login and a wrong password are indistinguishable to the caller;
// both audit a login_failed event carrying only the masked identifier.
func (s *AuthService) Login(ctx context.Context, login, password string) (domain.TokenPair, error) {
	now := time.Now().UTC()

	u, err := s.lookupUserByLogin(ctx, s.Store.Users(), login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.auditLoginFailed(ctx, "", cryptox.Mask(login), "unknown_login")
			s.Metrics.LoginAttempts.WithLabelValues(obs.ResultFailure).Inc()
			return domain.TokenPair{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, err
	}

	// Failure-path mutations (counter, lock) must survive, so they run
	// outside any transaction that a failure would roll back.
	if err := s.Credentials.Verify(ctx, s.Store.Users(), u, password); err != nil {
		if errors.Is(err, ErrAccountLocked) {
			s.auditLoginFailed(ctx, u.ID, u.LoginMasked, "lock_threshold_reached")
			s.Metrics.LoginAttempts.WithLabelValues(obs.ResultLocked).Inc()
		} else if errors.Is(err, ErrInvalidCredentials) {
			s.auditLoginFailed(ctx, u.ID, u.LoginMasked, "invalid_password")
			s.Metrics.LoginAttempts.WithLabelValues(obs.ResultFailure).Inc()
		}
		return domain.TokenPair{}, err
	}

	if err := s.Credentials.CheckRestrictions(u, now); err != nil {
		reason := "account_restricted"
		switch {
		case errors.Is(err, ErrAccountLocked):
			reason = "account_locked"
			s.Metrics.LoginAttempts.WithLabelValues(obs.ResultLocked).Inc()
		case errors.Is(err, ErrAccountInactive):
			reason = "account_inactive"
			s.Metrics.LoginAttempts.WithLabelValues(obs.ResultFailure).Inc()
		case errors.Is(err, ErrPasswordChangeRequired):
			reason = "password_change_required"
			s.Metrics.LoginAttempts.WithLabelValues(obs.ResultFailure).Inc()
		}
		s.auditLoginFailed(ctx, u.ID, u.LoginMasked, reason)
		return domain.TokenPair{}, err
	}

	var pair domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.Credentials.ResetSuccess(ctx, tx.Users(), u.ID, now); err != nil {
			return err
		}
		pair, err = s.Tokens.Issue(ctx, tx.RefreshTokens(), u)
		if err != nil {
			return err
		}
		s.Audit.Record(ctx, tx.OperationLogs(), AuditEntry{
			Action:     domain.AuditActionLogin,
			Detail:     "user logged in",
			EntityType: domain.EntityUser,
			EntityID:   u.ID,
			Old:        map[string]any{"last_login_at": u.LastLoginAt},
			New:        map[string]any{"last_login_at": now},
		})
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, err
	}

	s.Metrics.LoginAttempts.WithLabelValues(obs.ResultSuccess).Inc()
	return pair, nil
}

// Refresh rotates a refresh token for a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	return s.Tokens.Refresh(ctx, refreshToken)
}

// Logout revokes every live refresh token for the acting user.
func (s *AuthService) Logout(ctx context.Context) error {
	act := actor.FromContext(ctx)
	if act.Anonymous() {
		return ErrInvalidOrExpiredToken
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.Tokens.RevokeAll(ctx, tx, act.UserID); err != nil {
			return err
		}
		s.Audit.Record(ctx, tx.OperationLogs(), AuditEntry{
			Action:     domain.AuditActionLogout,
			Detail:     "all refresh tokens revoked",
			EntityType: domain.EntityUser,
			EntityID:   act.UserID,
		})
		return nil
	})
}

// ChangePassword replaces the user's password after checking the
// confirmation, the old password and the last five history entries. The
// superseded hash joins the history and the must-change flag clears.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword, confirm string) error {
	if newPassword != confirm {
		return ErrPasswordMismatch
	}

	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if cryptox.VerifyPassword(oldPassword, u.PasswordHash) != nil {
		return ErrInvalidCredentials
	}

	if cryptox.VerifyPassword(newPassword, u.PasswordHash) == nil {
		return ErrPasswordReused
	}
	history, err := s.Store.PasswordHistory().ListRecentPasswordHistory(ctx, userID, domain.PasswordHistoryDepth)
	if err != nil {
		return err
	}
	for _, e := range history {
		if cryptox.VerifyPassword(newPassword, e.PasswordHash) == nil {
			return ErrPasswordReused
		}
	}

	newHash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.rotatePasswordHash(ctx, tx, u, newHash, false, now); err != nil {
			return err
		}
		s.Audit.Record(ctx, tx.OperationLogs(), AuditEntry{
			Action:     domain.AuditActionPasswordChange,
			Detail:     "password changed",
			EntityType: domain.EntityUser,
			EntityID:   u.ID,
			Old:        map[string]any{"must_change_password": u.MustChangePassword},
			New:        map[string]any{"must_change_password": false},
		})
		return nil
	})
}

// ResetPassword issues a random temporary password for the user and forces
// a change on next login. The plaintext is returned to the caller once and
// never audited or logged.
func (s *AuthService) ResetPassword(ctx context.Context, userID string) (string, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}

	temp, err := cryptox.GeneratePassword()
	if err != nil {
		return "", err
	}
	newHash, err := cryptox.HashPassword(temp)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.rotatePasswordHash(ctx, tx, u, newHash, true, now); err != nil {
			return err
		}
		s.Audit.Record(ctx, tx.OperationLogs(), AuditEntry{
			Action:     domain.AuditActionPasswordReset,
			Detail:     "temporary password issued",
			EntityType: domain.EntityUser,
			EntityID:   u.ID,
			Old:        map[string]any{"must_change_password": u.MustChangePassword},
			New:        map[string]any{"must_change_password": true},
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	return temp, nil
}

// LockUser locks the account until now+duration, or permanently when no
// duration is given.
func (s *AuthService) LockUser(ctx context.Context, userID string, duration *time.Duration, reason string) (LockResult, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return LockResult{}, err
	}

	now := time.Now().UTC()
	until := domain.PermanentLockUntil
	if duration != nil {
		until = now.Add(*duration)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetLock(ctx, userID, &until); err != nil {
			return err
		}
		s.Audit.Record(ctx, tx.OperationLogs(), AuditEntry{
			Action:     domain.AuditActionLock,
			Detail:     reason,
			EntityType: domain.EntityUser,
			EntityID:   userID,
			Old:        map[string]any{"is_locked": u.IsLocked, "locked_until": u.LockedUntil},
			New:        map[string]any{"is_locked": true, "locked_until": until, "reason": reason},
		})
		return nil
	})
	if err != nil {
		return LockResult{}, err
	}
	return LockResult{LockedUntil: until, Reason: reason}, nil
}

// UnlockUser lifts a lock and zeroes the failure counter.
func (s *AuthService) UnlockUser(ctx context.Context, userID string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().ClearLock(ctx, userID); err != nil {
			return err
		}
		s.Audit.Record(ctx, tx.OperationLogs(), AuditEntry{
			Action:     domain.AuditActionUnlock,
			Detail:     "account unlocked",
			EntityType: domain.EntityUser,
			EntityID:   userID,
			Old:        map[string]any{"is_locked": u.IsLocked, "locked_until": u.LockedUntil},
			New:        map[string]any{"is_locked": false, "locked_until": nil},
		})
		return nil
	})
}

// rotatePasswordHash swaps the stored hash, pushes the superseded hash onto
// the history and trims the history to its depth. The changer recorded on
// the history entry is the acting user when one is present, else the
// subject themselves.
func (s *AuthService) rotatePasswordHash(ctx context.Context, tx store.Tx, u domain.User, newHash string, mustChange bool, now time.Time) error {
	if err := tx.Users().UpdatePasswordHash(ctx, u.ID, newHash, mustChange); err != nil {
		return err
	}

	changedBy := actor.FromContext(ctx).UserID
	if changedBy == "" {
		changedBy = u.ID
	}
	entry := domain.PasswordHistoryEntry{
		ID:           idx.New().String(),
		UserID:       u.ID,
		PasswordHash: u.PasswordHash,
		ChangedBy:    changedBy,
		CreatedAt:    now,
	}
	if err := tx.PasswordHistory().AppendPasswordHistory(ctx, entry); err != nil {
		return err
	}
	return tx.PasswordHistory().TrimPasswordHistory(ctx, u.ID, domain.PasswordHistoryDepth)
}

func (s *AuthService) emailDomain() string {
	if s.EmailDomain == "" {
		return DefaultEmailDomain
	}
	return s.EmailDomain
}

// auditLoginFailed records the single failed-login audit shape: masked
// identifier and a reason, never the plaintext login. Unknown and known
// accounts produce the same schema so log content can't enumerate users.
func (s *AuthService) auditLoginFailed(ctx context.Context, userID, maskedLogin, reason string) {
	s.Audit.Record(ctx, s.Store.OperationLogs(), AuditEntry{
		Action:     domain.AuditActionLoginFailed,
		Detail:     "login failed",
		EntityType: domain.EntityUser,
		EntityID:   userID,
		New:        map[string]any{"login_masked": maskedLogin, "reason": reason},
	})
}

func (s *AuthService) sealIdentifier(value string) (encrypted, masked string, err error) {
	env, err := s.Keyring.Encrypt(value, s.Keyring.ActiveVersion())
	if err != nil {
		return "", "", err
	}
	encoded, err := env.Encode()
	if err != nil {
		return "", "", err
	}
	return encoded, cryptox.Mask(value), nil
}

func (s *AuthService) reuseOrCreateNamePart(ctx context.Context, tx store.Tx, dimension, value string, now time.Time) error {
	normalized := strings.ToLower(value)
	_, err := tx.Names().FindNamePart(ctx, dimension, normalized)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return tx.Names().CreateNamePart(ctx, dimension, domain.NamePart{
		ID:         idx.New().String(),
		Value:      value,
		Normalized: normalized,
		CreatedAt:  now,
	})
}

// lookupUserByLogin resolves a plaintext login to its user row. The stored
// login_hmac keeps the version it was written under, so the digest is probed
// under every ring version, active first. Returns store.ErrNotFound when no
// version's digest matches.
func (s *AuthService) lookupUserByLogin(ctx context.Context, users store.Users, login string) (domain.User, error) {
	for _, version := range s.Keyring.Versions() {
		digest, err := s.Keyring.HMAC(login, version)
		if err != nil {
			return domain.User{}, err
		}
		u, err := users.GetUserByLoginHmac(ctx, digest)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.User{}, err
		}
	}
	return domain.User{}, store.ErrNotFound
}

// deriveLogin builds first-initial+surname and appends an increasing
// numeric suffix until the candidate's digest is unused under every ring
// version; older users keep digests under the version they registered with.
// Probing by digest keeps plaintext logins out of the store even during
// derivation. The digest stored for the new user is the active version's.
func (s *AuthService) deriveLogin(ctx context.Context, tx store.Tx, givenName, surname string) (login, loginHmac string, err error) {
	base := loginChars(string([]rune(givenName)[:1])) + loginChars(surname)

	for suffix := 0; ; suffix++ {
		candidate := base
		if suffix > 0 {
			candidate = fmt.Sprintf("%s%d", base, suffix)
		}

		_, err := s.lookupUserByLogin(ctx, tx.Users(), candidate)
		if errors.Is(err, store.ErrNotFound) {
			digest, err := s.Keyring.HMAC(candidate, s.Keyring.ActiveVersion())
			if err != nil {
				return "", "", err
			}
			return candidate, digest, nil
		}
		if err != nil {
			return "", "", err
		}
	}
}

// loginChars lowercases and keeps only letters and digits, so surnames with
// spaces, hyphens or apostrophes still yield clean logins.
func loginChars(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

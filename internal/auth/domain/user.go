package domain

import "time"

// User is the identity record. Login and email are never stored or logged
// in plaintext: each is kept as a keyed-HMAC digest (equality lookup), an
// AES-GCM envelope (recovery for legitimate display) and a masked form
// (safe for logs and token claims). KeyVersion records which keyring entry
// sealed the encrypted fields.
type User struct {
	ID string

	LoginHmac      string
	LoginEncrypted string // serialized cryptox.Envelope
	LoginMasked    string

	EmailHmac      string
	EmailEncrypted string
	EmailMasked    string

	PasswordHash string // argon2id PHC encoded

	IsActive    bool
	IsLocked    bool
	LockedUntil *time.Time // nil while locked means a permanent lock

	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	LastLoginAt         *time.Time

	MustChangePassword bool

	OrgUnitID  *string
	KeyVersion int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PermanentLockUntil is the far-future sentinel stored when an account is
// locked without a duration.
var PermanentLockUntil = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// LockExpired reports whether a lock is past its unlock time. Permanent
// locks (nil or sentinel LockedUntil) never expire.
func (u User) LockExpired(now time.Time) bool {
	if !u.IsLocked {
		return true
	}
	if u.LockedUntil == nil {
		return false
	}
	return now.After(*u.LockedUntil)
}

// NamePart is a deduplicated name dimension record (given names and
// surnames live in separate dimensions). Normalized holds the
// case-folded form used for reuse-or-create matching.
type NamePart struct {
	ID         string
	Value      string
	Normalized string
	CreatedAt  time.Time
}

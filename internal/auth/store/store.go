package store

import (
	"context"
	"errors"
	"time"

	"github.com/pelorus/orgauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Name dimensions for the deduplicated name-part tables.
const (
	NameDimensionGiven   = "given"
	NameDimensionSurname = "surname"
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	Blacklist() Blacklist
	PasswordHistory() PasswordHistory
	Permissions() Permissions
	Names() Names
	OperationLogs() OperationLogs

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Multi-step
	// operations that must be atomic (refresh rotation, mutation plus its
	// audit record) go through here.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByLoginHmac looks a user up by the keyed digest of their
	// login. This is the only login lookup; plaintext logins never reach
	// the store.
	GetUserByLoginHmac(ctx context.Context, hmac string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the login or email digest collides.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password hash and the must-change flag,
	// and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID, newHash string, mustChange bool) error

	// IncrementFailedLogins atomically bumps the failed-attempt counter
	// and stamps last_failed_login_at, returning the post-increment count.
	// Atomic at the store so parallel bad-password requests never lose an
	// increment.
	IncrementFailedLogins(ctx context.Context, userID string, at time.Time) (int, error)

	// SetLock marks the user locked until the given time. A nil until is a
	// permanent lock.
	SetLock(ctx context.Context, userID string, until *time.Time) error

	// ResetLoginState zeroes the failed-attempt counter, clears the lock
	// and stamps last_login_at.
	ResetLoginState(ctx context.Context, userID string, at time.Time) error

	// ClearLock lifts a lock and zeroes the failed-attempt counter without
	// touching last_login_at. Used by admin unlock.
	ClearLock(ctx context.Context, userID string) error

	// SetMustChangePassword flips the must-change flag on its own.
	SetMustChangePassword(ctx context.Context, userID string, must bool) error

	// SetActive enables or disables the account.
	SetActive(ctx context.Context, userID string, active bool) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// ListValidRefreshTokens returns the user's non-expired tokens,
	// newest first. Callers match the presented secret against the stored
	// fingerprints themselves.
	ListValidRefreshTokens(ctx context.Context, userID string, now time.Time) ([]domain.RefreshToken, error)

	// DeleteRefreshToken removes a single token row by id.
	DeleteRefreshToken(ctx context.Context, id string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error
}

type Blacklist interface {
	// CreateBlacklistedToken writes one tombstone.
	CreateBlacklistedToken(ctx context.Context, t domain.BlacklistedToken) error

	// CreateBlacklistedTokens writes tombstones in bulk (logout).
	CreateBlacklistedTokens(ctx context.Context, ts []domain.BlacklistedToken) error

	// IsBlacklisted reports whether a jti has been revoked.
	IsBlacklisted(ctx context.Context, jti string) (bool, error)

	// DeleteExpiredBlacklistedTokens is housekeeping; tombstones are only
	// needed while the original token could still be presented.
	DeleteExpiredBlacklistedTokens(ctx context.Context, now time.Time) error
}

type PasswordHistory interface {
	// AppendPasswordHistory records a superseded password hash.
	AppendPasswordHistory(ctx context.Context, e domain.PasswordHistoryEntry) error

	// ListRecentPasswordHistory returns up to limit entries, most recent first.
	ListRecentPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error)

	// TrimPasswordHistory deletes everything beyond the newest keep entries.
	TrimPasswordHistory(ctx context.Context, userID string, keep int) error
}

type Permissions interface {
	// CreateRole inserts a new role (id is ULID).
	CreateRole(ctx context.Context, r domain.Role) error

	// GetRoleByName fetches a role by its unique name.
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// AddRolePermission attaches a permission string to a role.
	AddRolePermission(ctx context.Context, roleID, permission string) error

	// AssignRole attaches a role to a user.
	AssignRole(ctx context.Context, ur domain.UserRole) error

	// RemoveRole detaches a role from a user.
	RemoveRole(ctx context.Context, userID, roleID string) error

	// ListUserPermissions returns the deduplicated union of permission
	// strings granted by all of the user's roles.
	ListUserPermissions(ctx context.Context, userID string) ([]string, error)

	// ListOverrides returns the user's per-permission overrides.
	ListOverrides(ctx context.Context, userID string) ([]domain.PermissionOverride, error)

	// SetOverride upserts an allow/deny override for (user, permission).
	SetOverride(ctx context.Context, o domain.PermissionOverride) error

	// ClearOverride removes an override if present.
	ClearOverride(ctx context.Context, userID, permission string) error
}

type Names interface {
	// FindNamePart looks a name part up by its normalized form within a
	// dimension ("given" or "surname").
	FindNamePart(ctx context.Context, dimension, normalized string) (domain.NamePart, error)

	// CreateNamePart inserts a new name part into a dimension.
	CreateNamePart(ctx context.Context, dimension string, p domain.NamePart) error
}

type OperationLogs interface {
	// AppendOperationLog writes one audit record. Records are write-once;
	// there is deliberately no update or single-row delete.
	AppendOperationLog(ctx context.Context, l domain.OperationLog) error

	// ListOperationLogs returns records for an entity, newest first.
	ListOperationLogs(ctx context.Context, entityType, entityID string, limit int) ([]domain.OperationLog, error)

	// DeleteExpiredOperationLogs removes rows past their retention
	// deadline. Housekeeping only; nothing else deletes audit rows.
	DeleteExpiredOperationLogs(ctx context.Context, now time.Time) error
}

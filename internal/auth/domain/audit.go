package domain

import (
	"encoding/json"
	"time"
)

// Audit action names. Dotted entity.verb form so operators can filter by
// prefix.
const (
	AuditActionRegister       = "user.register"
	AuditActionLogin          = "auth.login"
	AuditActionLoginFailed    = "auth.login_failed"
	AuditActionLogout         = "auth.logout"
	AuditActionTokenRefresh   = "token.refresh"
	AuditActionPasswordChange = "user.password_change"
	AuditActionPasswordReset  = "user.password_reset"
	AuditActionLock           = "user.lock"
	AuditActionUnlock         = "user.unlock"
)

// Entity type names used in audit records and exclusion checks.
const (
	EntityUser             = "user"
	EntityRefreshToken     = "refresh_token"
	EntityBlacklistedToken = "blacklisted_token"
	EntityOperationLog     = "operation_log"
	EntityRole             = "role"
	EntityUserPermission   = "user_permission"
)

// AuditRetention is how long operation log rows must be kept before they
// may be garbage collected.
const AuditRetention = 5 * 365 * 24 * time.Hour

// OperationLog is a write-once audit record with before/after snapshots of
// the mutated entity. ActorID is nil for anonymous actions such as failed
// logins against unknown accounts. Rows are never updated, and never
// deleted before RetainUntil.
type OperationLog struct {
	ID          string
	ActorID     *string
	Action      string
	Detail      string
	EntityType  string
	EntityID    string
	OldValues   json.RawMessage
	NewValues   json.RawMessage
	IPAddress   string
	CreatedAt   time.Time
	RetainUntil time.Time
}

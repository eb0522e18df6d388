package domain

import "time"

// PasswordHistoryDepth is how many prior password hashes are retained per
// user. A new password must not match any of them.
const PasswordHistoryDepth = 5

// PasswordHistoryEntry records one prior password hash. Entries are read
// most-recent-first and trimmed beyond PasswordHistoryDepth.
type PasswordHistoryEntry struct {
	ID           string
	UserID       string
	PasswordHash string
	ChangedBy    string
	CreatedAt    time.Time
}

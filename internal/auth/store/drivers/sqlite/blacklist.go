package sqlite

import (
	"context"
	"time"

	"github.com/pelorus/orgauth/internal/auth/domain"
)

type blacklistRepo struct {
	q dbtx
}

func (r *blacklistRepo) CreateBlacklistedToken(ctx context.Context, t domain.BlacklistedToken) error {
	// INSERT OR IGNORE: revoking an already-revoked jti is not an error.
	_, err := r.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO blacklisted_tokens (jti, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		t.JTI, t.UserID, t.ExpiresAt, t.CreatedAt,
	)
	return err
}

func (r *blacklistRepo) CreateBlacklistedTokens(ctx context.Context, ts []domain.BlacklistedToken) error {
	for _, t := range ts {
		if err := r.CreateBlacklistedToken(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (r *blacklistRepo) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	var count int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blacklisted_tokens WHERE jti = ?`, jti,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *blacklistRepo) DeleteExpiredBlacklistedTokens(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM blacklisted_tokens WHERE expires_at <= ?`, now)
	return err
}

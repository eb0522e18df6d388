package sqlite

import (
	"context"
	"time"

	"github.com/pelorus/orgauth/internal/auth/domain"
)

type refreshTokensRepo struct {
	q dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) ListValidRefreshTokens(
	ctx context.Context,
	userID string,
	now time.Time,
) ([]domain.RefreshToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at
		FROM refresh_tokens
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at DESC`,
		userID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		var t domain.RefreshToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *refreshTokensRepo) DeleteRefreshToken(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, now)
	return err
}

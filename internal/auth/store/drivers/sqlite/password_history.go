package sqlite

import (
	"context"

	"github.com/pelorus/orgauth/internal/auth/domain"
)

type passwordHistoryRepo struct {
	q dbtx
}

func (r *passwordHistoryRepo) AppendPasswordHistory(ctx context.Context, e domain.PasswordHistoryEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO password_history (id, user_id, password_hash, changed_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.PasswordHash, e.ChangedBy, e.CreatedAt,
	)
	return err
}

func (r *passwordHistoryRepo) ListRecentPasswordHistory(
	ctx context.Context,
	userID string,
	limit int,
) ([]domain.PasswordHistoryEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, password_hash, changed_by, created_at
		FROM password_history
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.PasswordHistoryEntry
	for rows.Next() {
		var e domain.PasswordHistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.PasswordHash, &e.ChangedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *passwordHistoryRepo) TrimPasswordHistory(ctx context.Context, userID string, keep int) error {
	// ULIDs sort with creation order, so (created_at, id) gives a stable
	// newest-first ordering even for same-timestamp rows.
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM password_history
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM password_history
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)`,
		userID, userID, keep,
	)
	return err
}

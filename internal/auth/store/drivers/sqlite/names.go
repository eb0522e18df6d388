package sqlite

import (
	"context"

	"github.com/pelorus/orgauth/internal/auth/domain"
)

type namesRepo struct {
	q dbtx
}

func (r *namesRepo) FindNamePart(ctx context.Context, dimension, normalized string) (domain.NamePart, error) {
	var p domain.NamePart
	err := r.q.QueryRowContext(ctx, `
		SELECT id, value, normalized, created_at
		FROM name_parts
		WHERE dimension = ? AND normalized = ?`,
		dimension, normalized,
	).Scan(&p.ID, &p.Value, &p.Normalized, &p.CreatedAt)
	if err != nil {
		return domain.NamePart{}, mapNotFound(err)
	}
	return p, nil
}

func (r *namesRepo) CreateNamePart(ctx context.Context, dimension string, p domain.NamePart) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO name_parts (id, dimension, value, normalized, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, dimension, p.Value, p.Normalized, p.CreatedAt,
	)
	return mapConstraint(err)
}

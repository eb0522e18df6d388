package sqlite

import (
	"context"

	"github.com/pelorus/orgauth/internal/auth/domain"
)

type permissionsRepo struct {
	q dbtx
}

func (r *permissionsRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO roles (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		role.ID, role.Name, role.CreatedAt, role.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *permissionsRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var role domain.Role
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at FROM roles WHERE name = ?`, name,
	).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	return role, nil
}

func (r *permissionsRepo) AddRolePermission(ctx context.Context, roleID, permission string) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO role_permissions (role_id, permission)
		VALUES (?, ?)`,
		roleID, permission,
	)
	return err
}

func (r *permissionsRepo) AssignRole(ctx context.Context, ur domain.UserRole) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by, created_at)
		VALUES (?, ?, ?, ?)`,
		ur.UserID, ur.RoleID, ur.AssignedBy, ur.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *permissionsRepo) RemoveRole(ctx context.Context, userID, roleID string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = ? AND role_id = ?`, userID, roleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *permissionsRepo) ListUserPermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT DISTINCT rp.permission
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		WHERE ur.user_id = ?
		ORDER BY rp.permission`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		permissions = append(permissions, p)
	}
	return permissions, rows.Err()
}

func (r *permissionsRepo) ListOverrides(ctx context.Context, userID string) ([]domain.PermissionOverride, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT user_id, permission, allowed, created_at
		FROM user_permissions
		WHERE user_id = ?
		ORDER BY permission`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []domain.PermissionOverride
	for rows.Next() {
		var o domain.PermissionOverride
		if err := rows.Scan(&o.UserID, &o.Permission, &o.Allowed, &o.CreatedAt); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func (r *permissionsRepo) SetOverride(ctx context.Context, o domain.PermissionOverride) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO user_permissions (user_id, permission, allowed, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, permission) DO UPDATE SET allowed = excluded.allowed`,
		o.UserID, o.Permission, o.Allowed, o.CreatedAt,
	)
	return err
}

func (r *permissionsRepo) ClearOverride(ctx context.Context, userID, permission string) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM user_permissions WHERE user_id = ? AND permission = ?`, userID, permission)
	if err != nil {
		return err
	}
	return requireRow(res)
}

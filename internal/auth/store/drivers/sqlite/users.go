package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pelorus/orgauth/internal/auth/domain"
)

type usersRepo struct {
	q dbtx
}

const userColumns = `id, login_hmac, login_encrypted, login_masked,
	email_hmac, email_encrypted, email_masked, password_hash,
	is_active, is_locked, locked_until,
	failed_login_attempts, last_failed_login_at, last_login_at,
	must_change_password, org_unit_id, key_version, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u                 domain.User
		lockedUntil       sql.NullTime
		lastFailedLoginAt sql.NullTime
		lastLoginAt       sql.NullTime
		orgUnitID         sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.LoginHmac, &u.LoginEncrypted, &u.LoginMasked,
		&u.EmailHmac, &u.EmailEncrypted, &u.EmailMasked, &u.PasswordHash,
		&u.IsActive, &u.IsLocked, &lockedUntil,
		&u.FailedLoginAttempts, &lastFailedLoginAt, &lastLoginAt,
		&u.MustChangePassword, &orgUnitID, &u.KeyVersion, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.LockedUntil = mapNullTimePtr(lockedUntil)
	u.LastFailedLoginAt = mapNullTimePtr(lastFailedLoginAt)
	u.LastLoginAt = mapNullTimePtr(lastLoginAt)
	u.OrgUnitID = mapNullStringPtr(orgUnitID)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByLoginHmac(ctx context.Context, hmac string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE login_hmac = ?`, hmac)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (
			id, login_hmac, login_encrypted, login_masked,
			email_hmac, email_encrypted, email_masked, password_hash,
			is_active, is_locked, locked_until,
			failed_login_attempts, last_failed_login_at, last_login_at,
			must_change_password, org_unit_id, key_version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.LoginHmac, u.LoginEncrypted, u.LoginMasked,
		u.EmailHmac, u.EmailEncrypted, u.EmailMasked, u.PasswordHash,
		u.IsActive, u.IsLocked, mapOptionalTime(u.LockedUntil),
		u.FailedLoginAttempts, mapOptionalTime(u.LastFailedLoginAt), mapOptionalTime(u.LastLoginAt),
		u.MustChangePassword, mapOptionalString(u.OrgUnitID), u.KeyVersion, u.CreatedAt, u.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string, mustChange bool) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET password_hash = ?, must_change_password = ?, updated_at = ?
		WHERE id = ?`,
		newHash, mustChange, time.Now().UTC(), userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// IncrementFailedLogins is a single UPDATE ... RETURNING so concurrent
// failed attempts against the same account never lose an increment.
func (r *usersRepo) IncrementFailedLogins(ctx context.Context, userID string, at time.Time) (int, error) {
	row := r.q.QueryRowContext(ctx, `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1,
		    last_failed_login_at = ?, updated_at = ?
		WHERE id = ?
		RETURNING failed_login_attempts`,
		at, at, userID,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, mapNotFound(err)
	}
	return count, nil
}

func (r *usersRepo) SetLock(ctx context.Context, userID string, until *time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET is_locked = 1, locked_until = ?, updated_at = ?
		WHERE id = ?`,
		mapOptionalTime(until), time.Now().UTC(), userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) ResetLoginState(ctx context.Context, userID string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, is_locked = 0, locked_until = NULL,
		    last_login_at = ?, updated_at = ?
		WHERE id = ?`,
		at, at, userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) ClearLock(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = 0, is_locked = 0, locked_until = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) SetMustChangePassword(ctx context.Context, userID string, must bool) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET must_change_password = ?, updated_at = ? WHERE id = ?`,
		must, time.Now().UTC(), userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), userID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// requireRow converts a zero-row UPDATE into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pelorus/orgauth/internal/auth/domain"
)

type operationLogsRepo struct {
	q dbtx
}

func (r *operationLogsRepo) AppendOperationLog(ctx context.Context, l domain.OperationLog) error {
	var oldValues, newValues any
	if len(l.OldValues) > 0 {
		oldValues = string(l.OldValues)
	}
	if len(l.NewValues) > 0 {
		newValues = string(l.NewValues)
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO operation_logs (
			id, actor_id, action, detail, entity_type, entity_id,
			old_values, new_values, ip_address, created_at, retain_until
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, mapOptionalString(l.ActorID), l.Action, l.Detail, l.EntityType, l.EntityID,
		oldValues, newValues, l.IPAddress, l.CreatedAt, l.RetainUntil,
	)
	return err
}

func (r *operationLogsRepo) ListOperationLogs(
	ctx context.Context,
	entityType, entityID string,
	limit int,
) ([]domain.OperationLog, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, actor_id, action, detail, entity_type, entity_id,
		       old_values, new_values, ip_address, created_at, retain_until
		FROM operation_logs
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		entityType, entityID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.OperationLog
	for rows.Next() {
		var (
			l         domain.OperationLog
			actorID   sql.NullString
			oldValues sql.NullString
			newValues sql.NullString
		)
		err := rows.Scan(
			&l.ID, &actorID, &l.Action, &l.Detail, &l.EntityType, &l.EntityID,
			&oldValues, &newValues, &l.IPAddress, &l.CreatedAt, &l.RetainUntil,
		)
		if err != nil {
			return nil, err
		}
		l.ActorID = mapNullStringPtr(actorID)
		if oldValues.Valid {
			l.OldValues = []byte(oldValues.String)
		}
		if newValues.Valid {
			l.NewValues = []byte(newValues.String)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *operationLogsRepo) DeleteExpiredOperationLogs(ctx context.Context, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM operation_logs WHERE retain_until <= ?`, now)
	return err
}

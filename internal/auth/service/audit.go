package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pelorus/orgauth/internal/auth/actor"
	"github.com/pelorus/orgauth/internal/auth/domain"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/internal/obs"
	"github.com/pelorus/orgauth/pkg/idx"
	"github.com/pelorus/orgauth/pkg/slogx"
)

// AuditEntry is one mutation to record. Old and New are snapshots of the
// entity before and after; they are marshalled to JSON at write time.
// Snapshots must only ever contain masked identifier forms, never plaintext
// logins, emails or passwords.
type AuditEntry struct {
	Action     string
	Detail     string
	EntityType string
	EntityID   string
	Old        any
	New        any
}

// AuditRecorder appends operation log rows. Failures never propagate to the
// business operation being audited: they are logged and counted instead.
// Callers pass the OperationLogs repo explicitly so the write lands inside
// the same transaction as the mutation it describes.
type AuditRecorder struct {
	Metrics *obs.Metrics
}

// excludedEntities are never audited. Auditing token or blacklist churn
// would make every audit-bearing flow write rows about its own bookkeeping,
// and auditing the log itself would recurse.
var excludedEntities = map[string]struct{}{
	domain.EntityOperationLog:     {},
	domain.EntityRefreshToken:     {},
	domain.EntityBlacklistedToken: {},
}

// Record writes one audit row with actor and source IP taken from the
// context and a retention deadline of now plus the configured retention.
func (r *AuditRecorder) Record(ctx context.Context, logs store.OperationLogs, e AuditEntry) {
	if _, excluded := excludedEntities[e.EntityType]; excluded {
		return
	}

	l := slogx.FromContext(ctx)
	now := time.Now().UTC()
	act := actor.FromContext(ctx)

	var actorID *string
	if !act.Anonymous() {
		id := act.UserID
		actorID = &id
	}

	row := domain.OperationLog{
		ID:          idx.New().String(),
		ActorID:     actorID,
		Action:      e.Action,
		Detail:      e.Detail,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		IPAddress:   act.IP,
		CreatedAt:   now,
		RetainUntil: now.Add(domain.AuditRetention),
	}

	var err error
	if row.OldValues, err = marshalSnapshot(e.Old); err != nil {
		r.fail(l, e.Action, err)
		return
	}
	if row.NewValues, err = marshalSnapshot(e.New); err != nil {
		r.fail(l, e.Action, err)
		return
	}

	if err := logs.AppendOperationLog(ctx, row); err != nil {
		r.fail(l, e.Action, err)
	}
}

func (r *AuditRecorder) fail(l *slog.Logger, action string, err error) {
	l.Error("audit write failed",
		slog.String("action", action),
		slog.Any("error", err),
	)
	r.Metrics.AuditFailures.Inc()
}

func marshalSnapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

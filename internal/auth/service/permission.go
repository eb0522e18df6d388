package service

import (
	"context"
	"time"

	"github.com/pelorus/orgauth/internal/auth/domain"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/internal/obs"
	"github.com/pelorus/orgauth/pkg/cachex"
)

// DefaultPermissionCacheTTL bounds how stale a cached role-permission set
// may be.
const DefaultPermissionCacheTTL = 60 * time.Second

// PermissionResolver answers access-check queries from role-derived
// permissions, per-user overrides and organizational-unit scoping.
//
// Only the role-derived permission set is cached. Overrides and the user's
// org unit are security-critical enough that they are always read live, so
// role or permission mutations never need to evict the cache: a deny
// override takes effect immediately even while the cached set is stale.
type PermissionResolver struct {
	Store   store.Store
	Cache   *cachex.Cache[string, []string]
	Metrics *obs.Metrics
}

func NewPermissionResolver(st store.Store, metrics *obs.Metrics) *PermissionResolver {
	return &PermissionResolver{
		Store:   st,
		Cache:   cachex.New[string, []string](DefaultPermissionCacheTTL),
		Metrics: metrics,
	}
}

// Resolve returns the user's permission picture: role-derived set (possibly
// cached), live overrides and live org unit.
func (r *PermissionResolver) Resolve(ctx context.Context, userID string) (domain.Resolution, error) {
	perms, ok := r.Cache.Get(userID)
	if ok {
		r.Metrics.PermCacheHits.Inc()
	} else {
		r.Metrics.PermCacheMisses.Inc()
		var err error
		perms, err = r.Store.Permissions().ListUserPermissions(ctx, userID)
		if err != nil {
			return domain.Resolution{}, err
		}
		r.Cache.Set(userID, perms)
	}

	overrides, err := r.Store.Permissions().ListOverrides(ctx, userID)
	if err != nil {
		return domain.Resolution{}, err
	}
	u, err := r.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.Resolution{}, err
	}

	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return domain.Resolution{
		Permissions: set,
		Overrides:   overrides,
		OrgUnitID:   u.OrgUnitID,
	}, nil
}

// CanAccess reports whether the user may exercise permission, optionally
// against a target org unit. An override for the exact permission string is
// authoritative in either direction. Role-derived grants are denied when
// both the target and the user's org unit are set and differ.
func (r *PermissionResolver) CanAccess(ctx context.Context, userID, permission string, targetOrgUnitID *string) (bool, error) {
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}

	if o, ok := res.Override(permission); ok {
		return o.Allowed, nil
	}
	if !res.Has(permission) {
		return false, nil
	}
	if targetOrgUnitID != nil && res.OrgUnitID != nil && *targetOrgUnitID != *res.OrgUnitID {
		return false, nil
	}
	return true, nil
}

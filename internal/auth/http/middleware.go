package http

import (
	"net/http"
	"strings"

	"github.com/pelorus/orgauth/internal/auth/actor"
	"github.com/pelorus/orgauth/internal/auth/service"
	"github.com/pelorus/orgauth/pkg/httpx"
	"github.com/pelorus/orgauth/pkg/jwtx"
)

// withClientIP installs an anonymous actor carrying only the source IP.
// Public endpoints need it so failed-login audits can record where the
// attempt came from.
func withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := actor.WithActor(r.Context(), actor.Actor{IP: httpx.IPKeyExtractor(r)})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authn verifies the bearer access token and installs the authenticated
// actor on the context.
func authn(verifier jwtx.Verifier) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "invalid_or_expired_token", "Token is invalid or expired.")
				return
			}

			claims, err := verifier.Verify(token, jwtx.UseAccess)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "invalid_or_expired_token", "Token is invalid or expired.")
				return
			}

			ctx := actor.WithActor(r.Context(), actor.Actor{
				UserID: claims.Subject,
				IP:     httpx.IPKeyExtractor(r),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requirePermission gates a route on the acting user holding a permission.
func requirePermission(resolver *service.PermissionResolver, permission string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			act := actor.FromContext(r.Context())
			ok, err := resolver.CanAccess(r.Context(), act.UserID, permission, nil)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			if !ok {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "Insufficient permissions.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

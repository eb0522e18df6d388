package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pelorus/orgauth/internal/auth/service"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/internal/obs"
	"github.com/pelorus/orgauth/pkg/httpx"
	"github.com/pelorus/orgauth/pkg/jwtx"
	"github.com/pelorus/orgauth/pkg/slogx"
)

// PermUsersManage gates the admin operations: password resets, lock and
// unlock.
const PermUsersManage = "users.manage"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store

	AuthService *service.AuthService
	Resolver    *service.PermissionResolver
	Metrics     *obs.Metrics
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerPasswords()
	r.registerAdmin()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// Credential-bearing endpoints sit behind the strict per-IP limit to
	// slow brute force down before it reaches the lockout machinery.
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(&RegisterHandler{AuthService: r.AuthService},
			withClientIP,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(&LoginHandler{AuthService: r.AuthService},
			withClientIP,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(&RefreshHandler{AuthService: r.AuthService},
			withClientIP,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(&LogoutHandler{AuthService: r.AuthService},
			authn(r.verifier),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerPasswords() {
	r.Mux.Handle("POST /v1/auth/password/change",
		httpx.Chain(&ChangePasswordHandler{AuthService: r.AuthService},
			authn(r.verifier),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/password/reset",
		httpx.Chain(&ResetPasswordHandler{AuthService: r.AuthService},
			authn(r.verifier),
			requirePermission(r.Resolver, PermUsersManage),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	r.Mux.Handle("POST /v1/auth/lock",
		httpx.Chain(&LockHandler{AuthService: r.AuthService},
			authn(r.verifier),
			requirePermission(r.Resolver, PermUsersManage),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/unlock",
		httpx.Chain(&UnlockHandler{AuthService: r.AuthService},
			authn(r.verifier),
			requirePermission(r.Resolver, PermUsersManage),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/access/check",
		httpx.Chain(&AccessCheckHandler{Resolver: r.Resolver},
			authn(r.verifier),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /metrics", r.Metrics.Handler())
}

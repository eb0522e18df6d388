package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/pelorus/orgauth/internal/auth/http"
	"github.com/pelorus/orgauth/internal/auth/service"
	"github.com/pelorus/orgauth/internal/auth/store"
	"github.com/pelorus/orgauth/internal/auth/store/drivers/sqlite"
	"github.com/pelorus/orgauth/internal/obs"
	"github.com/pelorus/orgauth/pkg/cryptox"
	"github.com/pelorus/orgauth/pkg/jwtx"
	"github.com/pelorus/orgauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the auth service together: store, crypto, services and
// the HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	keyring  *cryptox.Keyring
	verifier jwtx.Verifier

	metrics             *obs.Metrics
	auditRecorder       *service.AuditRecorder
	tokenService        *service.TokenService
	authService         *service.AuthService
	permissionResolver  *service.PermissionResolver
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "orgauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Pepper path for password hashing. Read lazily on first hash.
	cryptox.SetPepperPath(app.cfg.PepperFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initCrypto(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("orgauth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts the application down.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down orgauth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("orgauth service stopped")
	return nil
}

// initDatabase opens the SQLite store and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initCrypto builds the identity keyring and the token signer, then wires
// the business services around them.
func (app *Application) initCrypto() error {
	secrets, highest, err := ParseKeyringSecrets(app.cfg.KeyringSecrets)
	if err != nil {
		return fmt.Errorf("keyring configuration: %w", err)
	}
	active := app.cfg.KeyringActive
	if active == 0 {
		active = highest
	}
	keyring, err := cryptox.NewKeyring(secrets, active)
	if err != nil {
		return fmt.Errorf("keyring configuration: %w", err)
	}
	app.keyring = keyring

	pemKey, err := loadSigningKey(app.cfg, app.logger)
	if err != nil {
		return err
	}
	signer, err := jwtx.NewSignerEdDSA(pemKey)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	verifier := jwtx.NewVerifierEdDSA(signer.PublicKey(), app.cfg.Issuer)
	app.verifier = verifier

	accessTTL := app.cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = jwtx.DefaultAccessTokenTTL
	}
	refreshTTL := app.cfg.RefreshTokenTTL
	if refreshTTL <= 0 {
		refreshTTL = jwtx.DefaultRefreshTokenTTL
	}

	app.metrics = obs.NewMetrics()
	app.auditRecorder = &service.AuditRecorder{Metrics: app.metrics}

	app.tokenService = &service.TokenService{
		Store:      app.db,
		Signer:     signer,
		Verifier:   verifier,
		Audit:      app.auditRecorder,
		Metrics:    app.metrics,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
	}
	app.authService = &service.AuthService{
		Store:       app.db,
		Keyring:     app.keyring,
		Credentials: service.NewCredentialVerifier(app.metrics),
		Tokens:      app.tokenService,
		Audit:       app.auditRecorder,
		Metrics:     app.metrics,
		EmailDomain: app.cfg.EmailDomain,
	}
	app.permissionResolver = service.NewPermissionResolver(app.db, app.metrics)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.permissionResolver.Cache,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	return nil
}

// initHTTP wires services into the router and builds the HTTP server.
func (app *Application) initHTTP() {
	app.router = httpapi.NewRouter(app.verifier, BuildVersion, app.db, app.logger)
	app.router.AuthService = app.authService
	app.router.Resolver = app.permissionResolver
	app.router.Metrics = app.metrics
	app.router.ApplyRoutes()

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

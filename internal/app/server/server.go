package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"hrportal/internal/domain/access"
	"hrportal/internal/domain/audit"
	"hrportal/internal/domain/auth"
	"hrportal/internal/platform/config"
	"hrportal/internal/platform/crypto"
	"hrportal/internal/platform/db"
	"hrportal/internal/platform/jobs"
	"hrportal/internal/platform/metrics"
	"hrportal/internal/platform/redisstore"
	"hrportal/internal/transport/http/api"
	accesshandler "hrportal/internal/transport/http/handlers/access"
	audithandler "hrportal/internal/transport/http/handlers/audit"
	authhandler "hrportal/internal/transport/http/handlers/auth"
	"hrportal/internal/transport/http/handlers/views"
	"hrportal/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	Router  http.Handler
	Policy  *access.Policy
	Auth    *auth.Service
	Metrics *metrics.Collector
	Jobs    *jobs.Service

	logger *slog.Logger
	pool   *pgxpool.Pool
	redis  redis.UniversalClient
}

// New connects the configured backends and builds the router. Close releases
// what New opened, also when New fails part way.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Metrics: metrics.New(), logger: logger}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	policy, err := access.Load(cfg.AccessPolicyFile)
	if err != nil {
		return fmt.Errorf("load access policy: %w", err)
	}
	a.Policy = policy

	cipher, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return fmt.Errorf("data encryption key: %w", err)
	}

	if cfg.NeedsDatabase() {
		if a.pool, err = db.Connect(ctx, cfg.DatabaseURL); err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		if cfg.RunMigrations {
			fsys, dir := migrationSource(cfg.MigrationsDir)
			if err := db.Migrate(ctx, a.pool, fsys, dir); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
		}
	}

	accounts, err := a.seedAccounts(cipher)
	if err != nil {
		return err
	}

	var directory auth.Directory
	switch cfg.DirectoryBackend {
	case config.BackendPostgres:
		store := auth.NewStore(a.pool)
		if err := db.SeedAccounts(ctx, store, accounts); err != nil {
			return err
		}
		directory = store
	default:
		directory = auth.NewMemoryDirectory(accounts...)
	}

	var (
		registry auth.SessionRegistry
		sweeper  jobs.Sweeper
	)
	switch cfg.SessionBackend {
	case config.BackendPostgres:
		store := auth.NewStore(a.pool)
		registry, sweeper = store, store
	case config.BackendRedis:
		if a.redis, err = redisstore.Connect(ctx, cfg.RedisURL); err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		registry = redisstore.NewRegistry(a.redis, cfg.RedisKeyPrefix)
	default:
		memory := auth.NewMemoryRegistry()
		registry, sweeper = memory, memory
	}

	secret := cfg.JWTSecret
	if secret == "" {
		if secret, err = randomSecret(); err != nil {
			return err
		}
		a.logger.Warn("JWT_SECRET not set; using a per-process secret, sessions will not survive a restart")
	}

	a.Auth = auth.NewService(auth.ServiceOptions{
		Directory: directory,
		Sessions:  registry,
		Secret:    secret,
		TTL:       cfg.SessionTTL,
		Cipher:    cipher,
	})
	a.Jobs = jobs.New(sweeper, cfg.SessionSweepInterval, a.Metrics)

	var (
		recorder audit.Recorder = audit.NewLogRecorder(a.logger)
		lister   audithandler.Lister
	)
	if cfg.AuditBackend == config.BackendPostgres {
		store := audit.NewStore(a.pool)
		recorder, lister = store, store
	}

	a.Router = a.routes(recorder, lister)
	return nil
}

// seedAccounts hashes the demo accounts and turns on MFA for the admin when a
// secret is configured.
func (a *App) seedAccounts(cipher *crypto.Cipher) ([]auth.Account, error) {
	if !a.Config.SeedDemoAccounts {
		return nil, nil
	}
	accounts, err := auth.BuildAccounts(auth.DemoAccounts)
	if err != nil {
		return nil, err
	}
	if a.Config.DemoAdminMFA == "" {
		return accounts, nil
	}
	for i := range accounts {
		if accounts[i].Role == auth.RoleAdmin {
			if err := accounts[i].EnableMFA(a.Config.DemoAdminMFA, cipher); err != nil {
				return nil, err
			}
		}
	}
	return accounts, nil
}

func (a *App) routes(recorder audit.Recorder, lister audithandler.Lister) http.Handler {
	cfg := a.Config
	sessionCfg := middleware.SessionConfig{
		Authenticator: a.Auth,
		CookieName:    cfg.CookieName,
		CookieSecure:  cfg.CookieSecure,
		TTL:           cfg.SessionTTL,
	}
	guard := middleware.RouteGuard(middleware.GuardConfig{Policy: a.Policy, Metrics: a.Metrics, Audit: recorder})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(a.logger, a.Metrics))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	// Login limits read the form before the session middleware clones the request.
	router.Use(middleware.LoginRateLimit(cfg.LoginLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", a.handleReady)
	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	authHandler := authhandler.NewHandler(a.Policy, recorder, a.Metrics)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Session(sessionCfg))

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
			authHandler.RegisterRoutes(r)
			accesshandler.NewHandler(a.Policy).RegisterRoutes(r)
			if lister != nil {
				audithandler.NewHandler(lister).RegisterRoutes(r)
			}
		})

		views.NewHandler(a.Policy, authHandler, guard).RegisterRoutes(r)
	})
	return router
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if a.pool != nil {
		if err := a.pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Run serves HTTP and the job worker until ctx is cancelled, then shuts the
// server down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Jobs.Run(gctx)
	})
	g.Go(func() error {
		a.logger.Info("HR portal listening", "addr", a.Config.Addr, "env", a.Config.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", "err", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func migrationSource(dir string) (fs.FS, string) {
	if dir == "" {
		return db.Migrations, "migrations"
	}
	return os.DirFS(dir), "."
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AngelaMos | 2026
// serve.go

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/carterperez-dev/dreamdiary-backend/internal/access"
	"github.com/carterperez-dev/dreamdiary-backend/internal/admin"
	"github.com/carterperez-dev/dreamdiary-backend/internal/auth"
	"github.com/carterperez-dev/dreamdiary-backend/internal/billing"
	"github.com/carterperez-dev/dreamdiary-backend/internal/config"
	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/health"
	"github.com/carterperez-dev/dreamdiary-backend/internal/interpret"
	"github.com/carterperez-dev/dreamdiary-backend/internal/metrics"
	"github.com/carterperez-dev/dreamdiary-backend/internal/middleware"
	"github.com/carterperez-dev/dreamdiary-backend/internal/server"
	"github.com/carterperez-dev/dreamdiary-backend/internal/trial"
	"github.com/carterperez-dev/dreamdiary-backend/internal/user"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	logger.Info("redis connected",
		"pool_size", cfg.Redis.PoolSize,
	)

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		return err
	}
	logger.Info("token verifier initialized",
		"algorithm", "ES256",
		"key_id", verifier.KeyID(),
	)

	var provider billing.Provider
	if cfg.Stripe.Enabled() {
		provider = billing.NewStripeProvider(cfg.Stripe)
	} else {
		logger.Warn("stripe secret key missing, checkout and refetch disabled")
	}

	feature := cfg.Billing.DefaultFeature
	catalog := billing.NewCatalog(cfg.Billing.Plans, feature)
	store := billing.NewPostgresStore(db.DB)

	meter := trial.NewMeter(
		trial.NewRepository(db.DB, cfg.Billing.Trial.ConsumeMode),
		cfg.Billing.Trial.Limit,
		logger,
	)
	evaluator := access.NewEvaluator(
		store.Entitlements(),
		meter,
		access.WithTrialFeatures(cfg.Billing.Trial.Features...),
		access.WithLogger(logger),
	)
	gate := access.NewGate(evaluator, meter, logger)

	reconciler := billing.NewReconciler(store, provider, catalog, cfg.Billing,
		billing.WithLogger(logger),
	)
	billingSvc := billing.NewService(store, provider, catalog, logger)

	var interpreter interpret.Interpreter
	if cfg.Interpret.Endpoint != "" {
		interpreter = interpret.NewClient(cfg.Interpret)
	} else {
		logger.Warn("interpret endpoint missing, interpretations disabled")
	}

	userHandler := user.NewHandler(user.NewService(user.NewRepository(db.DB)))
	accessHandler := access.NewHandler(evaluator, feature)
	billingHandler := billing.NewHandler(billingSvc)
	webhookHandler := billing.NewWebhookHandler(cfg.Stripe.WebhookSecret, reconciler, logger)
	interpretHandler := interpret.NewHandler(interpreter, feature, logger)

	healthHandler := health.NewHandler(cfg.App.Version,
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis, Optional: true},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:        db.Stats,
		RedisStats:     redis.PoolStats,
		Accounts:       billingSvc,
		Trials:         meter,
		Verdicts:       evaluator,
		Resyncer:       reconciler,
		DefaultFeature: feature,
		Logger:         logger,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, metrics.Handler())
	}
	if verifier.CanIssue() {
		router.Get("/.well-known/jwks.json", verifier.JWKSHandler())
	}

	router.Method("POST", "/webhooks/stripe", webhookHandler)

	authenticator := middleware.Authenticator(verifier)
	adminOnly := middleware.RequireRole(cfg.Auth.AdminRole)
	limiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.PerWindow(
			cfg.RateLimit.Requests,
			cfg.RateLimit.Burst,
			cfg.RateLimit.Window,
		),
		KeyFunc:  middleware.KeyByUser,
		FailOpen: true,
	})

	router.Route("/v1", func(r chi.Router) {
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Use(limiter.Handler)

			userHandler.RegisterRoutes(r)
			accessHandler.RegisterRoutes(r)
			billingHandler.RegisterRoutes(r)
			interpretHandler.RegisterRoutes(r, gate)
		})
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+cfg.Server.DrainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, cfg.Server.DrainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

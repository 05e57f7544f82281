package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/taskdesk-api/internal/config"
	auditHandler "github.com/jwalitptl/taskdesk-api/internal/handler/audit"
	"github.com/jwalitptl/taskdesk-api/internal/handler/health"
	permissionHandler "github.com/jwalitptl/taskdesk-api/internal/handler/permission"
	promHandler "github.com/jwalitptl/taskdesk-api/internal/handler/prometheus"
	rbacHandler "github.com/jwalitptl/taskdesk-api/internal/handler/rbac"
	taskHandler "github.com/jwalitptl/taskdesk-api/internal/handler/task"
	userHandler "github.com/jwalitptl/taskdesk-api/internal/handler/user"
	"github.com/jwalitptl/taskdesk-api/internal/middleware"
	"github.com/jwalitptl/taskdesk-api/internal/repository/postgres"
	"github.com/jwalitptl/taskdesk-api/internal/router"
	"github.com/jwalitptl/taskdesk-api/internal/service/audit"
	"github.com/jwalitptl/taskdesk-api/internal/service/permission"
	rbacService "github.com/jwalitptl/taskdesk-api/internal/service/rbac"
	taskService "github.com/jwalitptl/taskdesk-api/internal/service/task"
	userService "github.com/jwalitptl/taskdesk-api/internal/service/user"
	"github.com/jwalitptl/taskdesk-api/pkg/auth"
	"github.com/jwalitptl/taskdesk-api/pkg/logger"
	"github.com/jwalitptl/taskdesk-api/pkg/messaging"
	"github.com/jwalitptl/taskdesk-api/pkg/messaging/redis"
	"github.com/jwalitptl/taskdesk-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Console:    cfg.Log.Console,
	})
	logger.SetGlobal(appLogger)

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal(err, "API server stopped")
	}
}

func run(cfg *config.Config, appLogger *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer, cfg.Monitoring.Namespace)

	broker, err := newBroker(cfg.Redis)
	if err != nil {
		return err
	}
	defer broker.Close()

	// Repositories
	base := postgres.NewBaseRepository(db, m)
	permissionRepo := postgres.NewPermissionRepository(base)
	profileRepo := postgres.NewProfileRepository(base)
	groupRepo := postgres.NewGroupRepository(base)
	taskRepo := postgres.NewTaskRepository(base)
	activityRepo := postgres.NewActivityLogRepository(base, cfg.Audit.UseRPC)

	// Permission evaluation and cache invalidation
	settingsCache := permission.NewSettingsCache(cfg.Permissions.CacheTTL)
	invalidator := permission.NewInvalidator(settingsCache, broker, m, appLogger)
	evaluator := permission.NewEvaluator(permissionRepo, profileRepo, taskRepo, settingsCache, cfg.Permissions.Mode, m, appLogger)

	if err := invalidator.ListenBroadcast(ctx); err != nil {
		appLogger.Warn("Permission broadcast unavailable, relying on cache TTL", "error", err.Error())
	}
	if cfg.Permissions.ListenNotify {
		listener := permission.NewNotifyListener(cfg.Database.DSN(), invalidator, appLogger)
		if err := listener.Start(ctx); err != nil {
			appLogger.Warn("Settings NOTIFY listener unavailable, relying on cache TTL", "error", err.Error())
		} else {
			defer listener.Close()
		}
	}

	// Services
	auditSvc := audit.NewService(activityRepo, profileRepo, m, appLogger)
	activity := audit.NewActivityLogger(auditSvc)
	rbacSvc := rbacService.NewService(permissionRepo, profileRepo, activity, invalidator)
	userSvc := userService.NewService(profileRepo, groupRepo, activity)
	taskSvc := taskService.NewService(taskRepo, profileRepo, evaluator, activity)

	if err := middleware.RegisterValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}
	authMiddleware := middleware.NewAuthMiddleware(auth.NewJWTValidator(cfg.JWT.Secret, cfg.JWT.Audience, cfg.JWT.Leeway))

	handlers := router.Handlers{
		Health:     health.NewHandler(readinessChecks(db, broker)),
		Permission: permissionHandler.NewHandler(evaluator),
		RBAC:       rbacHandler.NewHandler(rbacSvc),
		User:       userHandler.NewHandler(userSvc),
		Audit:      auditHandler.NewHandler(auditSvc, activity, profileRepo),
		Task:       taskHandler.NewHandler(taskSvc),
	}
	if cfg.Monitoring.PrometheusEnabled {
		handlers.Metrics = promHandler.New(prometheus.DefaultGatherer)
	}

	routerConfig := router.RouterConfig{
		Mode:        cfg.Server.Mode,
		RateLimit:   rate.Inf,
		MetricsPath: cfg.Monitoring.MetricsPath,
		MaxBodySize: middleware.DefaultMaxBodySize,
		Logger:      appLogger.ZL,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(authMiddleware, userSvc, handlers, m, routerConfig)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("Starting server", "port", cfg.Server.Port, "permission_mode", cfg.Permissions.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	appLogger.Info("Server exited")
	return nil
}

// newBroker connects to Redis when a URL is configured. Without one, settings
// changes only reach the local process and peers rely on the cache TTL.
func newBroker(cfg config.RedisConfig) (messaging.Broker, error) {
	if cfg.URL == "" {
		return messaging.NopBroker{}, nil
	}
	broker, err := redis.NewRedisBroker(redis.Config{
		URL:          cfg.URL,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		PoolSize:     cfg.PoolSize,
	}, &log.Logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return broker, nil
}

func readinessChecks(db *sqlx.DB, broker messaging.Broker) map[string]health.Pinger {
	checks := map[string]health.Pinger{"database": db}
	if p, ok := broker.(interface{ Ping(context.Context) error }); ok {
		checks["broker"] = health.PingFunc(p.Ping)
	}
	return checks
}

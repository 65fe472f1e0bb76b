package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/di"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/handlers"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/auth"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/config"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/idempotency"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/observability"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/repositories/postgres"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	store, err := postgres.Open(ctx, postgres.Config{
		URL:            cfg.Database.URL,
		MaxConns:       int32(cfg.Database.MaxConns),
		MinConns:       int32(cfg.Database.MinConns),
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, store.Pool()); err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
		logger.Info("database migrations applied")
	}

	var closers closerStack
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		closers.closeAll(closeCtx, logger)
	}()
	closers.push("postgres", store.Close)

	checks := []repositories.DependencyCheck{
		{Name: "postgres", Critical: true, Check: store.Ping},
	}

	notifier, notifierChecks, err := buildNotifier(ctx, cfg, logger.Named("notify"), &closers)
	if err != nil {
		logger.Fatal("failed to initialise notifier", zap.Error(err))
	}
	checks = append(checks, notifierChecks...)

	idempotencyStore, idempotencyChecks, err := buildIdempotencyStore(ctx, cfg, store, &closers)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	checks = append(checks, idempotencyChecks...)

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, store,
		di.WithLogger(logger),
		di.WithNotifier(notifier),
		di.WithBuildInfo(buildInfo),
		di.WithHealthRepository(healthRepo),
	)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)
	groupOpts := []handlers.HandlerOption{handlers.WithGroupMiddleware(idempotencyMiddleware)}

	svc := container.Services
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Payments, svc.Returns,
		append(groupOpts, handlers.WithCheckoutRateLimit(cfg.Orders.CheckoutRateLimit, cfg.Orders.CheckoutRateWindow))...)
	adminHandlers := handlers.NewAdminOrderHandlers(authenticator, svc.Orders, svc.Returns, groupOpts...)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Carts)
	webhookHandlers := handlers.NewWebhookHandlers(svc.Payments)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(projectID),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	runEvery(workerCtx, &workers, cfg.Orders.SweepInterval, func(ctx context.Context) {
		sweepPendingOrders(ctx, svc.Reconciliation, logger.Named("reconciliation"))
	})
	runEvery(workerCtx, &workers, cfg.Idempotency.CleanupInterval, func(ctx context.Context) {
		cleanupIdempotency(ctx, idempotencyStore, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("jewelry commerce api listening",
			zap.String("version", buildInfo.Version),
			zap.String("environment", buildInfo.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	workerCancel()
	workers.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// runEvery invokes fn on every tick until ctx is cancelled. Each run gets a minute.
func runEvery(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, time.Minute)
				fn(runCtx)
				cancel()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func sweepPendingOrders(ctx context.Context, sweeper services.ReconciliationService, logger *zap.Logger) {
	result, err := sweeper.SweepStalePending(ctx)
	if err != nil {
		logger.Error("pending order sweep error", zap.Error(err))
		return
	}
	if result.Cancelled > 0 || result.Failed > 0 {
		logger.Info("pending order sweep finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("cancelled", result.Cancelled),
			zap.Int("failed", result.Failed),
		)
	}
}

func cleanupIdempotency(ctx context.Context, store idempotency.Store, batch int, logger *zap.Logger) {
	removed, err := store.CleanupExpired(ctx, time.Now().UTC(), batch)
	if err != nil {
		logger.Error("idempotency cleanup error", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

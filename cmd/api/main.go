package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/atelier-market/api/internal/di"
	"github.com/atelier-market/api/internal/handlers"
	"github.com/atelier-market/api/internal/platform/config"
	"github.com/atelier-market/api/internal/platform/observability"
	"github.com/atelier-market/api/internal/platform/secrets"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	projectID, err := config.ProjectID()
	if err != nil {
		logger.Fatal("failed to read environment", zap.Error(err))
	}

	var loadOpts []config.Option
	if projectID != "" {
		fetcher, err := secrets.NewFetcher(ctx, projectID, nil, secrets.WithLogger(logger.Named("secrets")))
		if err != nil {
			logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
		}
		defer func() {
			if err := fetcher.Close(); err != nil {
				logger.Warn("secret fetcher close error", zap.Error(err))
			}
		}()
		loadOpts = append(loadOpts, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	}

	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("dependency close error", zap.Error(err))
		}
	}()

	metrics, err := observability.NewHTTPMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Warn("http metrics disabled", zap.Error(err))
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Firestore.ProjectID),
		observability.RecoveryMiddleware(),
		observability.RequestLoggerMiddleware(metrics),
	}
	if len(cfg.CORS.AllowedOrigins) > 0 {
		middlewares = append(middlewares, cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "If-None-Match"},
			ExposedHeaders:   []string{"ETag", "Location", "Idempotent-Replayed"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(startedAt)),
		handlers.WithHealthReadiness(container.Readiness),
	)

	svc := container.Services
	authn := container.Authn
	guard := container.CreateGuard()

	router := handlers.NewRouter(
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithAuthRoutes(handlers.NewAuthHandlers(authn, svc.Auth).Routes),
		handlers.WithProductRoutes(handlers.NewProductHandlers(authn, svc.Products).Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(authn, svc.Carts).Routes),
		handlers.WithOrderRoutes(handlers.NewOrderHandlers(authn, svc.Orders, guard).Routes),
		handlers.WithReturnRoutes(handlers.NewReturnHandlers(authn, svc.Returns, guard).Routes),
		handlers.WithReviewRoutes(handlers.NewReviewHandlers(authn, svc.Reviews, guard).Routes),
		handlers.WithInternalRoutes(handlers.NewInternalHandlers(svc.Ratings).Routes),
		handlers.WithInternalMiddlewares(container.InternalMiddlewares()...),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("store", cfg.Store))
	go func() {
		serverLogger.Info("atelier market api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

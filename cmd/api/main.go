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
	"google.golang.org/api/option"

	"github.com/storefront/api/internal/di"
	"github.com/storefront/api/internal/handlers"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/config"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/platform/idempotency"
	"github.com/storefront/api/internal/platform/observability"
	"github.com/storefront/api/internal/platform/secrets"
	"github.com/storefront/api/internal/repositories"
	firestoreRepo "github.com/storefront/api/internal/repositories/firestore"
	"github.com/storefront/api/internal/repositories/memory"
	"github.com/storefront/api/internal/services"
)

const (
	idempotencyCleanupInterval = 15 * time.Minute
	idempotencyCleanupBatch    = 200
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	resolver, err := newSecretResolver(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var provider *pfirestore.Provider
	var registry repositories.Registry
	switch cfg.Store.Driver {
	case config.StoreDriverFirestore:
		var providerOpts []pfirestore.ProviderOption
		if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(file)))
		}
		provider = pfirestore.NewProvider(cfg.Firestore, providerOpts...)
		registry, err = firestoreRepo.NewRegistry(provider)
		if err != nil {
			logger.Fatal("failed to initialise firestore registry", zap.Error(err))
		}
	default:
		logger.Warn("using in-memory store; data is lost on restart")
		registry = memory.NewRegistry()
	}

	buildInfo := services.BuildInfo{
		Version:     envOrDefault("API_BUILD_VERSION", "dev"),
		Environment: envOrDefault("API_ENVIRONMENT", "local"),
		StartedAt:   startedAt,
	}

	authenticator, directory, err := newAuthenticator(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise authenticator", zap.Error(err))
	}

	containerOpts := []di.Option{
		di.WithLogger(logger.Named("services")),
		di.WithBuildInfo(buildInfo),
	}
	if directory != nil {
		containerOpts = append(containerOpts, di.WithUserDirectory(directory))
	}
	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	var idempotencyStore idempotency.Store
	if provider != nil {
		idempotencyStore = idempotency.NewFirestoreStore(provider)
	} else {
		idempotencyStore = idempotency.NewMemoryStore()
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(idempotencyCleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				runCtx, cancel := context.WithTimeout(cleanupCtx, time.Minute)
				removed, err := idempotencyStore.CleanupExpired(runCtx, time.Now().UTC(), idempotencyCleanupBatch)
				cancel()
				if err != nil {
					cleanupLogger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	svc := container.Services
	productHandlers := handlers.NewProductHandlers(authenticator, svc.Catalog)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders,
		handlers.WithOrderCreateMiddleware(idempotencyMiddleware),
	)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, svc.Orders)
	userHandlers := handlers.NewUserHandlers(authenticator, svc.Users)
	adminUserHandlers := handlers.NewAdminUserHandlers(authenticator, svc.Users)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(handlers.CombineRoutes(productHandlers.Routes, reviewHandlers.Routes)),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithUserRoutes(userHandlers.Routes),
		handlers.WithAdminRoutes(handlers.CombineRoutes(adminOrderHandlers.Routes, adminUserHandlers.Routes)),
	}
	if svc.Payments != nil {
		paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments)
		opts = append(opts, handlers.WithPaymentRoutes(paymentHandlers.Routes))
	}

	router := handlers.NewRouter(opts...)
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
		serverLogger.Info("storefront api listening", zap.String("store", cfg.Store.Driver), zap.String("auth", cfg.Auth.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownDeadline)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// newAuthenticator returns the directory admins manage accounts through when sign-in is delegated to Firebase.
func newAuthenticator(ctx context.Context, cfg config.Config) (*auth.Authenticator, services.UserDirectory, error) {
	opts := []auth.Option{auth.WithSessionCookie(cfg.Auth.SessionCookie)}
	switch cfg.Auth.Provider {
	case config.AuthProviderFirebase:
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, auth.WithUserGetter(verifier))
		return auth.NewAuthenticator(verifier, opts...), verifier, nil
	default:
		verifier, err := auth.NewSessionVerifier(cfg.Auth.SessionSecret)
		if err != nil {
			return nil, nil, err
		}
		return auth.NewAuthenticator(verifier, opts...), nil, nil
	}
}

func newSecretResolver(ctx context.Context, logger *zap.Logger) (*secrets.Resolver, error) {
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
	}
	project := strings.TrimSpace(os.Getenv("API_SECRET_PROJECT_ID"))
	if project == "" {
		project = strings.TrimSpace(os.Getenv("API_FIREBASE_PROJECT_ID"))
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := strings.TrimSpace(os.Getenv("API_SECRET_FALLBACK_FILE")); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if file := strings.TrimSpace(os.Getenv("API_FIREBASE_CREDENTIALS_FILE")); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewResolver(ctx, opts...)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/qandu/ai-relay/internal/api"
	"github.com/qandu/ai-relay/internal/auth"
	"github.com/qandu/ai-relay/internal/catalog"
	"github.com/qandu/ai-relay/internal/config"
	"github.com/qandu/ai-relay/internal/crypto"
	"github.com/qandu/ai-relay/internal/domain"
	"github.com/qandu/ai-relay/internal/httputil"
	"github.com/qandu/ai-relay/internal/provider"
	"github.com/qandu/ai-relay/internal/provider/google"
	"github.com/qandu/ai-relay/internal/provider/openaicompat"
	"github.com/qandu/ai-relay/internal/provider/pollinations"
	"github.com/qandu/ai-relay/internal/ratelimit"
	"github.com/qandu/ai-relay/internal/registry"
	"github.com/qandu/ai-relay/internal/relay"
	"github.com/qandu/ai-relay/internal/repository"
	"github.com/qandu/ai-relay/internal/secrets"
	"github.com/qandu/ai-relay/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting AI relay", "addr", cfg.Addr, "version", "0.1.0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Init(ctx, "ai-relay", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	encryptionKey := loadEncryptionKey(ctx, cfg)

	var (
		endpointRepo repository.EndpointRepository
		modelRepo    repository.ModelRepository
		adminRepo    auth.AdminUserRepository
		db           *sql.DB
	)

	if cfg.DatabaseURL != "" {
		if encryptionKey == "" {
			slog.Error("ENCRYPTION_KEY (or ENCRYPTION_SECRET_NAME) is required with a database")
			os.Exit(1)
		}
		enc, err := crypto.NewEncryptor(encryptionKey)
		if err != nil {
			slog.Error("failed to build encryptor", "error", err)
			os.Exit(1)
		}

		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			slog.Error("failed to reach database", "error", err)
			os.Exit(1)
		}

		endpointRepo = repository.NewPostgresEndpointRepository(db, enc)
		modelRepo = repository.NewPostgresModelRepository(db)
		adminRepo = auth.NewPostgresAdminUserRepository(db)
		slog.Info("using postgres storage")
	} else {
		models := repository.NewInMemoryModelRepository()
		endpointRepo = repository.NewInMemoryEndpointRepository().WithModels(models)
		modelRepo = models
		adminRepo = auth.NewInMemoryAdminUserRepository()
		slog.Warn("no DATABASE_URL set, using in-memory storage")
	}

	reg := registry.New(endpointRepo, modelRepo)
	if cfg.RedisURL != "" {
		cache, err := registry.NewRedisCatalogCache(cfg.RedisURL)
		if err != nil {
			slog.Warn("failed to connect to redis for catalog cache, using in-memory", "error", err)
			reg = reg.WithCatalogCache(registry.NewInMemoryCatalogCache(), cfg.CatalogCacheTTL)
		} else {
			reg = reg.WithCatalogCache(cache, cfg.CatalogCacheTTL)
			slog.Info("using redis catalog cache")
		}
	} else {
		reg = reg.WithCatalogCache(registry.NewInMemoryCatalogCache(), cfg.CatalogCacheTTL)
	}

	adapters := provider.NewRegistry(openaicompat.New())
	adapters.Register(domain.ProviderGoogle, google.New())
	adapters.Register(domain.ProviderPollinations, pollinations.New())

	streamCfg := httputil.StreamingConfig()
	streamCfg.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
	engine := relay.New(reg, adapters, httputil.NewClient(streamCfg), cfg.UpstreamTimeout)

	catalogClient := httputil.DefaultClient()
	syncer := catalog.NewSyncer(reg, modelRepo, adapters, catalogClient, cfg.UpstreamTimeout)
	tester := catalog.NewTester(adapters, catalogClient, cfg.UpstreamTimeout)

	var rateLimiter ratelimit.RateLimiter
	if cfg.RedisURL != "" {
		rateLimiter, err = ratelimit.NewRedisRateLimiter(cfg.RedisURL)
		if err != nil {
			slog.Warn("failed to connect to redis for rate limiting, using in-memory", "error", err)
			rateLimiter = ratelimit.NewInMemoryRateLimiter()
		} else {
			slog.Info("using redis rate limiter")
		}
	} else {
		rateLimiter = ratelimit.NewInMemoryRateLimiter()
	}

	var checkers []api.HealthChecker
	if db != nil {
		checkers = append(checkers, api.NewPostgresHealthChecker(db))
	}
	if cfg.RedisURL != "" {
		if redisChecker, err := api.NewRedisHealthChecker(cfg.RedisURL); err == nil {
			checkers = append(checkers, redisChecker)
		}
	}

	handler := api.NewHandler(api.HandlerConfig{
		Registry:       reg,
		Relay:          engine,
		RateLimiter:    rateLimiter,
		RateLimitRPM:   cfg.RateLimitRPM,
		HealthCheckers: checkers,
	})

	adminHandler := api.NewAdminHandler(endpointRepo, modelRepo, reg, syncer, tester)

	mux := http.NewServeMux()
	if cfg.AdminAuthEnabled {
		middleware := auth.NewMiddleware(auth.NewAuthenticator(adminRepo))
		mux.Handle("/admin/", middleware.RequireAuth(adminHandler))
	} else {
		slog.Warn("admin authentication disabled")
		mux.Handle("/admin/", adminHandler)
	}
	mux.Handle("/", handler)

	// WriteTimeout stays zero: it would sever long-lived generation streams.
	srv := &http.Server{
		Addr:        cfg.Addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if db != nil {
		db.Close()
	}

	slog.Info("server stopped")
}

// loadEncryptionKey prefers Secrets Manager when a secret name is set and
// falls back to the ENCRYPTION_KEY environment value.
func loadEncryptionKey(ctx context.Context, cfg *config.Config) string {
	if cfg.EncryptionSecretName == "" {
		return cfg.EncryptionKey
	}

	store, err := secrets.NewAWSSecretsManager(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Error("failed to initialize secrets manager", "error", err)
		os.Exit(1)
	}

	key, err := store.GetSecret(ctx, cfg.EncryptionSecretName)
	if err != nil {
		slog.Error("failed to load encryption key", "error", err, "secret", cfg.EncryptionSecretName)
		os.Exit(1)
	}

	slog.Info("encryption key loaded from secrets manager", "secret", cfg.EncryptionSecretName)
	return key
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/core-view/internal/api"
	"github.com/ZanzyTHEbar/core-view/internal/cache"
	"github.com/ZanzyTHEbar/core-view/internal/catalog"
	"github.com/ZanzyTHEbar/core-view/internal/config"
	"github.com/ZanzyTHEbar/core-view/internal/database"
	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
	"github.com/ZanzyTHEbar/core-view/internal/monitoring"
	"github.com/ZanzyTHEbar/core-view/internal/privacy"
	"github.com/ZanzyTHEbar/core-view/internal/profile"
	"github.com/ZanzyTHEbar/core-view/internal/ratelimit"
	"github.com/ZanzyTHEbar/core-view/internal/security"
	"github.com/ZanzyTHEbar/core-view/internal/session"
)

const version = "1.0.0"

// app holds the long-lived server dependencies
type app struct {
	router  *gin.Engine
	db      *database.DB
	redis   *ratelimit.RedisClient
	limiter *ratelimit.RateLimiter
	privacy *privacy.PrivacyService
	logger  *monitoring.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *monitoring.Logger, metrics *monitoring.Metrics) (*app, error) {
	cat, err := loadCatalog(cfg.CatalogDir)
	if err != nil {
		return nil, apperrors.NewConfigurationError("failed to load catalog", err)
	}

	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	repo := database.NewRepository(db)

	redisClient, err := ratelimit.NewRedisClient(ctx, ratelimit.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without it", "error", err)
	}

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		IPLimitPerMin: cfg.IPLimitPerMin,
	}, metrics, logger)

	profiles := cache.New[profile.Profile]("profile", cfg.ProfileCacheSize, cfg.ProfileCacheTTL, metrics, logger)
	sessions := session.NewService(repo, cat, metrics, logger).WithProfileCache(profiles)
	if cfg.SignShareTokens() {
		sessions.WithSigner(profile.NewSigner([]byte(cfg.ShareTokenSecret), profile.TokenIssuer))
	}

	privacyService := privacy.NewService(sessions, repo, cfg.SessionRetentionDays, logger)

	securityConfig := security.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = cfg.CORSOrigins
	securityConfig.RequestTimeout = cfg.RequestTimeout
	securityConfig.EnableHSTS = cfg.EnableHSTS
	securityMiddleware := security.NewSecurityMiddleware(securityConfig)

	router := api.NewRouter(api.Config{
		Handlers:      api.NewHandlers(sessions, cat, privacyService, securityMiddleware),
		Security:      securityMiddleware,
		RateLimiter:   limiter,
		ResponseCache: cache.NewResponseCache(256, 15*time.Minute, metrics, logger, api.CacheablePrefixes...),
		Metrics:       metrics,
		Logger:        logger,
		HealthChecks: []api.HealthCheck{
			{Name: "database", Check: db.PingContext},
			{Name: "redis", Check: redisClient.HealthCheck, Optional: true},
		},
		Stats: map[string]func() map[string]any{
			"database":      db.GetPoolStats,
			"ratelimit":     limiter.Stats,
			"profile_cache": profiles.Stats,
		},
		Version: version,
	})

	return &app{
		router:  router,
		db:      db,
		redis:   redisClient,
		limiter: limiter,
		privacy: privacyService,
		logger:  logger,
	}, nil
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir != "" {
		return catalog.LoadDir(dir)
	}
	return catalog.Load()
}

func (a *app) Close() {
	a.limiter.Close()
	apperrors.SafeClose(a.redis, "redis")
	apperrors.SafeClose(a.db, "database")
}

func main() {
	configFile := flag.String("config", os.Getenv("CORE_VIEW_CONFIG"), "optional config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := monitoring.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger.Slog())
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, monitoring.NewMetrics())
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	go a.privacy.RunCleanup(ctx, cfg.CleanupInterval)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	logger.Info("Server exited")
}

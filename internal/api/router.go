package api

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ZanzyTHEbar/core-view/internal/cache"
	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
	"github.com/ZanzyTHEbar/core-view/internal/middleware"
	"github.com/ZanzyTHEbar/core-view/internal/monitoring"
	"github.com/ZanzyTHEbar/core-view/internal/ratelimit"
	"github.com/ZanzyTHEbar/core-view/internal/security"
)

const (
	docsPrefix  = "/swagger/"
	openAPIPath = "/openapi.yaml"
	healthWait  = 2 * time.Second
)

// CacheablePrefixes are the read-only catalog routes served from the response cache
var CacheablePrefixes = []string{"/api/dimensions", "/api/archetypes", "/api/questions"}

//go:embed openapi.yaml
var openAPIDoc []byte

// HealthCheck probes one dependency. Optional checks report their state but
// never mark the service unhealthy.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// Config collects everything the router needs
type Config struct {
	Handlers      *Handlers
	Security      *security.SecurityMiddleware
	RateLimiter   *ratelimit.RateLimiter
	ResponseCache *cache.ResponseCache
	Metrics       *monitoring.Metrics
	Logger        *monitoring.Logger
	HealthChecks  []HealthCheck
	Stats         map[string]func() map[string]any // pool and cache gauges reported by /health
	Version       string
}

// NewRouter builds the gin engine with the middleware chain and all routes
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = monitoring.NopLogger()
	}
	sc := cfg.Security.Config()

	r := gin.New()
	if err := r.SetTrustedProxies(sc.TrustedProxies); err != nil {
		cfg.Logger.Warn("Invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(monitoring.MonitoringMiddleware(cfg.Metrics, cfg.Logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(cfg.Logger))
	r.Use(apperrors.ErrorHandler())
	r.Use(apperrors.RecoveryHandler())
	r.Use(middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()).Handler())
	r.Use(security.SecurityHeadersMiddleware(sc.EnableHSTS))
	r.Use(security.CSPMiddleware(docsPrefix))
	r.Use(cfg.Security.CORSConfig())
	r.Use(cfg.Security.RequestTimeout)
	r.Use(cfg.Security.ValidateContentType)

	r.GET("/health", healthHandler(cfg.HealthChecks, cfg.Stats, cfg.Version))
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	r.GET(openAPIPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", openAPIDoc)
	})
	r.GET(docsPrefix+"*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(openAPIPath)))

	h := cfg.Handlers
	api := r.Group("/api")
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.IPRateLimitMiddleware())
		api.GET("/ratelimit", cfg.RateLimiter.HandleRateLimitStatus())
	}
	if cfg.ResponseCache != nil {
		api.Use(cfg.ResponseCache.Middleware())
	}

	api.GET("/dimensions", h.Dimensions)
	api.GET("/archetypes", h.Archetypes)
	api.GET("/archetypes/:id", h.Archetype)
	api.GET("/questions", h.Questions)
	api.GET("/privacy", h.PrivacyPolicy)

	api.POST("/sessions", h.StartSession)
	sessions := api.Group("/sessions/:id", validParam("id", security.ValidateID))
	{
		sessions.GET("", h.GetSession)
		sessions.DELETE("", h.DeleteSession)
		sessions.POST("/responses", h.RecordResponses)
		sessions.POST("/step", h.AdvanceStep)
		sessions.GET("/profile", h.Profile)
		sessions.POST("/adjustments", h.ApplyAdjustment)
		sessions.GET("/followup", h.FollowUp)
		sessions.POST("/feedback-link", h.FeedbackLink)
		sessions.GET("/feedback/scores", h.FeedbackScores)
		sessions.POST("/share", h.Share)
	}

	fb := api.Group("/feedback/:token", validParam("token", security.ValidateID))
	{
		fb.GET("", h.FeedbackQuestions)
		fb.POST("", h.SubmitFeedback)
	}

	api.GET("/share/:token", validParam("token", security.ValidateShareToken), h.Shared)

	return r
}

func healthHandler(checks []HealthCheck, stats map[string]func() map[string]any, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthWait)
		defer cancel()

		status := http.StatusOK
		services := make(gin.H, len(checks))
		for _, hc := range checks {
			if err := hc.Check(ctx); err != nil {
				state := "unavailable"
				if !hc.Optional {
					state = "down"
					status = http.StatusServiceUnavailable
				}
				services[hc.Name] = gin.H{"status": state, "error": err.Error()}
				continue
			}
			services[hc.Name] = gin.H{"status": "ok"}
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		body := gin.H{
			"status":    overall,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   version,
			"services":  services,
		}
		if len(stats) > 0 {
			snapshot := make(gin.H, len(stats))
			for name, fn := range stats {
				snapshot[name] = fn()
			}
			body["stats"] = snapshot
		}
		c.JSON(status, body)
	}
}

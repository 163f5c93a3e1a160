package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/internal/interfaces/http/handlers"
	"github.com/turtacn/MolForge/internal/interfaces/http/middleware"
)

// GeneratePath is the route of the generation proxy.
const GeneratePath = "/api/generate-molecules"

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.  Nil handlers leave their routes unregistered.
type RouterConfig struct {
	// Handlers
	ProxyHandler   *handlers.ProxyHandler
	HistoryHandler *handlers.HistoryHandler
	HealthHandler  *handlers.HealthHandler

	// Middleware
	Auth      *middleware.AuthMiddleware
	RateLimit gin.HandlerFunc
	CORS      gin.HandlerFunc

	// Infrastructure
	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	MetricsPath      string
	SentryEnabled    bool
}

// NewRouter builds the route tree:
//
//	GET  /healthz, /readyz          probes, no auth
//	GET  /metrics                   Prometheus scrape
//	POST /api/generate-molecules    generation proxy, optional auth, rate limited
//	     /api/v1/history...         history API, auth required
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = prometheus.NewNoopAppMetrics()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(middleware.Recovery(cfg.Logger))
	if cfg.SentryEnabled {
		r.Use(middleware.Sentry())
	}
	r.Use(middleware.RequestID())
	if cfg.CORS != nil {
		r.Use(cfg.CORS)
	}
	r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	r.Use(middleware.Metrics(cfg.Metrics))

	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}

	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	if cfg.ProxyHandler != nil {
		chain := []gin.HandlerFunc{}
		if cfg.Auth != nil {
			chain = append(chain, cfg.Auth.OptionalAuth())
		}
		if cfg.RateLimit != nil {
			chain = append(chain, cfg.RateLimit)
		}
		chain = append(chain, cfg.ProxyHandler.Generate)
		r.POST(GeneratePath, chain...)
	}

	if cfg.HistoryHandler != nil && cfg.Auth != nil {
		v1 := r.Group("/api/v1", cfg.Auth.RequireAuth())
		cfg.HistoryHandler.RegisterRoutes(v1)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, middleware.ErrorResponse{Code: "COMMON_005", Message: "route not found"})
	})
	return r
}

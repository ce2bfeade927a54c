package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prohmpiriya/botfleet/pkg/logger"
	"github.com/prohmpiriya/botfleet/pkg/middleware"
)

// RouterConfig wires the HTTP surface
type RouterConfig struct {
	Admin   *AdminHandler
	Webhook *WebhookHandler
	Health  *HealthHandler

	// JWT protects the admin group when set
	JWT *middleware.JWTConfig
	// Audit records admin mutations when set
	Audit *middleware.AuditLogger
	// WebhookLimiter throttles notification senders when set
	WebhookLimiter *middleware.ClientRateLimiter
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer

	Log *logger.Logger
}

// NewRouter builds the gin engine with every route registered
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(middleware.Recovery(log), middleware.RequestID(), middleware.AccessLog(log))

	if cfg.Health != nil {
		router.GET("/health", cfg.Health.Health)
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if cfg.Webhook != nil {
		webhook := router.Group("/webhook")
		if cfg.WebhookLimiter != nil {
			webhook.Use(middleware.RateLimit(cfg.WebhookLimiter))
		}
		webhook.POST("/master", cfg.Webhook.Master)
	}

	if cfg.Admin != nil {
		admin := router.Group("/admin")
		if cfg.JWT != nil {
			admin.Use(middleware.JWTMiddleware(cfg.JWT), middleware.RequireRole(middleware.RoleAdmin))
		}
		if cfg.Audit != nil {
			admin.Use(middleware.AuditMiddleware(cfg.Audit))
		}
		admin.POST("/create-tenant", cfg.Admin.CreateTenant)
	}

	return router
}
